package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	// TriangulationRadiusKm bounds which related reports count as corroboration.
	TriangulationRadiusKm = 10.0

	tier2VerifyThreshold      = 0.8
	tier2CorroborationFloor   = 0.5
	socialCorrelationWeight   = 0.3
	officialCorrelationWeight = 0.3

	// DefaultProviderTimeout bounds each correlation provider call.
	DefaultProviderTimeout = 3 * time.Second
)

// Provider labels used in logs and metrics.
const (
	ProviderSocial   = "social"
	ProviderOfficial = "official"
)

// Tier2Result is the outcome of cross-source validation.
type Tier2Result struct {
	CrossSource   float64
	Triangulation float64
	Social        float64
	Official      float64
	NearbyReports int
	Status        domain.Status
	Flags         []string
}

// Validator re-scores reports that tier 1 could not verify.
type Validator struct {
	social   SignalProvider
	official SignalProvider
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewValidator creates a Validator. Either provider may be nil, contributing
// zero. A non-positive timeout uses DefaultProviderTimeout.
func NewValidator(social, official SignalProvider, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Validator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		social:   social,
		official: official,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Validate scores report against related report records and the external
// correlation providers. related may include the report's own record.
// Provider failures contribute zero and never fail validation; only
// cancellation of ctx does.
func (v *Validator) Validate(ctx context.Context, report domain.HazardReport, related []domain.SourceRecord) (Tier2Result, error) {
	nearby := countNearby(report, related)
	res := Tier2Result{
		NearbyReports: nearby,
		Triangulation: triangulationBonus(nearby),
	}

	window := WindowAround(report.CreatedAt, fusion.Window)
	var g errgroup.Group
	g.Go(func() error {
		res.Social = v.correlate(ctx, ProviderSocial, v.social, report, window)
		return nil
	})
	g.Go(func() error {
		res.Official = v.correlate(ctx, ProviderOfficial, v.official, report, window)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Tier2Result{}, fmt.Errorf("validate report %s: %w", report.ID, err)
	}

	res.CrossSource = domain.Clamp01(res.Triangulation +
		socialCorrelationWeight*res.Social +
		officialCorrelationWeight*res.Official)

	res.Status = domain.StatusPending
	res.Flags = []string{}
	switch {
	case res.CrossSource > tier2VerifyThreshold:
		res.Status = domain.StatusVerified
	case res.CrossSource < tier2CorroborationFloor:
		res.Flags = append(res.Flags, FlagNoCorroboration)
	}
	return res, nil
}

// correlate calls one provider under the validator timeout. Any failure is
// logged and scored as zero.
func (v *Validator) correlate(ctx context.Context, name string, p SignalProvider, report domain.HazardReport, window TimeWindow) float64 {
	if p == nil {
		return 0
	}
	cctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	score, err := callProvider(cctx, p, report, window)
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Warn("correlation provider unavailable, scoring zero",
				"provider", name,
				"report_id", report.ID,
				"error", err,
			)
			if v.metrics != nil {
				v.metrics.ProviderFailures.WithLabelValues(name).Inc()
			}
		}
		return 0
	}
	return domain.Clamp01(score)
}

// callProvider runs p in its own goroutine so a provider that ignores its
// context still cannot hold validation past the deadline.
func callProvider(ctx context.Context, p SignalProvider, report domain.HazardReport, window TimeWindow) (float64, error) {
	type result struct {
		score float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := p.Score(ctx, report, window)
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, errors.Join(domain.ErrExternalSignal, r.err)
		}
		return r.score, nil
	case <-ctx.Done():
		return 0, errors.Join(domain.ErrExternalSignal, ctx.Err())
	}
}

// countNearby counts related report records within TriangulationRadiusKm.
func countNearby(report domain.HazardReport, related []domain.SourceRecord) int {
	if report.Location == nil {
		return 0
	}
	n := 0
	for _, r := range related {
		if !r.Type.IsReport() {
			continue
		}
		if domain.DistanceKm(*report.Location, r.Location) < TriangulationRadiusKm {
			n++
		}
	}
	return n
}

func triangulationBonus(nearby int) float64 {
	switch {
	case nearby > 2:
		return 0.4
	case nearby > 0:
		return 0.2
	default:
		return 0
	}
}
