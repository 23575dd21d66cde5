package verification

import (
	"context"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
)

// TimeWindow bounds the period a correlation provider should consider.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// WindowAround returns [at-d, at+d].
func WindowAround(at time.Time, d time.Duration) TimeWindow {
	return TimeWindow{From: at.Add(-d), To: at.Add(d)}
}

// Contains reports whether t falls inside the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// SignalProvider scores how strongly an independent signal source corroborates
// a report. Scores are in [0,1]; out-of-range values are clamped by callers.
type SignalProvider interface {
	Score(ctx context.Context, report domain.HazardReport, window TimeWindow) (float64, error)
}

// SignalProviderFunc adapts a function to SignalProvider.
type SignalProviderFunc func(ctx context.Context, report domain.HazardReport, window TimeWindow) (float64, error)

func (f SignalProviderFunc) Score(ctx context.Context, report domain.HazardReport, window TimeWindow) (float64, error) {
	return f(ctx, report, window)
}

// socialSaturation is the summed credibility at which social corroboration
// is considered complete.
const socialSaturation = 3.0

// FusionSocialProvider scores social corroboration from admitted social
// signals in the fusion store: the summed credibility of social records within
// fusion.ProximityKm of the report and inside the window, saturating at 3.
type FusionSocialProvider struct {
	store *fusion.Store
}

// NewFusionSocialProvider creates a provider reading from store.
func NewFusionSocialProvider(store *fusion.Store) *FusionSocialProvider {
	return &FusionSocialProvider{store: store}
}

func (p *FusionSocialProvider) Score(ctx context.Context, report domain.HazardReport, window TimeWindow) (float64, error) {
	if report.Location == nil {
		return 0, nil
	}
	half := window.To.Sub(window.From) / 2
	mid := window.From.Add(half)
	recs, err := p.store.Nearby(ctx, *report.Location, mid, fusion.ProximityKm, half)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, r := range recs {
		if r.Type == domain.SourceSocial {
			total += r.CredibilityWeight
		}
	}
	return domain.Clamp01(total / socialSaturation), nil
}
