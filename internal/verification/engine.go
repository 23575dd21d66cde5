package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/escalation"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// humanConfidence is the confidence attached to analyst decisions.
const humanConfidence = 1.0

// Engine drives a report through the three verification tiers.
type Engine struct {
	store     *fusion.Store
	scorer    *Scorer
	validator *Validator
	queue     *escalation.Queue
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	states *lifecycle
	lookup DecisionLookup
}

// NewEngine wires the tiers together. store, scorer, validator and queue are
// required.
func NewEngine(store *fusion.Store, scorer *Scorer, validator *Validator, queue *escalation.Queue, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		scorer:    scorer,
		validator: validator,
		queue:     queue,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		states:    newLifecycle(),
	}
}

// WithDecisionLookup makes Verify consult persisted decisions for reports the
// engine has not seen since it started.
func (e *Engine) WithDecisionLookup(l DecisionLookup) *Engine {
	e.lookup = l
	return e
}

// Register records a report in the fusion store so that it can corroborate
// its neighbours. Reports without coordinates are skipped.
func (e *Engine) Register(ctx context.Context, report domain.HazardReport) error {
	if report.Location == nil {
		return nil
	}
	rec, err := domain.NewReportSource(report)
	if err != nil {
		return err
	}
	if err := e.store.AddSource(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrStoreInconsistency) {
			e.fusionWrite("conflict")
		} else {
			e.fusionWrite("error")
		}
		return err
	}
	e.fusionWrite("ok")
	return nil
}

// Verify runs report through tier 1 and, if needed, tier 2. Reports neither
// tier verifies are escalated for human review. The updated report and the
// decision describing its current state are returned.
//
// Verification is once per report ID. A report that is already settled
// returns ErrTerminal; one waiting for review returns its current tier 3
// decision without being scored again.
func (e *Engine) Verify(ctx context.Context, report domain.HazardReport) (domain.HazardReport, domain.VerificationDecision, error) {
	unlock := e.states.lock(report.ID)
	defer unlock()

	if report.Terminal() {
		return report, domain.VerificationDecision{}, fmt.Errorf("verify %s: %w", report.ID, domain.ErrTerminal)
	}
	if _, resolved := e.queue.Resolution(report.ID); resolved {
		return report, domain.VerificationDecision{}, fmt.Errorf("verify %s: resolved by analyst: %w", report.ID, domain.ErrTerminal)
	}
	if item, queued := e.queue.Get(report.ID); queued {
		return item.Report, domain.NewDecision(item.Report, item.Confidence, item.Sources, e.clock.Now()), nil
	}
	if prior, ok := e.states.get(report.ID); ok {
		return report, domain.VerificationDecision{}, fmt.Errorf("verify %s: %s at tier %d: %w", report.ID, prior.Status, prior.Tier, domain.ErrTerminal)
	}
	if restored, d, done, err := e.restore(ctx, report); done || err != nil {
		return restored, d, err
	}

	start := e.clock.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ScoringDuration.Observe(e.clock.Since(start).Seconds())
		}
	}()

	t1, err := e.scorer.Evaluate(ctx, report)
	if err != nil {
		return report, domain.VerificationDecision{}, fmt.Errorf("tier 1 %s: %w", report.ID, err)
	}
	if err := report.Apply(t1.Status, domain.TierAutomated, t1.Score, t1.Flags); err != nil {
		return report, domain.VerificationDecision{}, err
	}
	e.logger.Debug("tier 1 scored",
		"report_id", report.ID,
		"overall", t1.Score.Overall,
		"source_credibility", t1.SourceCredibility,
		"flags", t1.Flags,
	)
	if t1.Status == domain.StatusVerified {
		return report, e.settle(report, t1.Score.Overall, t1.Sources), nil
	}

	related, err := e.relatedReports(ctx, report)
	if err != nil {
		return report, domain.VerificationDecision{}, fmt.Errorf("tier 2 %s: %w", report.ID, err)
	}
	t2, err := e.validator.Validate(ctx, report, related)
	if err != nil {
		return report, domain.VerificationDecision{}, fmt.Errorf("tier 2 %s: %w", report.ID, err)
	}
	score := report.Score
	score.CrossSource = t2.CrossSource
	if err := report.Apply(t2.Status, domain.TierCrossSrc, score, t2.Flags); err != nil {
		return report, domain.VerificationDecision{}, err
	}
	sources := mergeSources(t1.Sources, domain.SourceTypes(related))
	if t2.Status == domain.StatusVerified {
		return report, e.settle(report, t2.CrossSource, sources), nil
	}

	if err := report.Apply(domain.StatusPending, domain.TierHuman, score, nil); err != nil {
		return report, domain.VerificationDecision{}, err
	}
	if e.queue.Enqueue(report, t2.CrossSource, sources) {
		e.logger.Info("report escalated for review",
			"report_id", report.ID,
			"severity", report.Severity,
			"cross_source", t2.CrossSource,
			"nearby_reports", t2.NearbyReports,
		)
	}
	e.queueDepth()
	return report, e.decide(report, t2.CrossSource, sources), nil
}

// restore consults the persisted decision of a report unknown to this
// process. Terminal decisions are absorbing and a pending tier 3 decision puts
// the report back in the queue with its recorded score. done is false when
// the report must be scored.
func (e *Engine) restore(ctx context.Context, report domain.HazardReport) (domain.HazardReport, domain.VerificationDecision, bool, error) {
	if e.lookup == nil {
		return report, domain.VerificationDecision{}, false, nil
	}
	prior, ok, err := e.lookup.Lookup(ctx, report.ID)
	if err != nil {
		return report, domain.VerificationDecision{}, true, fmt.Errorf("lookup decision %s: %w", report.ID, err)
	}
	if !ok {
		return report, domain.VerificationDecision{}, false, nil
	}
	if prior.Status.Terminal() {
		e.states.settle(prior)
		return report, domain.VerificationDecision{}, true, fmt.Errorf("verify %s: %s at tier %d: %w", report.ID, prior.Status, prior.Tier, domain.ErrTerminal)
	}
	if prior.Tier != domain.TierHuman {
		return report, domain.VerificationDecision{}, false, nil
	}

	if err := report.Apply(domain.StatusPending, domain.TierHuman, prior.Score, prior.Flags); err != nil {
		return report, domain.VerificationDecision{}, true, err
	}
	if e.queue.Enqueue(report, prior.Confidence, prior.ContributingSources) {
		e.logger.Info("escalation restored from decision store", "report_id", report.ID, "severity", report.Severity)
	}
	e.queueDepth()
	return report, domain.NewDecision(report, prior.Confidence, prior.ContributingSources, e.clock.Now()), true, nil
}

// Resolve applies an analyst decision to an escalated report.
func (e *Engine) Resolve(ctx context.Context, reportID, analystID string, decision domain.Status, notes string) (domain.VerificationDecision, error) {
	if err := ctx.Err(); err != nil {
		return domain.VerificationDecision{}, err
	}
	unlock := e.states.lock(reportID)
	defer unlock()

	item, _ := e.queue.Get(reportID)
	report, res, err := e.queue.Resolve(reportID, analystID, decision, notes)
	if err != nil {
		return domain.VerificationDecision{}, err
	}
	e.queueDepth()
	e.logger.Info("escalation resolved",
		"report_id", reportID,
		"analyst_id", res.AnalystID,
		"decision", res.Decision,
	)

	d := e.decide(report, humanConfidence, item.Sources)
	d.AnalystID = res.AnalystID
	d.Notes = res.Notes
	d.Timestamp = res.ResolvedAt
	return d, nil
}

// Pending lists escalated reports in review order.
func (e *Engine) Pending() []escalation.Item {
	return e.queue.Pending()
}

// Resolution returns the audit record for a resolved report.
func (e *Engine) Resolution(reportID string) (escalation.Resolution, bool) {
	return e.queue.Resolution(reportID)
}

// relatedReports returns report records around the report for triangulation.
func (e *Engine) relatedReports(ctx context.Context, report domain.HazardReport) ([]domain.SourceRecord, error) {
	if report.Location == nil {
		return []domain.SourceRecord{}, nil
	}
	recs, err := e.store.Nearby(ctx, *report.Location, report.CreatedAt, TriangulationRadiusKm, fusion.Window)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Type.IsReport() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Engine) decide(report domain.HazardReport, confidence float64, sources []domain.SourceType) domain.VerificationDecision {
	if e.metrics != nil {
		e.metrics.Decisions.WithLabelValues(strconv.Itoa(int(report.Tier)), string(report.Status)).Inc()
	}
	return domain.NewDecision(report, confidence, sources, e.clock.Now())
}

// settle records an automated terminal decision so the report is never scored
// again.
func (e *Engine) settle(report domain.HazardReport, confidence float64, sources []domain.SourceType) domain.VerificationDecision {
	d := e.decide(report, confidence, sources)
	e.states.settle(d)
	return d
}

func (e *Engine) fusionWrite(outcome string) {
	if e.metrics != nil {
		e.metrics.FusionWrites.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) queueDepth() {
	if e.metrics != nil {
		e.metrics.EscalationQueueDepth.Set(float64(e.queue.Len()))
	}
}

func mergeSources(a, b []domain.SourceType) []domain.SourceType {
	out := make([]domain.SourceType, 0, len(a)+len(b))
	seen := make(map[domain.SourceType]bool, len(a)+len(b))
	for _, list := range [][]domain.SourceType{a, b} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
