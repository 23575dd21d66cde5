package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/hazard-fusion-service/internal/classifier"
	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
	"github.com/couchcryptid/hazard-fusion-service/internal/verification"
)

// PostProcessor admits social posts into the signal feed. Approved posts are
// classified, registered in the fusion store and emitted as HazardSignals.
// Rejected posts are dropped.
type PostProcessor struct {
	store   *fusion.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPostProcessor creates a PostProcessor writing admitted signals to store.
func NewPostProcessor(store *fusion.Store, logger *slog.Logger, metrics *observability.Metrics) *PostProcessor {
	return &PostProcessor{store: store, logger: logger, metrics: metrics}
}

// Prepare registers every admitted post of the batch in the fusion store
// before any report batch can read them back. Unparseable posts are left for
// Transform to report.
func (p *PostProcessor) Prepare(ctx context.Context, batch []domain.RawEvent) error {
	for _, raw := range batch {
		post, err := domain.ParseRawPost(raw)
		if err != nil {
			continue
		}
		if classifier.Filter(post).Decision != domain.FilterApprove {
			continue
		}
		rec, err := domain.NewSignalSource(classifier.Classify(post))
		if err != nil {
			continue
		}
		if err := p.store.AddSource(ctx, rec); err != nil {
			p.fusionWrite(err)
			return fmt.Errorf("register signal %s: %w", post.ID, err)
		}
		p.fusionWrite(nil)
	}
	return nil
}

func (p *PostProcessor) Transform(_ context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error) {
	post, err := domain.ParseRawPost(raw)
	if err != nil {
		return nil, err
	}

	verdict := classifier.Filter(post)
	p.metrics.FilterDecisions.WithLabelValues(string(verdict.Decision)).Inc()
	for _, code := range verdict.ReasonCodes {
		p.metrics.FilterReasons.WithLabelValues(code).Inc()
	}
	if verdict.Decision != domain.FilterApprove {
		p.logger.Debug("post rejected", "post_id", post.ID, "reasons", verdict.ReasonCodes)
		return nil, nil
	}

	signal := classifier.Classify(post)
	p.metrics.SignalsAdmitted.WithLabelValues(string(signal.HazardCategory), string(signal.Urgency)).Inc()

	value, err := json.Marshal(signal)
	if err != nil {
		return nil, fmt.Errorf("marshal signal %s: %w", signal.ID, err)
	}
	return []domain.OutputEvent{{
		Key:   []byte(signal.ID),
		Value: value,
		Headers: map[string]string{
			"hazard_category": string(signal.HazardCategory),
			"urgency":         string(signal.Urgency),
			"credible":        strconv.FormatBool(signal.Credible),
		},
	}}, nil
}

func (p *PostProcessor) fusionWrite(err error) {
	switch {
	case err == nil:
		p.metrics.FusionWrites.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrStoreInconsistency):
		p.metrics.FusionWrites.WithLabelValues("conflict").Inc()
	default:
		p.metrics.FusionWrites.WithLabelValues("error").Inc()
	}
}

// ReportProcessor runs submitted hazard reports through verification and emits
// one VerificationDecision per report, optionally enriched with a place name.
type ReportProcessor struct {
	engine   *verification.Engine
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewReportProcessor creates a ReportProcessor. Pass a nil geocoder to disable
// place name enrichment.
func NewReportProcessor(engine *verification.Engine, geocoder domain.Geocoder, logger *slog.Logger) *ReportProcessor {
	return &ReportProcessor{engine: engine, geocoder: geocoder, logger: logger}
}

// Prepare registers the whole batch in the fusion store so that reports
// arriving together corroborate one another.
func (p *ReportProcessor) Prepare(ctx context.Context, batch []domain.RawEvent) error {
	for _, raw := range batch {
		report, err := domain.ParseRawReport(raw)
		if err != nil {
			continue
		}
		if err := p.engine.Register(ctx, report); err != nil {
			return fmt.Errorf("register report %s: %w", report.ID, err)
		}
	}
	return nil
}

func (p *ReportProcessor) Transform(ctx context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error) {
	report, err := domain.ParseRawReport(raw)
	if err != nil {
		return nil, err
	}

	report, decision, err := p.engine.Verify(ctx, report)
	if errors.Is(err, domain.ErrTerminal) {
		p.logger.Debug("report already settled, skipping", "report_id", report.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	decision = domain.EnrichDecisionWithGeocoding(ctx, decision, p.geocoder, p.logger)
	return decisionEvents(decision)
}

// decisionEvents serializes a decision keyed by its report ID.
func decisionEvents(d domain.VerificationDecision) ([]domain.OutputEvent, error) {
	value, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal decision for %s: %w", d.ReportID, err)
	}
	return []domain.OutputEvent{{
		Key:   []byte(d.ReportID),
		Value: value,
		Headers: map[string]string{
			"status":           string(d.Status),
			"tier":             strconv.Itoa(int(d.Tier)),
			"confidence_level": d.ConfidenceLevel,
		},
	}}, nil
}

// DecisionPublisher emits analyst resolutions on the decision stream.
type DecisionPublisher struct {
	loader BatchLoader
}

// NewDecisionPublisher creates a DecisionPublisher writing through loader.
func NewDecisionPublisher(loader BatchLoader) *DecisionPublisher {
	return &DecisionPublisher{loader: loader}
}

// Publish writes a single decision.
func (p *DecisionPublisher) Publish(ctx context.Context, d domain.VerificationDecision) error {
	events, err := decisionEvents(d)
	if err != nil {
		return err
	}
	return p.loader.LoadBatch(ctx, events)
}

// MultiLoader fans a batch out to several loaders in order, stopping at the
// first failure.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	for _, l := range m {
		if err := l.LoadBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
