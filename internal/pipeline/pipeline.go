package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into zero or more output events. Returning
// no events drops the message without counting it as an error.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) ([]domain.OutputEvent, error)
}

// Preparer is implemented by transformers that must see a whole batch before
// any message in it is transformed. A Prepare error fails the batch, which is
// retried without committing.
type Preparer interface {
	Prepare(ctx context.Context, batch []domain.RawEvent) error
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline orchestrates the extract-transform-load loop for one stream.
type Pipeline struct {
	stream      string
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	health      health
	batchSize   int
	workers     int

	// retry holds a batch whose prepare failed and reload the output of a
	// batch whose load failed. Either is handled before anything new is
	// extracted; reloads are not transformed again.
	retry  []domain.RawEvent
	reload *pendingLoad
}

// pendingLoad is transformed output waiting to be loaded and committed.
type pendingLoad struct {
	events []domain.OutputEvent
	raws   []domain.RawEvent
}

// New creates a Pipeline for the named stream. Up to workers messages of a
// batch are transformed concurrently; output order always follows input order.
func New(stream string, e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		stream:      stream,
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger.With("stream", stream),
		metrics:     metrics,
		batchSize:   batchSize,
		workers:     workers,
	}
}

// health tracks whether the loop is running and whether its last stage
// failed. A quiet topic is healthy.
type health struct {
	mu      sync.Mutex
	running bool
	lastErr error
}

func (h *health) set(running bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = running
	h.lastErr = err
}

func (h *health) check(stream string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return errors.New(stream + " pipeline is not running")
	}
	if h.lastErr != nil {
		return fmt.Errorf("%s pipeline failing: %w", stream, h.lastErr)
	}
	return nil
}

// CheckReadiness returns nil while the loop is running and its last extract,
// prepare or load succeeded. Waiting for messages counts as ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	return p.health.check(p.stream)
}

// Ready reports whether CheckReadiness would pass.
func (p *Pipeline) Ready() bool {
	return p.health.check(p.stream) == nil
}

func (p *Pipeline) markFailing(err error) { p.health.set(true, err) }
func (p *Pipeline) markHealthy()          { p.health.set(true, nil) }

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "workers", p.workers)
	running := p.metrics.PipelineRunning.WithLabelValues(p.stream)
	running.Set(1)
	defer running.Set(0)
	p.health.set(true, nil)
	defer p.health.set(false, nil)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	if pl := p.reload; pl != nil {
		p.reload = nil
		loaded, ok := p.load(ctx, pl, backoff, maxBackoff)
		if loaded > 0 {
			p.metrics.BatchProcessingDuration.WithLabelValues(p.stream).Observe(time.Since(start).Seconds())
		}
		return ok
	}

	rawBatch := p.retry
	p.retry = nil
	if rawBatch == nil {
		var err error
		rawBatch, err = p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Error("extract batch failed", "error", err)
			p.markFailing(err)
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		if len(rawBatch) == 0 {
			return ctx.Err() == nil
		}
		p.metrics.MessagesConsumed.WithLabelValues(p.stream).Add(float64(len(rawBatch)))
		p.metrics.BatchSize.WithLabelValues(p.stream).Observe(float64(len(rawBatch)))
	}

	if prep, ok := p.transformer.(Preparer); ok {
		if err := prep.Prepare(ctx, rawBatch); err != nil {
			p.logger.Error("prepare batch failed", "error", err, "batch_size", len(rawBatch))
			p.retry = rawBatch
			p.markFailing(err)
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
	}
	*backoff = 200 * time.Millisecond

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}
	if p.reload == nil {
		p.markHealthy()
	}
	if loaded > 0 {
		p.metrics.BatchProcessingDuration.WithLabelValues(p.stream).Observe(time.Since(start).Seconds())
	}
	return true
}

// transformResult is the outcome of transforming one message of a batch.
type transformResult struct {
	out []domain.OutputEvent
	err error
}

// transformAndLoad transforms the batch, loads the successes, and commits
// offsets. Returns the number of loaded events and false if the pipeline
// should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	results := p.transformAll(ctx, rawBatch)

	outBatch := make([]domain.OutputEvent, 0, len(rawBatch))
	successfulRaws := make([]domain.RawEvent, 0, len(rawBatch))
	for i, raw := range rawBatch {
		if err := results[i].err; err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.WithLabelValues(p.stream).Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		if len(results[i].out) == 0 {
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, results[i].out...)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}
	return p.load(ctx, &pendingLoad{events: outBatch, raws: successfulRaws}, backoff, maxBackoff)
}

// load writes pl and commits its messages. On failure pl is kept for the
// next cycle.
func (p *Pipeline) load(ctx context.Context, pl *pendingLoad, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	if err := p.loader.LoadBatch(ctx, pl.events); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(pl.events))
		p.reload = pl
		p.markFailing(err)
		return 0, p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	*backoff = 200 * time.Millisecond

	p.metrics.MessagesProduced.WithLabelValues(p.stream).Add(float64(len(pl.events)))
	for _, raw := range pl.raws {
		p.commitOffset(ctx, raw)
	}
	p.markHealthy()
	return len(pl.events), true
}

// transformAll runs the transformer over the batch with at most p.workers
// messages in flight.
func (p *Pipeline) transformAll(ctx context.Context, rawBatch []domain.RawEvent) []transformResult {
	results := make([]transformResult, len(rawBatch))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, raw := range rawBatch {
		g.Go(func() error {
			out, err := p.transformer.Transform(ctx, raw)
			results[i] = transformResult{out: out, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
