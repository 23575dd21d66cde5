package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_engine"

// Metrics holds the Prometheus counters, histograms, and gauges for the engine.
type Metrics struct {
	// Stream processing, labelled by stream={posts,reports}.
	MessagesConsumed        *prometheus.CounterVec
	MessagesProduced        *prometheus.CounterVec
	TransformErrors         *prometheus.CounterVec
	PipelineRunning         *prometheus.GaugeVec
	BatchSize               *prometheus.HistogramVec
	BatchProcessingDuration *prometheus.HistogramVec

	// Signal classification.
	FilterDecisions *prometheus.CounterVec // labels: decision={APPROVE,REJECT}
	FilterReasons   *prometheus.CounterVec // labels: reason
	SignalsAdmitted *prometheus.CounterVec // labels: category, urgency

	// Verification.
	Decisions            *prometheus.CounterVec // labels: tier, status
	ScoringDuration      prometheus.Histogram
	ProviderFailures     *prometheus.CounterVec // labels: provider
	FusionWrites         *prometheus.CounterVec // labels: outcome={ok,conflict,error}
	EscalationQueueDepth prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	stream := []string{"stream"}
	return &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from source topics.",
		}, stream),
		MessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total messages written to sink topics.",
		}, stream),
		TransformErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total messages that could not be processed.",
		}, stream),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the stream pipeline is active, 0 when shut down.",
		}, stream),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}, stream),
		BatchProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-process-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, stream),
		FilterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_decisions_total",
			Help:      "Social post admission decisions.",
		}, []string{"decision"}),
		FilterReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_reasons_total",
			Help:      "Reason codes recorded by the admission filter.",
		}, []string{"reason"}),
		SignalsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_admitted_total",
			Help:      "Hazard signals admitted to the feed.",
		}, []string{"category", "urgency"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Verification decisions by tier and status.",
		}, []string{"tier", "status"}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time to take one report through the automated tiers.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Correlation provider calls that failed or timed out and were scored as zero.",
		}, []string{"provider"}),
		FusionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_writes_total",
			Help:      "Fusion store writes by outcome.",
		}, []string{"outcome"}),
		EscalationQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "escalation_queue_depth",
			Help:      "Reports waiting for human review.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.FilterDecisions,
		m.FilterReasons,
		m.SignalsAdmitted,
		m.Decisions,
		m.ScoringDuration,
		m.ProviderFailures,
		m.FusionWrites,
		m.EscalationQueueDepth,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
