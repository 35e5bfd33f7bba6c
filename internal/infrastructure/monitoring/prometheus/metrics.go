package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for examples and records.
const (
	OutcomeWithEntities    = "with_entities"
	OutcomeWithoutEntities = "without_entities"
	OutcomeSkipped         = "skipped"
)

// Span reject reasons.
const (
	RejectInvalid     = "invalid"
	RejectOverlapping = "overlapping"
	RejectUnaligned   = "unaligned"
	RejectLabel       = "label"
)

// ResolveDurationBuckets covers sub-millisecond resolution of short resumes
// up to multi-second batches.
var ResolveDurationBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5}

// PipelineMetrics is the set of signals the pipeline reports. Every method
// must be safe for concurrent use.
type PipelineMetrics interface {
	RecordIngested(source string, records, malformed int)
	RecordExample(partition, outcome string)
	RecordSpanRejects(reason string, n int)
	ObserveResolve(d time.Duration)
	RecordCache(hit bool)
}

type promPipelineMetrics struct {
	ingested  *prometheus.CounterVec
	malformed *prometheus.CounterVec
	examples  *prometheus.CounterVec
	rejects   *prometheus.CounterVec
	resolve   *prometheus.HistogramVec
	cache     *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on c.
func NewPipelineMetrics(c *Collector) PipelineMetrics {
	return &promPipelineMetrics{
		ingested:  c.Counter("tasks_ingested_total", "Task records parsed from an export.", "source"),
		malformed: c.Counter("tasks_malformed_total", "Task records skipped as malformed.", "source"),
		examples:  c.Counter("examples_total", "Corpus examples by partition and outcome.", "partition", "outcome"),
		rejects:   c.Counter("span_rejects_total", "Candidate spans discarded, by reason.", "reason"),
		resolve: c.Histogram("resolve_duration_seconds",
			"Time spent resolving one document's candidates.", ResolveDurationBuckets),
		cache: c.Counter("extraction_cache_total", "Extraction cache lookups.", "result"),
	}
}

func (m *promPipelineMetrics) RecordIngested(source string, records, malformed int) {
	m.ingested.WithLabelValues(source).Add(float64(records))
	m.malformed.WithLabelValues(source).Add(float64(malformed))
}

func (m *promPipelineMetrics) RecordExample(partition, outcome string) {
	m.examples.WithLabelValues(partition, outcome).Inc()
}

func (m *promPipelineMetrics) RecordSpanRejects(reason string, n int) {
	if n <= 0 {
		return
	}
	m.rejects.WithLabelValues(reason).Add(float64(n))
}

func (m *promPipelineMetrics) ObserveResolve(d time.Duration) {
	m.resolve.WithLabelValues().Observe(d.Seconds())
}

func (m *promPipelineMetrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// NewNoopPipelineMetrics returns metrics that record nothing.
func NewNoopPipelineMetrics() PipelineMetrics { return noopPipelineMetrics{} }

type noopPipelineMetrics struct{}

func (noopPipelineMetrics) RecordIngested(string, int, int) {}
func (noopPipelineMetrics) RecordExample(string, string)    {}
func (noopPipelineMetrics) RecordSpanRejects(string, int)   {}
func (noopPipelineMetrics) ObserveResolve(time.Duration)    {}
func (noopPipelineMetrics) RecordCache(bool)                {}

// OrNoop returns m, or noop metrics when m is nil.
func OrNoop(m PipelineMetrics) PipelineMetrics {
	if m == nil {
		return noopPipelineMetrics{}
	}
	return m
}
