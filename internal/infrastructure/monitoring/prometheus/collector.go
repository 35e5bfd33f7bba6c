// Package prometheus wraps a private prometheus registry for the pipeline's
// counters and histograms. The CLI has no HTTP surface, so besides an
// http.Handler the collector can flush to a node-exporter textfile.
package prometheus

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
)

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Namespace       string            `mapstructure:"namespace"`
	Subsystem       string            `mapstructure:"subsystem"`
	EnableGoMetrics bool              `mapstructure:"enable_go_metrics"`
	ConstLabels     map[string]string `mapstructure:"const_labels"`
}

// Collector owns a registry and deduplicates registration by fully
// qualified name, so constructing PipelineMetrics twice on one collector
// returns the same underlying vectors.
type Collector struct {
	registry *prometheus.Registry
	config   CollectorConfig
	mu       sync.Mutex
	byName   map[string]prometheus.Collector
	logger   logging.Logger
}

// NewCollector creates a Collector. Namespace is required.
func NewCollector(cfg CollectorConfig, logger logging.Logger) (*Collector, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("prometheus: namespace is required")
	}
	reg := prometheus.NewRegistry()
	if cfg.EnableGoMetrics {
		reg.MustRegister(prometheus.NewGoCollector())
	}
	return &Collector{
		registry: reg,
		config:   cfg,
		byName:   make(map[string]prometheus.Collector),
		logger:   logging.OrNop(logger),
	}, nil
}

// Registry exposes the underlying registry as a Gatherer for tests and
// exporters.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes every gathered metric to path atomically, in the
// format read by the node-exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("prometheus: write textfile %s: %w", path, err)
	}
	c.logger.Debug("metrics textfile written", logging.String("path", path))
	return nil
}

func (c *Collector) register(name string, col prometheus.Collector) prometheus.Collector {
	c.mu.Lock()
	defer c.mu.Unlock()

	fq := prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, name)
	if existing, ok := c.byName[fq]; ok {
		return existing
	}
	if err := c.registry.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c.byName[fq] = are.ExistingCollector
			return are.ExistingCollector
		}
		c.logger.Error("metric registration failed", logging.String("metric", fq), logging.Err(err))
		return col
	}
	c.byName[fq] = col
	return col
}

// Counter registers (or returns) a counter vector.
func (c *Collector) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.config.ConstLabels,
	}, labels)
	return c.register(name, vec).(*prometheus.CounterVec)
}

// Histogram registers (or returns) a histogram vector.
func (c *Collector) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: c.config.ConstLabels,
	}, labels)
	return c.register(name, vec).(*prometheus.HistogramVec)
}
