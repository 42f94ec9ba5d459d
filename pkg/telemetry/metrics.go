package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/sched"
)

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "framepipe").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for frame duration, in seconds.
	// Default: 1ms to ~260ms, covering 240 Hz to 4 Hz frames.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collector.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the frame duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "framepipe",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 9),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector exports pipeline activity as Prometheus metrics. It implements
// pipeline.Observer.
type Collector struct {
	config MetricsConfig

	framesTotal     prometheus.Counter
	jankyFrames     prometheus.Counter
	frameDuration   prometheus.Histogram
	rebuiltNodes    prometheus.Counter
	laidOutNodes    prometheus.Counter
	paintedLayers   prometheus.Counter
	frameErrors     *prometheus.CounterVec
	tasksExecuted   *prometheus.CounterVec
	hitTestLookups  *prometheus.CounterVec
	framesPresented prometheus.Counter
	framesDropped   prometheus.Counter
	subscribers     prometheus.Gauge
}

// NewCollector creates and registers the pipeline metrics.
//
// Metrics collected:
//   - framepipe_frames_total: Counter of published frames
//   - framepipe_janky_frames_total: Counter of frames over budget
//   - framepipe_frame_duration_seconds: Histogram of frame build time
//   - framepipe_rebuilt_nodes_total, framepipe_laid_out_nodes_total,
//     framepipe_painted_layers_total: per-frame work
//   - framepipe_frame_errors_total{phase}: failed frames by phase
//   - framepipe_tasks_executed_total{priority}: scheduled tasks run
//   - framepipe_hit_test_lookups_total{result}: hit-test cache hits and misses
//   - framepipe_frames_presented_total, framepipe_frames_dropped_total:
//     presentation side
//   - framepipe_stream_subscribers: connected frame stream clients
func NewCollector(opts ...MetricsOption) *Collector {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, []string{label})
	}

	return &Collector{
		config:        config,
		framesTotal:   counter("frames_total", "Total number of published frames"),
		jankyFrames:   counter("janky_frames_total", "Total number of frames that overran the frame budget"),
		rebuiltNodes:  counter("rebuilt_nodes_total", "Total number of nodes rebuilt"),
		laidOutNodes:  counter("laid_out_nodes_total", "Total number of nodes laid out by the layout pass"),
		paintedLayers: counter("painted_layers_total", "Total number of layers produced by the paint pass"),
		frameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_duration_seconds",
			Help:        "Time from frame start to publication in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		frameErrors:     counterVec("frame_errors_total", "Total number of failed frames by phase", "phase"),
		tasksExecuted:   counterVec("tasks_executed_total", "Total number of scheduled tasks run by priority", "priority"),
		hitTestLookups:  counterVec("hit_test_lookups_total", "Total hit-test cache lookups by result", "result"),
		framesPresented: counter("frames_presented_total", "Total number of frames taken by the presenter"),
		framesDropped:   counter("frames_dropped_total", "Total number of frames overwritten before presentation"),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stream_subscribers",
			Help:        "Number of connected frame stream subscribers",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveFrame implements pipeline.Observer.
func (c *Collector) ObserveFrame(f pipeline.Frame) {
	c.framesTotal.Inc()
	if f.Janky {
		c.jankyFrames.Inc()
	}
	c.frameDuration.Observe(f.Duration.Seconds())
	c.rebuiltNodes.Add(float64(f.Rebuilt))
	c.laidOutNodes.Add(float64(f.LaidOut))
	c.paintedLayers.Add(float64(f.Painted))
}

// ObserveTask implements pipeline.Observer.
func (c *Collector) ObserveTask(p sched.Priority) {
	c.tasksExecuted.WithLabelValues(p.String()).Inc()
}

// ObserveError implements pipeline.Observer.
func (c *Collector) ObserveError(phase string) {
	c.frameErrors.WithLabelValues(phase).Inc()
}

// ObserveHitTest records one hit-test cache lookup. It matches the
// hittest.WithObserver callback signature.
func (c *Collector) ObserveHitTest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.hitTestLookups.WithLabelValues(result).Inc()
}

// ObservePresent records a frame taken by the presenter and the number of
// frames overwritten since the previous one.
func (c *Collector) ObservePresent(dropped uint64) {
	c.framesPresented.Inc()
	if dropped > 0 {
		c.framesDropped.Add(float64(dropped))
	}
}

// SetSubscribers records the number of frame stream subscribers.
func (c *Collector) SetSubscribers(n int) {
	c.subscribers.Set(float64(n))
}

// WatchOwner registers gauges that sample o's queue and budget state at
// scrape time.
func (c *Collector) WatchOwner(o *pipeline.Owner) {
	factory := promauto.With(c.config.Registry)
	gauge := func(name, help string, fn func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.config.ConstLabels,
		}, fn)
	}
	gauge("tasks_pending", "Number of scheduled tasks waiting to run", func() float64 {
		return float64(o.Tasks().Len())
	})
	gauge("jank_rate", "Share of frames that overran the budget", func() float64 {
		return o.Budget().JankRate()
	})
	gauge("last_frame_seconds", "Duration of the most recent frame in seconds", func() float64 {
		return o.Budget().LastFrame().Seconds()
	})
}

var _ pipeline.Observer = (*Collector)(nil)
