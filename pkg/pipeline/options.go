package pipeline

import (
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/framepipe/pkg/dirty"
	"github.com/vango-dev/framepipe/pkg/sched"
)

// TracerName is the instrumentation name used for pipeline spans.
const TracerName = "github.com/vango-dev/framepipe/pkg/pipeline"

// settings is shared by every constructor in the package; each reads the
// fields that apply to it.
type settings struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	source   dirty.Source

	parallel       bool
	maxParallelism int
	layerOpt       bool

	targetFPS int
	skip      sched.SkipPolicy
	now       func() time.Time
}

func defaultSettings() settings {
	return settings{
		logger:         slog.Default().With("component", "pipeline"),
		tracer:         otel.Tracer(TracerName),
		observer:       NopObserver{},
		maxParallelism: runtime.GOMAXPROCS(0),
		targetFPS:      sched.DefaultTargetFPS,
		skip:           sched.DefaultSkipPolicy,
		now:            time.Now,
	}
}

func newSettings(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a LayoutPipeline, PaintPipeline or Owner.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for pass and frame spans. The default uses
// the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithObserver sets the receiver of frame, task and error events.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSource makes a pipeline drain src, typically a tree-wide dirty
// tracker, instead of its own set. Owner ignores it.
func WithSource(src dirty.Source) Option {
	return func(s *settings) {
		s.source = src
	}
}

// WithParallelLayout lets the layout pass process nodes of equal depth
// concurrently, at most n at a time. n <= 0 uses GOMAXPROCS.
func WithParallelLayout(n int) Option {
	return func(s *settings) {
		s.parallel = true
		if n > 0 {
			s.maxParallelism = n
		}
	}
}

// WithLayerOptimization enables culling of empty and covered layers.
func WithLayerOptimization(enabled bool) Option {
	return func(s *settings) {
		s.layerOpt = enabled
	}
}

// WithTargetFPS sets the frame rate the Owner budgets for.
func WithTargetFPS(fps int) Option {
	return func(s *settings) {
		if fps > 0 {
			s.targetFPS = fps
		}
	}
}

// WithSkipPolicy sets the frame skip policy of the Owner's budget.
func WithSkipPolicy(p sched.SkipPolicy) Option {
	return func(s *settings) { s.skip = p }
}

// WithClock replaces time.Now for the Owner's frame budget.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
