package present

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/triplebuf"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = time.Second / 60

// Sink receives presented frames. Present is called from the presenter
// goroutine, one frame at a time.
type Sink interface {
	Present(f pipeline.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f pipeline.Frame)

// Present calls fn(f).
func (fn SinkFunc) Present(f pipeline.Frame) { fn(f) }

// Option configures a Presenter.
type Option func(*Presenter)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Presenter) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithSink adds a sink. Sinks run in the order added.
func WithSink(s Sink) Option {
	return func(p *Presenter) {
		p.sinks = append(p.sinks, s)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Presenter) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPresentHook sets a function called after each presented frame with
// the number of frames dropped since the previous one.
func WithPresentHook(fn func(dropped uint64)) Option {
	return func(p *Presenter) {
		p.hook = fn
	}
}

// Presenter reads frames from a triple buffer. Poll and Run must only be
// used from one goroutine; Latest and Stats are safe from any goroutine.
type Presenter struct {
	frames   *triplebuf.Buffer[pipeline.Frame]
	sinks    []Sink
	interval time.Duration
	logger   *slog.Logger
	hook     func(dropped uint64)

	last      uint64
	presented atomic.Uint64
	dropped   atomic.Uint64
	latest    atomic.Pointer[pipeline.Frame]
}

// NewPresenter returns a presenter reading from frames.
func NewPresenter(frames *triplebuf.Buffer[pipeline.Frame], opts ...Option) *Presenter {
	p := &Presenter{
		frames:   frames,
		interval: DefaultInterval,
		logger:   slog.Default().With("component", "present"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll takes the newest frame if one was published since the last call.
// Frames published in between are counted as dropped.
func (p *Presenter) Poll() (pipeline.Frame, bool) {
	if !p.frames.HasNewData() {
		return pipeline.Frame{}, false
	}
	f := p.frames.Read()
	if f.IsZero() || f.Number <= p.last {
		return pipeline.Frame{}, false
	}

	var dropped uint64
	if p.last > 0 {
		dropped = f.Number - p.last - 1
	} else {
		dropped = f.Number - 1
	}
	p.last = f.Number
	p.presented.Add(1)
	p.dropped.Add(dropped)

	latest := f.Clone()
	p.latest.Store(&latest)

	for _, s := range p.sinks {
		s.Present(f)
	}
	if p.hook != nil {
		p.hook(dropped)
	}
	return f, true
}

// Run polls until ctx is done. It always returns nil so it can run inside
// an errgroup next to the frame loop.
func (p *Presenter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// pick up the final frame
			p.Poll()
			p.logger.Debug("presenter stopped",
				"presented", p.presented.Load(),
				"dropped", p.dropped.Load())
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Latest returns a copy of the most recently presented frame.
func (p *Presenter) Latest() (pipeline.Frame, bool) {
	f := p.latest.Load()
	if f == nil {
		return pipeline.Frame{}, false
	}
	return f.Clone(), true
}

// Stats is a snapshot of presenter activity.
type Stats struct {
	Presented uint64 `json:"presented"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the presented and dropped frame counts.
func (p *Presenter) Stats() Stats {
	return Stats{
		Presented: p.presented.Load(),
		Dropped:   p.dropped.Load(),
	}
}
