package sched

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DefaultTargetFPS is the frame rate used when none is configured.
	DefaultTargetFPS = 60

	// deadlineNearRatio is the share of the frame after which the deadline
	// counts as near.
	deadlineNearRatio = 0.8
)

// SkipMode selects when a frame loop should give up a frame slot after
// missed deadlines.
type SkipMode int

const (
	// SkipNever never skips; overrunning frames may stutter.
	SkipNever SkipMode = iota
	// SkipOnDeadlineMiss skips after any frame that missed its deadline.
	SkipOnDeadlineMiss
	// SkipOnConsecutiveMisses skips once a run of missed deadlines reaches
	// the policy threshold.
	SkipOnConsecutiveMisses
)

var skipModeNames = [...]string{
	SkipNever:               "never",
	SkipOnDeadlineMiss:      "deadline-miss",
	SkipOnConsecutiveMisses: "consecutive-misses",
}

func (m SkipMode) String() string {
	if m >= 0 && int(m) < len(skipModeNames) {
		return skipModeNames[m]
	}
	return fmt.Sprintf("SkipMode(%d)", int(m))
}

// ParseSkipMode parses the String form of a SkipMode, case-insensitively.
func ParseSkipMode(s string) (SkipMode, error) {
	for m, name := range skipModeNames {
		if strings.EqualFold(s, name) {
			return SkipMode(m), nil
		}
	}
	return SkipNever, fmt.Errorf("unknown skip mode %q", s)
}

// SkipPolicy is a SkipMode plus, for SkipOnConsecutiveMisses, the number of
// misses in a row that triggers a skip.
type SkipPolicy struct {
	Mode      SkipMode
	Threshold int
}

// DefaultSkipPolicy skips after two missed deadlines in a row.
var DefaultSkipPolicy = SkipPolicy{Mode: SkipOnConsecutiveMisses, Threshold: 2}

// FrameBudget tracks time spent in the current frame against the target
// frame duration, and counts frames that overran it.
//
// Start, Finish and the time queries belong to the frame goroutine. The
// counters may be read from anywhere.
type FrameBudget struct {
	frame time.Duration
	now   func() time.Time

	started time.Time
	running bool

	policy SkipPolicy

	frames      atomic.Int64
	janky       atomic.Int64
	skipped     atomic.Int64
	last        atomic.Int64
	missed      atomic.Bool
	consecutive atomic.Int64
}

// BudgetOption configures a FrameBudget.
type BudgetOption func(*FrameBudget)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) BudgetOption {
	return func(b *FrameBudget) {
		if now != nil {
			b.now = now
		}
	}
}

// WithSkipPolicy sets the policy ShouldSkipFrame applies. A threshold below
// one is treated as one.
func WithSkipPolicy(p SkipPolicy) BudgetOption {
	return func(b *FrameBudget) {
		b.policy = p
		if b.policy.Threshold < 1 {
			b.policy.Threshold = 1
		}
	}
}

// NewFrameBudget returns a budget for targetFPS frames per second. A
// non-positive value selects DefaultTargetFPS.
func NewFrameBudget(targetFPS int, opts ...BudgetOption) *FrameBudget {
	if targetFPS <= 0 {
		targetFPS = DefaultTargetFPS
	}
	b := &FrameBudget{
		frame:  time.Second / time.Duration(targetFPS),
		now:    time.Now,
		policy: DefaultSkipPolicy,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FrameDuration returns the time available to one frame.
func (b *FrameBudget) FrameDuration() time.Duration { return b.frame }

// Start begins a new frame.
func (b *FrameBudget) Start() {
	b.started = b.now()
	b.running = true
}

// Elapsed returns the time since Start, or zero outside a frame.
func (b *FrameBudget) Elapsed() time.Duration {
	if !b.running {
		return 0
	}
	return b.now().Sub(b.started)
}

// Remaining returns the time left in the frame, never negative.
func (b *FrameBudget) Remaining() time.Duration {
	return max(b.frame-b.Elapsed(), 0)
}

// IsOverBudget reports whether the frame has used all of its time.
func (b *FrameBudget) IsOverBudget() bool {
	return b.running && b.Elapsed() >= b.frame
}

// IsDeadlineNear reports whether more than 80% of the frame is used.
func (b *FrameBudget) IsDeadlineNear() bool {
	return b.running && float64(b.Elapsed()) > float64(b.frame)*deadlineNearRatio
}

// Finish ends the frame, updates the jank counters and returns the frame's
// duration. A frame is janky, and missed its deadline, when it overran its
// budget; each further whole frame duration it consumed counts as a skipped
// frame.
func (b *FrameBudget) Finish() time.Duration {
	elapsed := b.Elapsed()
	b.running = false

	b.frames.Add(1)
	b.last.Store(int64(elapsed))
	if elapsed > b.frame {
		b.janky.Add(1)
		b.missed.Store(true)
		b.consecutive.Add(1)
		if extra := int64(elapsed/b.frame) - 1; extra > 0 {
			b.skipped.Add(extra)
		}
	} else {
		b.missed.Store(false)
		b.consecutive.Store(0)
	}
	return elapsed
}

// Policy returns the skip policy in effect.
func (b *FrameBudget) Policy() SkipPolicy { return b.policy }

// DeadlineMissed reports whether the most recently finished frame overran
// its budget.
func (b *FrameBudget) DeadlineMissed() bool { return b.missed.Load() }

// ConsecutiveMisses returns the length of the current run of missed
// deadlines.
func (b *FrameBudget) ConsecutiveMisses() int { return int(b.consecutive.Load()) }

// ShouldSkipFrame reports whether, under the skip policy, the next frame
// slot should be given up.
func (b *FrameBudget) ShouldSkipFrame() bool {
	switch b.policy.Mode {
	case SkipOnDeadlineMiss:
		return b.missed.Load()
	case SkipOnConsecutiveMisses:
		return b.consecutive.Load() >= int64(b.policy.Threshold)
	default:
		return false
	}
}

// SkipFrame records a frame slot given up without building, and resets the
// miss tracking so the following slot is built.
func (b *FrameBudget) SkipFrame() {
	b.running = false
	b.skipped.Add(1)
	b.missed.Store(false)
	b.consecutive.Store(0)
}

// Frames returns the number of finished frames.
func (b *FrameBudget) Frames() int64 { return b.frames.Load() }

// JankyFrames returns the number of frames that overran the budget.
func (b *FrameBudget) JankyFrames() int64 { return b.janky.Load() }

// SkippedFrames returns the number of frame slots lost to overruns or given
// up through SkipFrame.
func (b *FrameBudget) SkippedFrames() int64 { return b.skipped.Load() }

// LastFrame returns the duration of the most recently finished frame.
func (b *FrameBudget) LastFrame() time.Duration { return time.Duration(b.last.Load()) }

// JankRate returns the share of janky frames, in [0, 1].
func (b *FrameBudget) JankRate() float64 {
	frames := b.frames.Load()
	if frames == 0 {
		return 0
	}
	return float64(b.janky.Load()) / float64(frames)
}
