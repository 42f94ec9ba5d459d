package pipeline

import "github.com/vango-dev/framepipe/pkg/sched"

// Observer receives pipeline events, typically to export them as metrics.
// Methods are called from the processing goroutine and must not block.
type Observer interface {
	ObserveFrame(f Frame)
	ObserveTask(p sched.Priority)
	ObserveError(phase string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ObserveFrame(Frame)         {}
func (NopObserver) ObserveTask(sched.Priority) {}
func (NopObserver) ObserveError(string)        {}
