package present

import (
	"context"
	"testing"
	"time"

	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/triplebuf"
)

func newFrames() *triplebuf.Buffer[pipeline.Frame] {
	return triplebuf.NewWithClone(pipeline.Frame{}, pipeline.Frame.Clone)
}

func TestPresenterPollEmpty(t *testing.T) {
	p := NewPresenter(newFrames())
	if _, ok := p.Poll(); ok {
		t.Error("Poll() on empty buffer ok = true, want false")
	}
	if _, ok := p.Latest(); ok {
		t.Error("Latest() before any frame ok = true, want false")
	}
}

func TestPresenterCountsDropped(t *testing.T) {
	frames := newFrames()
	var got []uint64
	var drops []uint64
	p := NewPresenter(frames,
		WithSink(SinkFunc(func(f pipeline.Frame) { got = append(got, f.Number) })),
		WithPresentHook(func(d uint64) { drops = append(drops, d) }),
	)

	frames.Write(pipeline.Frame{Number: 1})
	if f, ok := p.Poll(); !ok || f.Number != 1 {
		t.Fatalf("Poll() = %d, %v, want 1, true", f.Number, ok)
	}

	frames.Write(pipeline.Frame{Number: 2})
	frames.Write(pipeline.Frame{Number: 3})
	frames.Write(pipeline.Frame{Number: 4})
	if f, ok := p.Poll(); !ok || f.Number != 4 {
		t.Fatalf("Poll() = %d, %v, want 4, true", f.Number, ok)
	}
	if _, ok := p.Poll(); ok {
		t.Error("Poll() without new frame ok = true, want false")
	}

	stats := p.Stats()
	if stats.Presented != 2 {
		t.Errorf("Presented = %d, want 2", stats.Presented)
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("sink saw %v, want [1 4]", got)
	}
	if len(drops) != 2 || drops[0] != 0 || drops[1] != 2 {
		t.Errorf("hook saw %v, want [0 2]", drops)
	}
	if f, ok := p.Latest(); !ok || f.Number != 4 {
		t.Errorf("Latest() = %d, %v, want 4, true", f.Number, ok)
	}
}

func TestPresenterFirstFrameSkipped(t *testing.T) {
	frames := newFrames()
	p := NewPresenter(frames)

	frames.Write(pipeline.Frame{Number: 1})
	frames.Write(pipeline.Frame{Number: 2})
	p.Poll()

	if got := p.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestPresenterLatestIsCopy(t *testing.T) {
	frames := newFrames()
	p := NewPresenter(frames)

	frames.Write(pipeline.Frame{Number: 1, Layers: []pipeline.Layer{{}}})
	p.Poll()

	f, _ := p.Latest()
	f.Layers[0].Payload = "mutated"
	again, _ := p.Latest()
	if again.Layers[0].Payload != nil {
		t.Errorf("Latest() shares layers with a previous copy")
	}
}

func TestPresenterRun(t *testing.T) {
	frames := newFrames()
	p := NewPresenter(frames, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	frames.Write(pipeline.Frame{Number: 1})
	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().Presented == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	frames.Write(pipeline.Frame{Number: 2})
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if f, _ := p.Latest(); f.Number != 2 {
		t.Errorf("Latest().Number = %d, want 2 after shutdown", f.Number)
	}
}
