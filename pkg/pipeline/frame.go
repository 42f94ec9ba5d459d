package pipeline

import "time"

// Frame is the result of one BuildFrame call, as handed to the presentation
// goroutine.
type Frame struct {
	// Number counts published frames starting at 1. Zero is the empty
	// frame a buffer starts with.
	Number uint64
	// Layers holds the layers painted this frame, in paint order.
	Layers []Layer

	Rebuilt int
	LaidOut int
	Painted int
	Tasks   int

	// Duration is the time from frame start to publication.
	Duration time.Duration
	// Janky is set when Duration exceeded the frame budget.
	Janky   bool
	BuiltAt time.Time
}

// Clone returns a copy of f that shares no memory with it.
func (f Frame) Clone() Frame {
	if f.Layers != nil {
		f.Layers = append([]Layer(nil), f.Layers...)
	}
	return f
}

// IsZero reports whether f is the empty initial frame.
func (f Frame) IsZero() bool { return f.Number == 0 }
