// Package geom holds the small geometry value types exchanged between the
// pipelines and the tree: offsets, sizes, rectangles and box constraints.
package geom

import (
	"fmt"
	"math"
)

// Offset is a point or displacement in logical pixels.
type Offset struct {
	X, Y float64
}

// Add returns o translated by d.
func (o Offset) Add(d Offset) Offset { return Offset{o.X + d.X, o.Y + d.Y} }

// Sub returns o - d.
func (o Offset) Sub(d Offset) Offset { return Offset{o.X - d.X, o.Y - d.Y} }

func (o Offset) String() string { return fmt.Sprintf("(%g, %g)", o.X, o.Y) }

// Size is a width and height in logical pixels.
type Size struct {
	Width, Height float64
}

// IsEmpty reports whether the size encloses no area.
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

func (s Size) String() string { return fmt.Sprintf("%gx%g", s.Width, s.Height) }

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min Offset
	Size
}

// RectFrom returns the rectangle at origin with size s.
func RectFrom(origin Offset, s Size) Rect { return Rect{Min: origin, Size: s} }

// Max returns the bottom-right corner.
func (r Rect) Max() Offset { return Offset{r.Min.X + r.Width, r.Min.Y + r.Height} }

// Contains reports whether p lies inside r. The right and bottom edges are
// exclusive.
func (r Rect) Contains(p Offset) bool {
	end := r.Max()
	return p.X >= r.Min.X && p.X < end.X && p.Y >= r.Min.Y && p.Y < end.Y
}

// Intersects reports whether r and s overlap.
func (r Rect) Intersects(s Rect) bool {
	if r.IsEmpty() || s.IsEmpty() {
		return false
	}
	rm, sm := r.Max(), s.Max()
	return r.Min.X < sm.X && s.Min.X < rm.X && r.Min.Y < sm.Y && s.Min.Y < rm.Y
}

func (r Rect) String() string { return fmt.Sprintf("%v+%v", r.Min, r.Size) }

// Constraints bound the size a node may choose during layout.
type Constraints struct {
	MinWidth, MaxWidth   float64
	MinHeight, MaxHeight float64
}

// Tight returns constraints that only admit s.
func Tight(s Size) Constraints {
	return Constraints{s.Width, s.Width, s.Height, s.Height}
}

// Loose returns constraints admitting any size up to s.
func Loose(s Size) Constraints {
	return Constraints{0, s.Width, 0, s.Height}
}

// Unbounded returns constraints with no maximum.
func Unbounded() Constraints {
	return Constraints{0, math.Inf(1), 0, math.Inf(1)}
}

// IsTight reports whether only one size satisfies c.
func (c Constraints) IsTight() bool {
	return c.MinWidth == c.MaxWidth && c.MinHeight == c.MaxHeight
}

// IsBounded reports whether both maxima are finite.
func (c Constraints) IsBounded() bool {
	return !math.IsInf(c.MaxWidth, 1) && !math.IsInf(c.MaxHeight, 1)
}

// Constrain returns the size closest to s that satisfies c.
func (c Constraints) Constrain(s Size) Size {
	return Size{
		Width:  clamp(s.Width, c.MinWidth, c.MaxWidth),
		Height: clamp(s.Height, c.MinHeight, c.MaxHeight),
	}
}

// Biggest returns the largest size satisfying c. Unbounded axes fall back to
// their minimum.
func (c Constraints) Biggest() Size {
	w, h := c.MaxWidth, c.MaxHeight
	if math.IsInf(w, 1) {
		w = c.MinWidth
	}
	if math.IsInf(h, 1) {
		h = c.MinHeight
	}
	return Size{w, h}
}

// Deflate shrinks the maxima (and minima, floored at zero) by insets.
func (c Constraints) Deflate(dw, dh float64) Constraints {
	return Constraints{
		MinWidth:  math.Max(0, c.MinWidth-dw),
		MaxWidth:  math.Max(0, c.MaxWidth-dw),
		MinHeight: math.Max(0, c.MinHeight-dh),
		MaxHeight: math.Max(0, c.MaxHeight-dh),
	}
}

func (c Constraints) String() string {
	return fmt.Sprintf("w[%g,%g] h[%g,%g]", c.MinWidth, c.MaxWidth, c.MinHeight, c.MaxHeight)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
