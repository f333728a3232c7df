// Package geometry provides the rectangle algebra used by figure region
// resolution. Coordinates follow the page layout convention: the origin is
// the top-left corner, X grows rightward and Y grows downward.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Rect is an immutable axis-aligned rectangle given by its two corners.
// A Rect with X1 <= X0 or Y1 <= Y0 is empty.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// R is shorthand for Rect{x0, y0, x1, y1}.
func R(x0, y0, x1, y1 float64) Rect {
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Width returns the horizontal extent, never negative.
func (r Rect) Width() float64 { return math.Max(0, r.X1-r.X0) }

// Height returns the vertical extent, never negative.
func (r Rect) Height() float64 { return math.Max(0, r.Y1-r.Y0) }

// Area returns Width * Height.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// IsEmpty reports whether the rectangle encloses no area.
func (r Rect) IsEmpty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Union returns the smallest rectangle containing both r and o. Empty
// operands are ignored so that Rect{} acts as the identity.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Intersect returns the overlap of r and o, or Rect{} when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
	if out.IsEmpty() {
		return Rect{}
	}
	return out
}

// Intersects reports whether r and o share a region of positive area.
func (r Rect) Intersects(o Rect) bool { return !r.Intersect(o).IsEmpty() }

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X0 >= r.X0 && o.Y0 >= r.Y0 && o.X1 <= r.X1 && o.Y1 <= r.Y1
}

// OverlapsX reports whether the horizontal span of r overlaps [x0, x1] by
// more than a single point.
func (r Rect) OverlapsX(x0, x1 float64) bool {
	return math.Min(r.X1, x1) > math.Max(r.X0, x0)
}

// Translate shifts the rectangle by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X0: r.X0 + dx, Y0: r.Y0 + dy, X1: r.X1 + dx, Y1: r.Y1 + dy}
}

// Scale multiplies every coordinate by s.
func (r Rect) Scale(s float64) Rect {
	return Rect{X0: r.X0 * s, Y0: r.Y0 * s, X1: r.X1 * s, Y1: r.Y1 * s}
}

// Expand grows the rectangle by margin on all four sides.
func (r Rect) Expand(margin float64) Rect {
	return Rect{X0: r.X0 - margin, Y0: r.Y0 - margin, X1: r.X1 + margin, Y1: r.Y1 + margin}
}

// Normalize swaps corners so that X0 <= X1 and Y0 <= Y1.
func (r Rect) Normalize() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

// Image converts the rectangle to integer pixel bounds, rounding outward.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X0)), int(math.Floor(r.Y0)),
		int(math.Ceil(r.X1)), int(math.Ceil(r.Y1)),
	)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f, %.1f)", r.X0, r.Y0, r.X1, r.Y1)
}

// UnionAll folds Union over rs. It returns Rect{} for no input.
func UnionAll(rs ...Rect) Rect {
	var out Rect
	for _, r := range rs {
		out = out.Union(r)
	}
	return out
}
