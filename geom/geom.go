// Package geom holds the screen-space primitives shared by the scroll loop,
// the selection dispatcher and the window resolvers.
//
// Coordinates are in screen pixels with the origin at the top-left corner of
// the virtual screen and Y growing downwards.
package geom

import (
	"fmt"
	"math"
)

// Point is a position on the virtual screen.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Vector { return Vector{X: p.X - q.X, Y: p.Y - q.Y} }

// Add offsets p by v.
func (p Point) Add(v Vector) Point { return Point{X: p.X + v.X, Y: p.Y + v.Y} }

func (p Point) String() string { return fmt.Sprintf("(%.1f,%.1f)", p.X, p.Y) }

// Vector is a displacement or a rate along both axes.
type Vector struct {
	X, Y float64
}

// Length returns the euclidean length of v.
func (v Vector) Length() float64 { return math.Hypot(v.X, v.Y) }

// Scale multiplies both components by f.
func (v Vector) Scale(f float64) Vector { return Vector{X: v.X * f, Y: v.Y * f} }

// Add returns the component-wise sum.
func (v Vector) Add(o Vector) Vector { return Vector{X: v.X + o.X, Y: v.Y + o.Y} }

// Rect is an axis-aligned rectangle. A rectangle with a non-positive width or
// height is empty.
type Rect struct {
	X, Y, W, H float64
}

// RectFromPoints returns the smallest rectangle spanning a and b.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(a.X - b.X),
		H: math.Abs(a.Y - b.Y),
	}
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// TopLeft returns the rectangle origin.
func (r Rect) TopLeft() Point { return Point{X: r.X, Y: r.Y} }

// Empty reports whether r covers no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Area returns W*H, or 0 for an empty rectangle.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Centre returns the centroid of r.
func (r Rect) Centre() Point { return Point{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	if r.Empty() {
		return false
	}
	return p.X >= r.Left() && p.X <= r.Right() && p.Y >= r.Top() && p.Y <= r.Bottom()
}

// Intersect returns the overlap of r and o. The result is the zero Rect when
// they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	left := math.Max(r.Left(), o.Left())
	top := math.Max(r.Top(), o.Top())
	right := math.Min(r.Right(), o.Right())
	bottom := math.Min(r.Bottom(), o.Bottom())
	if right <= left || bottom <= top {
		return Rect{}
	}
	return Rect{X: left, Y: top, W: right - left, H: bottom - top}
}

// Offset translates r by v.
func (r Rect) Offset(v Vector) Rect {
	return Rect{X: r.X + v.X, Y: r.Y + v.Y, W: r.W, H: r.H}
}

// Inflate grows r by dx on the left and right and by dy on the top and bottom.
func (r Rect) Inflate(dx, dy float64) Rect {
	return Rect{X: r.X - dx, Y: r.Y - dy, W: r.W + 2*dx, H: r.H + 2*dy}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.0f,%.0f %.0fx%.0f]", r.X, r.Y, r.W, r.H)
}

// RectAround returns a w by h rectangle centred on c.
func RectAround(c Point, w, h float64) Rect {
	return Rect{X: c.X - w/2, Y: c.Y - h/2, W: w, H: h}
}

// Thickness describes the four distances between an outer and an inner
// rectangle.
type Thickness struct {
	Left, Top, Right, Bottom float64
}

// MarginsAround returns the distances from each edge of outer to the matching
// edge of inner.
func MarginsAround(outer, inner Rect) Thickness {
	return Thickness{
		Left:   inner.Left() - outer.Left(),
		Top:    inner.Top() - outer.Top(),
		Right:  outer.Right() - inner.Right(),
		Bottom: outer.Bottom() - inner.Bottom(),
	}
}
