package scroll

import (
	"math"

	"github.com/Alia5/gazekey/geom"
)

// WheelUnitsPerClick is the number of wheel units in one notch.
const WheelUnitsPerClick = 120

// MaxInterval caps the time step of one sample so a stall does not produce
// a large jump.
const MaxInterval = 0.1

// AxisVelocity returns the signed speed along one axis in clicks per second.
// Positions up to deadzone away from the centre do not scroll.
func AxisVelocity(pos, centre, deadzone, base, acceleration float64) float64 {
	signed := pos - centre
	distance := math.Abs(signed) - deadzone
	if distance <= 0 {
		return 0
	}
	speed := base + distance*acceleration
	if signed < 0 {
		return -speed
	}
	return speed
}

// Velocity returns the scroll velocity in clicks per second for a gaze at p
// around centre. Half of the configured deadzone applies on each side of the
// centre. In Cross mode a diagonal velocity is suppressed entirely.
func Velocity(p, centre geom.Point, mode Mode, speed Speed, deadzoneWidth, deadzoneHeight float64) geom.Vector {
	base, accel := speed.Values()
	var v geom.Vector
	switch mode {
	case Horizontal, Cross, Free:
		v.X = AxisVelocity(p.X, centre.X, deadzoneWidth/2, base, accel)
	}
	switch mode {
	case Vertical, Cross, Free:
		v.Y = AxisVelocity(p.Y, centre.Y, deadzoneHeight/2, base, accel)
	}
	if mode == Cross && v.X != 0 && v.Y != 0 {
		v = geom.Vector{}
	}
	return v
}

// Opacity returns the overlay opacity for a gaze at p: faint near the
// deadzone, opaque towards the bounds edge.
func Opacity(p, centre geom.Point, deadzoneHeight, boundsHeight float64) float64 {
	if boundsHeight <= 0 {
		return 1
	}
	o := 4 * (p.Sub(centre).Length() - deadzoneHeight/2) / boundsHeight
	return math.Max(0.1, math.Min(1, o))
}

// LargestGap returns the largest of the four screen strips left free by
// window: above, below, left and right of it.
func LargestGap(screen, window geom.Rect) geom.Rect {
	gaps := []geom.Rect{
		{X: screen.Left(), Y: screen.Top(), W: screen.W, H: math.Max(0, window.Top()-screen.Top())},
		{X: screen.Left(), Y: window.Bottom(), W: screen.W, H: math.Max(0, screen.Bottom()-window.Bottom())},
		{X: screen.Left(), Y: screen.Top(), W: math.Max(0, window.Left()-screen.Left()), H: screen.H},
		{X: window.Right(), Y: screen.Top(), W: math.Max(0, screen.Right()-window.Right()), H: screen.H},
	}
	best := gaps[0]
	for _, g := range gaps[1:] {
		if g.Area() > best.Area() {
			best = g
		}
	}
	return best
}
