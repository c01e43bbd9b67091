package geom

import (
	"fmt"
	"math"
)

// Pose2D is a planar pose: position (X, Y) and heading Theta in radians.
type Pose2D struct {
	X     float64
	Y     float64
	Theta float64
}

// NewPose2D returns a new planar pose.
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{X: x, Y: y, Theta: theta}
}

// Range returns the distance of the pose position from the origin.
func (p Pose2D) Range() float64 {
	return math.Hypot(p.X, p.Y)
}

// Bearing returns the direction of the pose position seen from the origin.
func (p Pose2D) Bearing() float64 {
	return math.Atan2(p.Y, p.X)
}

// String implements the Stringer interface.
func (p Pose2D) String() string {
	return fmt.Sprintf("Pose2D{X=%.4f Y=%.4f Theta=%.4f}", p.X, p.Y, p.Theta)
}

// NormalizeAngle wraps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}

	return a
}

// AngleDifference returns the signed minimal difference a-b wrapped into (-π, π].
func AngleDifference(a, b float64) float64 {
	return NormalizeAngle(a - b)
}
