package geom

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/westphae/quaternion"
)

// Identity is a rotation which does not rotate.
var Identity = quaternion.Quaternion{W: 1}

// Transform is a rigid 3D transform: a rotation followed by a translation.
type Transform struct {
	// Origin is the translation part of the transform
	Origin r3.Vector
	// Rotation is a unit quaternion
	Rotation quaternion.Quaternion
}

// NewTransform creates new transform from rotation q and translation t.
func NewTransform(q quaternion.Quaternion, t r3.Vector) Transform {
	return Transform{Origin: t, Rotation: q}
}

// FromPose2D returns the transform represented by the planar pose p.
func FromPose2D(p Pose2D) Transform {
	return Transform{
		Origin:   r3.Vector{X: p.X, Y: p.Y},
		Rotation: QuaternionFromYaw(p.Theta),
	}
}

// Pose2D projects the transform onto the ground plane.
func (t Transform) Pose2D() Pose2D {
	return Pose2D{X: t.Origin.X, Y: t.Origin.Y, Theta: Yaw(t.Rotation)}
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Conj()
	return Transform{
		Origin:   Rotate(inv, t.Origin).Mul(-1),
		Rotation: inv,
	}
}

// Mul returns the composition t*o: o is applied first.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		Origin:   Rotate(t.Rotation, o.Origin).Add(t.Origin),
		Rotation: quaternion.Prod(t.Rotation, o.Rotation),
	}
}

// Apply transforms the point p.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return Rotate(t.Rotation, p).Add(t.Origin)
}

// String implements the Stringer interface.
func (t Transform) String() string {
	q := t.Rotation
	return fmt.Sprintf("Transform{Origin=%v Rotation=[%.4f %.4f %.4f %.4f]}", t.Origin, q.W, q.X, q.Y, q.Z)
}

// Rotate rotates vector v by unit quaternion q.
func Rotate(q quaternion.Quaternion, v r3.Vector) r3.Vector {
	p := quaternion.Prod(q, quaternion.Quaternion{X: v.X, Y: v.Y, Z: v.Z}, q.Conj())
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// QuaternionFromYaw returns the rotation about the vertical axis by yaw.
func QuaternionFromYaw(yaw float64) quaternion.Quaternion {
	return quaternion.Quaternion{W: math.Cos(yaw / 2), Z: math.Sin(yaw / 2)}
}

// QuaternionFromRPY returns the rotation for fixed-axis roll, pitch and yaw.
func QuaternionFromRPY(roll, pitch, yaw float64) quaternion.Quaternion {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)

	return quaternion.Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// RPY returns roll, pitch and yaw of the rotation q about the fixed X, Y and Z axes.
func RPY(q quaternion.Quaternion) (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))

	// clamp: numerical noise can push |sin| above 1
	sp := 2 * (q.W*q.Y - q.Z*q.X)
	sp = math.Max(-1, math.Min(1, sp))
	pitch = math.Asin(sp)

	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))

	return roll, pitch, yaw
}

// Yaw returns the rotation of q about the vertical axis.
func Yaw(q quaternion.Quaternion) float64 {
	_, _, yaw := RPY(q)
	return yaw
}

// IsIdentity reports whether q is exactly the identity rotation.
func IsIdentity(q quaternion.Quaternion) bool {
	return q.X == 0 && q.Y == 0 && q.Z == 0 && q.W == 1
}
