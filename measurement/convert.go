package measurement

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/westphae/quaternion"
)

// Convert projects a marker pose reported by the detector onto the robot plane.
//
// With altFrame unset the detector reports in the robot plane (x forward,
// y left) and the marker heading is its yaw. With altFrame set the detector
// reports in an optical frame (z forward, x right) and the marker heading is
// derived from its pitch.
func Convert(pos r3.Vector, rot quaternion.Quaternion, altFrame bool) geom.Pose2D {
	_, pitch, yaw := geom.RPY(rot)

	if altFrame {
		return geom.Pose2D{X: pos.Z, Y: -pos.X, Theta: geom.AngleDifference(math.Pi, pitch)}
	}

	return geom.Pose2D{X: pos.X, Y: pos.Y, Theta: yaw}
}

// Gate computes range and bearing of p and reports whether both lie within b.
func Gate(p geom.Pose2D, b Bounds) (length, angle float64, ok bool) {
	length = math.Sqrt(p.X*p.X + p.Y*p.Y)
	angle = math.Atan2(p.Y, p.X)

	if length < b.RangeMin || length > b.RangeMax {
		return length, angle, false
	}

	if angle < b.AngleMin || angle > b.AngleMax {
		return length, angle, false
	}

	return length, angle, true
}
