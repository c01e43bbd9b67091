package measurement

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/westphae/quaternion"
)

// RawDetection is a single marker sighting as reported by the detector.
type RawDetection struct {
	// Position is the marker position in the detector frame
	Position r3.Vector
	// Orientation is the marker orientation in the detector frame
	Orientation quaternion.Quaternion
	// IDs are marker identifier candidates
	IDs []int
	// Confidences stores per-candidate confidence, indexed like IDs
	Confidences []float64
}

// Detection is a batch of marker sightings sharing one detector snapshot.
type Detection struct {
	// Stamp is the detector timestamp
	Stamp time.Time
	// FrameID is the detector frame the markers are expressed in
	FrameID string
	// ViewDirection is the aggregate viewing direction of the detector
	ViewDirection quaternion.Quaternion
	// FOVHorizontal is the horizontal field of view in radians
	FOVHorizontal float64
	// FOVVertical is the vertical field of view in radians
	FOVVertical float64
	// DistanceMin is the minimum detection distance
	DistanceMin float64
	// DistanceMax is the maximum detection distance
	DistanceMax float64
	// DistanceMaxID is the maximum distance at which marker ids are reliable
	DistanceMaxID float64
	// Markers are the individual sightings
	Markers []RawDetection
}

// Gated is a marker sighting which passed range and bearing gating.
type Gated struct {
	IDs         []int
	Confidences []float64
	// Length is the distance of the marker from the robot
	Length float64
	// Angle is the bearing of the marker seen from the robot
	Angle float64
	// Orientation is the marker heading in the robot frame
	Orientation float64
	// Pose is the marker pose in the robot frame
	Pose geom.Pose2D
}

// Bounds are inclusive range and bearing limits.
type Bounds struct {
	RangeMin float64
	RangeMax float64
	AngleMin float64
	AngleMax float64
}

// Set is the measurement set handed to the estimator in a single cycle.
type Set struct {
	Bounds
	// RangeMaxID is the maximum distance at which marker ids are reliable
	RangeMaxID float64
	// Stamp is the detector timestamp of the batch
	Stamp time.Time
	// SensorPose is the detector mounting pose in the robot frame
	SensorPose geom.Pose2D
	// Markers are the accepted sightings in detector order
	Markers []Gated
}

// Len returns the number of accepted sightings.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.Markers)
}
