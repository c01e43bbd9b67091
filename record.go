package slam

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/westphae/quaternion"
)

// Header is output record metadata.
type Header struct {
	// Seq increases by one with every published record of a stream
	Seq uint64 `json:"seq"`
	// Stamp is the time the record refers to
	Stamp time.Time `json:"stamp"`
	// FrameID is the frame the record is expressed in
	FrameID string `json:"frame_id"`
}

// Pose is a 3D pose with a row-major 6x6 covariance over (x, y, z, roll, pitch, yaw).
type Pose struct {
	Position    r3.Vector             `json:"position"`
	Orientation quaternion.Quaternion `json:"orientation"`
	Covariance  [36]float64           `json:"covariance"`
}

// PoseRecord is the published robot pose.
type PoseRecord struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// LandmarkRecord is a single published landmark.
type LandmarkRecord struct {
	IDs         []int     `json:"ids"`
	Confidences []float64 `json:"ids_confidence"`
	Pose        Pose      `json:"pose"`
}

// LandmarkArray is the published set of landmarks.
type LandmarkArray struct {
	Header    Header           `json:"header"`
	Landmarks []LandmarkRecord `json:"markers"`
}
