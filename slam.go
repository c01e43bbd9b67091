package slam

import (
	"fmt"
	"time"

	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/milosgajdos/go-markerslam/measurement"
	"gonum.org/v1/gonum/mat"
)

// Technique identifies a SLAM estimator implementation.
type Technique int

const (
	// EKF is Extended Kalman Filter SLAM
	EKF Technique = iota
)

// String implements the Stringer interface.
func (t Technique) String() string {
	switch t {
	case EKF:
		return "EKF"
	default:
		return fmt.Sprintf("Technique(%d)", int(t))
	}
}

// Command is a robot velocity command.
type Command struct {
	// V is linear velocity
	V float64
	// W is angular velocity
	W float64
}

// Estimator is a recursive SLAM state estimator.
type Estimator interface {
	// Cycle runs one predict/update step using command u and measurement set z.
	// z may be nil if no detection arrived since the last cycle.
	Cycle(u Command, z *measurement.Set) error
	// Reset discards all accumulated state
	Reset()
	// SetConfig applies estimator specific configuration
	SetConfig(cfg interface{}) error
	// TimeLastUpdate returns the time of the last state update.
	// It returns false if the estimator has never been updated.
	TimeLastUpdate() (time.Time, bool)
	// Type returns estimator technique
	Type() Technique
	// TypeName returns estimator technique name
	TypeName() string
	// State returns robot pose followed by landmark poses
	State() []geom.Pose2D
	// Cov returns joint state covariance indexed like State
	Cov() mat.Matrix
}

// FrameResolver resolves poses and transforms between named frames.
type FrameResolver interface {
	// TransformPose expresses pose p in the target frame
	TransformPose(target string, p geom.StampedPose) (geom.StampedPose, error)
	// LookupTransform returns the transform from source to target frame at time t.
	// Zero t requests the latest available transform.
	LookupTransform(target, source string, t time.Time) (geom.StampedTransform, error)
}

// Broadcaster publishes transforms between frames.
type Broadcaster interface {
	// SendTransform publishes tf
	SendTransform(tf geom.StampedTransform) error
}

// Sink is the output boundary for estimated state.
type Sink interface {
	// Broadcaster publishes frame corrections
	Broadcaster
	// PublishPose publishes the estimated robot pose
	PublishPose(p PoseRecord) error
	// PublishLandmarks publishes the estimated landmark poses
	PublishLandmarks(l LandmarkArray) error
}
