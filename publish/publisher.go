package publish

import (
	"fmt"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/covariance"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/pkg/errors"
)

// State is the publication state within a single cycle.
type State int

const (
	// Idle means nothing has been published in the current cycle
	Idle State = iota
	// Updated means the estimator had an update and the correction was attempted
	Updated
	// Published means pose and landmarks were handed to the sink
	Published
)

// String implements the Stringer interface.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Updated:
		return "Updated"
	case Published:
		return "Published"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Publisher publishes estimator state once per cycle.
type Publisher struct {
	composer *Composer
	sink     slam.Sink
	frames   Frames
	logger   golog.Logger
	// poseSeq and landmarkSeq are per stream sequence numbers
	poseSeq     uint64
	landmarkSeq uint64
	state       State
}

// NewPublisher creates new Publisher and returns it.
func NewPublisher(resolver slam.FrameResolver, sink slam.Sink, frames Frames, logger golog.Logger) *Publisher {
	return &Publisher{
		composer: NewComposer(resolver, frames),
		sink:     sink,
		frames:   frames,
		logger:   logger,
	}
}

// State returns the state reached in the last cycle.
func (p *Publisher) State() State {
	return p.state
}

// Publish publishes the map correction, the robot pose and the landmarks of est.
// Nothing is published if est has never been updated. A failed correction is
// logged and skipped. It returns error if the estimator state and covariance
// are out of sync, in which case nothing is published.
func (p *Publisher) Publish(est slam.Estimator) error {
	p.state = Idle

	stamp, ok := est.TimeLastUpdate()
	if !ok {
		return nil
	}

	yt := est.State()
	cov, err := covariance.Marginals(len(yt), est.Cov())
	if err != nil {
		return errors.Wrap(err, "publish")
	}

	p.state = Updated

	tf, err := p.composer.Compose(yt[0], stamp)
	if err != nil {
		p.logger.Errorw("map correction skipped", "op", "publish", "error", err.Error())
	} else if err := p.sink.SendTransform(tf); err != nil {
		p.logger.Errorw("failed to send map correction", "op", "publish", "error", err.Error())
	}

	p.poseSeq++
	pose := slam.PoseRecord{
		Header: slam.Header{Seq: p.poseSeq, Stamp: stamp, FrameID: p.frames.Map},
		Pose:   newPose(yt[0], cov[0]),
	}

	p.landmarkSeq++
	landmarks := slam.LandmarkArray{
		Header:    slam.Header{Seq: p.landmarkSeq, Stamp: stamp, FrameID: p.frames.Map},
		Landmarks: make([]slam.LandmarkRecord, len(yt)-1),
	}
	for i := range landmarks.Landmarks {
		landmarks.Landmarks[i] = slam.LandmarkRecord{
			IDs:         []int{i + 1},
			Confidences: []float64{1.0},
			Pose:        newPose(yt[i+1], cov[i+1]),
		}
	}

	if err := p.sink.PublishPose(pose); err != nil {
		p.logger.Errorw("failed to publish pose", "op", "publish", "error", err.Error())
	}

	if err := p.sink.PublishLandmarks(landmarks); err != nil {
		p.logger.Errorw("failed to publish landmarks", "op", "publish", "error", err.Error())
	}

	p.state = Published

	return nil
}

func newPose(p geom.Pose2D, cov [36]float64) slam.Pose {
	return slam.Pose{
		Position:    r3.Vector{X: p.X, Y: p.Y},
		Orientation: geom.QuaternionFromYaw(p.Theta),
		Covariance:  cov,
	}
}
