package measurement

import (
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/pkg/errors"
)

// ErrViewDirection is returned when a detection batch does not look straight ahead.
var ErrViewDirection = errors.New("only straight forward looking view directions are supported")

// DefaultSensorPose is used when the detector mounting pose can not be resolved.
var DefaultSensorPose = geom.Pose2D{X: 0.225}

// TransformLookuper resolves transforms between named frames.
type TransformLookuper interface {
	// LookupTransform returns the transform from source to target frame at time t.
	// Zero t requests the latest available transform.
	LookupTransform(target, source string, t time.Time) (geom.StampedTransform, error)
}

// Adapter turns detector batches into measurement sets expressed in the robot frame.
// Adapter is safe for concurrent use.
type Adapter struct {
	// altFrame selects the detector reporting convention
	altFrame bool
	// baseFrame is the robot base frame
	baseFrame string
	// tf resolves the detector mounting pose
	tf TransformLookuper
	// logger logs recoverable failures
	logger golog.Logger
	mu sync.Mutex
	// angleMin and angleMax are the last valid bearing bounds
	angleMin float64
	angleMax float64
}

// NewAdapter creates new Adapter and returns it.
// If tf is nil the detector is assumed to be mounted at DefaultSensorPose.
func NewAdapter(altFrame bool, baseFrame string, tf TransformLookuper, logger golog.Logger) *Adapter {
	return &Adapter{
		altFrame:  altFrame,
		baseFrame: baseFrame,
		tf:        tf,
		logger:    logger,
	}
}

// AltFrame reports whether the adapter uses the alternative detector convention.
func (a *Adapter) AltFrame() bool {
	return a.altFrame
}

// Adapt converts and gates the markers in d and returns the resulting set.
// The returned set is always usable. A non-forward view direction is reported
// via ErrViewDirection, in which case the previous bearing bounds are kept.
func (a *Adapter) Adapt(d Detection) (*Set, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error

	if geom.IsIdentity(d.ViewDirection) {
		a.angleMin = -d.FOVHorizontal / 2
		a.angleMax = d.FOVHorizontal / 2
	} else {
		err = ErrViewDirection
	}

	set := &Set{
		Bounds: Bounds{
			RangeMin: d.DistanceMin,
			RangeMax: d.DistanceMax,
			AngleMin: a.angleMin,
			AngleMax: a.angleMax,
		},
		RangeMaxID: d.DistanceMaxID,
		Stamp:      d.Stamp,
		SensorPose: a.sensorPose(d.FrameID),
		Markers:    make([]Gated, 0, len(d.Markers)),
	}

	for _, m := range d.Markers {
		p := Convert(m.Position, m.Orientation, a.altFrame)

		length, angle, ok := Gate(p, set.Bounds)
		if !ok {
			continue
		}

		set.Markers = append(set.Markers, Gated{
			IDs:         append([]int(nil), m.IDs...),
			Confidences: append([]float64(nil), m.Confidences...),
			Length:      length,
			Angle:       angle,
			Orientation: p.Theta,
			Pose:        p,
		})
	}

	return set, err
}

func (a *Adapter) sensorPose(frame string) geom.Pose2D {
	if a.tf == nil {
		return DefaultSensorPose
	}

	tf, err := a.tf.LookupTransform(a.baseFrame, frame, time.Time{})
	if err != nil {
		a.logger.Errorw("detector mounting pose lookup failed", "op", "adapt", "frame", frame, "error", err.Error())
		return DefaultSensorPose
	}

	p := tf.Pose2D()
	if a.altFrame {
		p.Theta += math.Pi / 2
	}

	return p
}
