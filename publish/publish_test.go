package publish

import (
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/covariance"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/milosgajdos/go-markerslam/measurement"
	"github.com/milosgajdos/go-markerslam/tf"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const delta = 1e-9

var (
	t0     = time.Unix(50, 0)
	frames = Frames{Map: "map", Odom: "odom", Base: "base_link"}
)

type fakeEstimator struct {
	updated bool
	stamp   time.Time
	yt      []geom.Pose2D
	cov     mat.Matrix
}

func (f *fakeEstimator) Cycle(slam.Command, *measurement.Set) error { return nil }
func (f *fakeEstimator) Reset() {}
func (f *fakeEstimator) SetConfig(interface{}) error { return nil }
func (f *fakeEstimator) TimeLastUpdate() (time.Time, bool) { return f.stamp, f.updated }
func (f *fakeEstimator) Type() slam.Technique { return slam.EKF }
func (f *fakeEstimator) TypeName() string { return "fake" }
func (f *fakeEstimator) State() []geom.Pose2D { return f.yt }
func (f *fakeEstimator) Cov() mat.Matrix { return f.cov }

func odomTree(t *testing.T, odom geom.Pose2D) *tf.Buffer {
	b := tf.NewBuffer(0, 0)
	require.NoError(t, b.SendTransform(geom.StampedTransform{
		Transform:    geom.FromPose2D(odom),
		Stamp:        t0,
		FrameID:      "odom",
		ChildFrameID: "base_link",
	}))

	return b
}

func TestComposerCompose(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		robot, odom, want geom.Pose2D
	}{
		{geom.NewPose2D(2, 1, 0), geom.NewPose2D(1.5, 1, 0), geom.NewPose2D(0.5, 0, 0)},
		{geom.NewPose2D(1, 0, math.Pi/2), geom.Pose2D{}, geom.NewPose2D(1, 0, math.Pi/2)},
		{geom.NewPose2D(1, 1, 0.3), geom.NewPose2D(1, 1, 0.3), geom.Pose2D{}},
	} {
		c := NewComposer(odomTree(t, test.odom), frames)
		out, err := c.Compose(test.robot, t0)
		assert.NoError(err)
		assert.Equal("map", out.FrameID)
		assert.Equal("odom", out.ChildFrameID)
		assert.Equal(t0, out.Stamp)

		p := out.Pose2D()
		assert.InDelta(test.want.X, p.X, delta)
		assert.InDelta(test.want.Y, p.Y, delta)
		assert.InDelta(test.want.Theta, p.Theta, delta)

		// correction composed with odometry yields the estimate
		est := out.Mul(geom.FromPose2D(test.odom)).Pose2D()
		assert.InDelta(test.robot.X, est.X, delta)
		assert.InDelta(test.robot.Y, est.Y, delta)
		assert.InDelta(test.robot.Theta, est.Theta, delta)
	}
}

func TestComposerFailure(t *testing.T) {
	c := NewComposer(tf.NewBuffer(0, 0), frames)
	_, err := c.Compose(geom.Pose2D{}, t0)
	assert.Error(t, err)
	assert.Equal(t, tf.ErrUnknownFrame, errors.Cause(err))
}

func TestPublisherNoUpdate(t *testing.T) {
	assert := assert.New(t)

	sink := &Memory{}
	p := NewPublisher(odomTree(t, geom.Pose2D{}), sink, frames, golog.NewTestLogger(t))

	assert.NoError(p.Publish(&fakeEstimator{}))
	assert.Equal(Idle, p.State())

	_, ok := sink.Pose()
	assert.False(ok)
	_, n := sink.Transform()
	assert.Zero(n)
}

func TestPublisherPublish(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cov := mat.NewDense(9, 9, nil)
	cov.Set(0, 0, 0.1)
	cov.Set(1, 1, 0.2)
	cov.Set(2, 2, 0.3)
	cov.Set(0, 2, 0.05)
	cov.Set(3, 3, 1)
	cov.Set(6, 6, 2)

	est := &fakeEstimator{
		updated: true,
		stamp:   t0,
		yt:      []geom.Pose2D{geom.NewPose2D(2, 1, 0), geom.NewPose2D(3, 3, 1), geom.NewPose2D(-1, 2, -1)},
		cov:     cov,
	}

	sink := &Memory{}
	p := NewPublisher(odomTree(t, geom.NewPose2D(1.5, 1, 0)), sink, frames, golog.NewTestLogger(t))

	require.NoError(p.Publish(est))
	assert.Equal(Published, p.State())

	corr, n := sink.Transform()
	assert.Equal(1, n)
	assert.InDelta(0.5, corr.Origin.X, delta)

	pose, ok := sink.Pose()
	require.True(ok)
	assert.Equal(uint64(1), pose.Header.Seq)
	assert.Equal(t0, pose.Header.Stamp)
	assert.Equal("map", pose.Header.FrameID)
	assert.Equal(2.0, pose.Pose.Position.X)
	assert.Equal(1.0, pose.Pose.Position.Y)
	assert.Equal(0.1, pose.Pose.Covariance[0])
	assert.Equal(0.2, pose.Pose.Covariance[7])
	assert.Equal(0.3, pose.Pose.Covariance[35])
	assert.Equal(0.05, pose.Pose.Covariance[5])

	lm, ok := sink.Landmarks()
	require.True(ok)
	require.Len(lm.Landmarks, 2)
	assert.Equal([]int{1}, lm.Landmarks[0].IDs)
	assert.Equal([]int{2}, lm.Landmarks[1].IDs)
	assert.Equal([]float64{1.0}, lm.Landmarks[1].Confidences)
	assert.Equal(1.0, lm.Landmarks[0].Pose.Covariance[0])
	assert.Equal(2.0, lm.Landmarks[1].Pose.Covariance[0])
	assert.InDelta(1, geom.Yaw(lm.Landmarks[0].Pose.Orientation), delta)

	// sequence numbers increase monotonically
	require.NoError(p.Publish(est))
	pose, _ = sink.Pose()
	lm, _ = sink.Landmarks()
	assert.Equal(uint64(2), pose.Header.Seq)
	assert.Equal(uint64(2), lm.Header.Seq)
}

func TestPublisherTransformFailure(t *testing.T) {
	assert := assert.New(t)

	est := &fakeEstimator{
		updated: true,
		stamp:   t0.Add(time.Hour),
		yt:      []geom.Pose2D{geom.NewPose2D(2, 1, 0)},
		cov:     mat.NewSymDense(3, nil),
	}

	sink := &Memory{}
	logger, logs := golog.NewObservedTestLogger(t)
	p := NewPublisher(odomTree(t, geom.Pose2D{}), sink, frames, logger)

	// twice in a row: a missing transform never breaks publication
	for i := 0; i < 2; i++ {
		assert.NoError(p.Publish(est))
		assert.Equal(Published, p.State())

		_, n := sink.Transform()
		assert.Zero(n)
		_, ok := sink.Pose()
		assert.True(ok)
	}

	// the cause is logged as a plain message without a stack trace
	entries := logs.FilterMessage("map correction skipped").All()
	assert.Len(entries, 2)
	for _, e := range entries {
		fields := e.ContextMap()
		assert.IsType("", fields["error"])
		assert.NotContains(fields, "errorVerbose")
	}
}

func TestPublisherDesync(t *testing.T) {
	assert := assert.New(t)

	sink := &Memory{}
	p := NewPublisher(odomTree(t, geom.Pose2D{}), sink, frames, golog.NewTestLogger(t))

	for _, est := range []*fakeEstimator{
		{updated: true, stamp: t0, yt: nil, cov: mat.NewDense(3, 3, nil)},
		{updated: true, stamp: t0, yt: make([]geom.Pose2D, 2), cov: mat.NewDense(3, 3, nil)},
	} {
		err := p.Publish(est)
		assert.Error(err)
		assert.Equal(covariance.ErrDesync, errors.Cause(err))
		assert.Equal(Idle, p.State())
	}

	_, ok := sink.Pose()
	assert.False(ok)
	_, n := sink.Transform()
	assert.Zero(n)
}

type failingSink struct{ Memory }

func (f *failingSink) PublishPose(slam.PoseRecord) error { return errors.New("boom") }

func TestFanout(t *testing.T) {
	assert := assert.New(t)

	a, b := &Memory{}, &failingSink{}
	f := Fanout{b, a}

	err := f.PublishPose(slam.PoseRecord{Header: slam.Header{Seq: 3}})
	assert.Error(err)

	// the healthy sink still received the record
	pose, ok := a.Pose()
	assert.True(ok)
	assert.Equal(uint64(3), pose.Header.Seq)

	assert.NoError(f.SendTransform(geom.StampedTransform{}))
	assert.NoError(f.PublishLandmarks(slam.LandmarkArray{}))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Updated", Updated.String())
	assert.Equal(t, "State(7)", State(7).String())
}
