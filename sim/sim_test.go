package sim

import (
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/milosgajdos/go-markerslam/measurement"
	"github.com/milosgajdos/go-markerslam/tf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = Epoch

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.MotionNoise = [2]float64{}
	cfg.DetectionNoise = [3]float64{}

	return cfg
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s, err := New(DefaultConfig(), start)
	assert.NotNil(s)
	assert.NoError(err)
	assert.Equal(start, s.Now())

	cfg := DefaultConfig()
	cfg.RangeMax = cfg.RangeMin
	s, err = New(cfg, start)
	assert.Nil(s)
	assert.Error(err)

	cfg = DefaultConfig()
	cfg.FOV = 0
	s, err = New(cfg, start)
	assert.Nil(s)
	assert.Error(err)
}

func TestMove(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		u    slam.Command
		dt   float64
		want geom.Pose2D
	}{
		{slam.Command{V: 1}, 2, geom.NewPose2D(2, 0, 0)},
		{slam.Command{W: math.Pi / 2}, 1, geom.NewPose2D(0, 0, math.Pi/2)},
		{slam.Command{V: math.Pi / 2, W: math.Pi / 2}, 1, geom.NewPose2D(1, 1, math.Pi/2)},
	}

	for _, tc := range testCases {
		got := Move(geom.Pose2D{}, tc.u, tc.dt)
		assert.InDelta(tc.want.X, got.X, 1e-9)
		assert.InDelta(tc.want.Y, got.Y, 1e-9)
		assert.InDelta(tc.want.Theta, got.Theta, 1e-9)
	}
}

func TestStep(t *testing.T) {
	assert := assert.New(t)

	s, err := New(quietConfig(), start)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		s.Step(slam.Command{V: 1}, 100*time.Millisecond)
	}

	assert.Equal(start.Add(time.Second), s.Now())
	assert.InDelta(1.0, s.Truth().X, 1e-9)
	assert.Equal(s.Truth(), s.Odom())

	odom := s.Odometry()
	assert.Equal("odom", odom.FrameID)
	assert.Equal("base_link", odom.ChildFrameID)
	assert.InDelta(1.0, odom.Origin.X, 1e-9)
	assert.Equal(s.Now(), odom.Stamp)
}

func TestStepNoise(t *testing.T) {
	s, err := New(DefaultConfig(), start)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		s.Step(slam.Command{V: 1, W: 0.1}, 100*time.Millisecond)
	}

	assert.NotEqual(t, s.Truth(), s.Odom())
}

func TestMountTransform(t *testing.T) {
	assert := assert.New(t)

	cfg := quietConfig()
	s, err := New(cfg, start)
	require.NoError(t, err)

	mount := s.MountTransform()
	assert.Equal("base_link", mount.FrameID)
	assert.Equal("camera", mount.ChildFrameID)
	assert.InDelta(0.0, mount.Pose2D().Theta, 1e-9)

	cfg.AltFrame = true
	s, err = New(cfg, start)
	require.NoError(t, err)
	assert.InDelta(-math.Pi/2, s.MountTransform().Pose2D().Theta, 1e-9)
}

// detected markers adapted through the mounting transform must match the
// true marker poses relative to the robot base.
func TestDetectAdapt(t *testing.T) {
	for _, alt := range []bool{false, true} {
		cfg := quietConfig()
		cfg.AltFrame = alt
		cfg.Landmarks = []Landmark{
			{ID: 1, Pose: geom.NewPose2D(2, 0.5, math.Pi)},
			{ID: 2, Pose: geom.NewPose2D(3, -0.5, 3*math.Pi/4)},
			{ID: 3, Pose: geom.NewPose2D(-3, 0, 0)},
		}

		s, err := New(cfg, start)
		require.NoError(t, err)

		buf := tf.NewBuffer(0, 0)
		require.NoError(t, buf.SetTransform(s.MountTransform(), true))

		d := s.Detect()
		assert.Equal(t, "camera", d.FrameID)
		assert.Len(t, d.Markers, 2, "alt frame %v", alt)

		a := measurement.NewAdapter(alt, "base_link", buf, golog.NewTestLogger(t))
		set, err := a.Adapt(d)
		require.NoError(t, err)
		require.Equal(t, 2, set.Len())

		assert.InDelta(t, 0.2, set.SensorPose.X, 1e-9)
		assert.InDelta(t, 0.0, set.SensorPose.Theta, 1e-9)

		for i, m := range set.Markers {
			l := cfg.Landmarks[i]
			assert.Equal(t, []int{l.ID}, m.IDs)
			assert.InDelta(t, l.Pose.X-0.2, m.Pose.X, 1e-9)
			assert.InDelta(t, l.Pose.Y, m.Pose.Y, 1e-9)
			assert.InDelta(t, 0.0, geom.AngleDifference(l.Pose.Theta, m.Pose.Theta), 1e-9)
		}
	}
}

func TestPositionRMSE(t *testing.T) {
	assert := assert.New(t)

	truth := []geom.Pose2D{{X: 0}, {X: 1}}
	est := []geom.Pose2D{{X: 0, Y: 1}, {X: 1, Y: -1}}

	rmse, err := PositionRMSE(truth, est)
	assert.NoError(err)
	assert.InDelta(1.0, rmse, 1e-12)

	_, err = PositionRMSE(truth, est[:1])
	assert.Error(err)

	_, err = PositionRMSE(nil, nil)
	assert.Error(err)
}

func TestNewTrajectoryPlot(t *testing.T) {
	assert := assert.New(t)

	track := &Track{}
	plt, err := NewTrajectoryPlot(track, nil, nil)
	assert.Nil(plt)
	assert.Error(err)

	plt, err = NewTrajectoryPlot(nil, nil, nil)
	assert.Nil(plt)
	assert.Error(err)

	track.Add(geom.Pose2D{}, geom.Pose2D{}, geom.Pose2D{})
	track.Add(geom.NewPose2D(1, 0, 0), geom.NewPose2D(1.1, 0, 0), geom.NewPose2D(0.9, 0, 0))
	assert.Equal(2, track.Len())

	plt, err = NewTrajectoryPlot(track, DefaultConfig().Landmarks, []geom.Pose2D{{X: 1, Y: 1}})
	assert.NotNil(plt)
	assert.NoError(err)
}
