// Package sim simulates a differential drive robot driving through a field of
// markers, with drifting odometry and a noisy marker detector.
package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/milosgajdos/go-markerslam/measurement"
	"github.com/milosgajdos/go-markerslam/noise"
)

// Epoch is a convenient simulation start time.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Landmark is a marker placed in the world.
type Landmark struct {
	ID   int
	Pose geom.Pose2D
}

// Frames names the simulated frames.
type Frames struct {
	Odom   string
	Base   string
	Camera string
}

// Config is simulation configuration.
type Config struct {
	// Landmarks are the markers placed in the world
	Landmarks []Landmark
	// Frames names odom, base and camera frames
	Frames Frames
	// Mount is the camera pose on the robot
	Mount geom.Pose2D
	// AltFrame makes the detector report in an optical frame (z forward, x right)
	AltFrame bool
	// FOV is the horizontal field of view
	FOV float64
	// RangeMin, RangeMax and RangeMaxID are detector range limits
	RangeMin   float64
	RangeMax   float64
	RangeMaxID float64
	// MotionNoise is the standard deviation of executed linear and angular velocity
	MotionNoise [2]float64
	// DetectionNoise is the standard deviation of detected marker x, y and heading
	DetectionNoise [3]float64
	// Seed seeds all noise sources
	Seed uint64
}

// DefaultConfig returns a square marker field around the origin.
func DefaultConfig() Config {
	var landmarks []Landmark
	id := 1
	for _, x := range []float64{-3, 0, 3} {
		for _, y := range []float64{-3, 3} {
			landmarks = append(landmarks, Landmark{ID: id, Pose: geom.NewPose2D(x, y, -math.Atan2(y, x))})
			id++
		}
	}

	return Config{
		Landmarks:      landmarks,
		Frames:         Frames{Odom: "odom", Base: "base_link", Camera: "camera"},
		Mount:          geom.NewPose2D(0.2, 0, 0),
		FOV:            math.Pi / 2,
		RangeMin:       0.1,
		RangeMax:       5,
		RangeMaxID:     4,
		MotionNoise:    [2]float64{0.05, 0.02},
		DetectionNoise: [3]float64{0.02, 0.02, 0.05},
		Seed:           1,
	}
}

// Sim is a marker SLAM simulation.
type Sim struct {
	cfg   Config
	now   time.Time
	truth geom.Pose2D
	odom  geom.Pose2D
	// motion perturbs executed velocities
	motion noise.Noise
	// detection perturbs detected marker poses
	detection noise.Noise
}

// New creates new simulation starting at time start with the robot at the origin.
// It returns error if the configuration is invalid.
func New(cfg Config, start time.Time) (*Sim, error) {
	if cfg.RangeMax <= cfg.RangeMin || cfg.FOV <= 0 {
		return nil, fmt.Errorf("invalid detector limits: range [%f, %f], fov %f", cfg.RangeMin, cfg.RangeMax, cfg.FOV)
	}

	motion, err := noise.Diag(cfg.MotionNoise[:], cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create motion noise: %v", err)
	}

	detection, err := noise.Diag(cfg.DetectionNoise[:], cfg.Seed+1)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection noise: %v", err)
	}

	return &Sim{
		cfg:       cfg,
		now:       start,
		motion:    motion,
		detection: detection,
	}, nil
}

// Now returns simulation time.
func (s *Sim) Now() time.Time {
	return s.now
}

// Truth returns the true robot pose.
func (s *Sim) Truth() geom.Pose2D {
	return s.truth
}

// Odom returns the robot pose integrated from commands.
func (s *Sim) Odom() geom.Pose2D {
	return s.odom
}

// Landmarks returns the true landmarks.
func (s *Sim) Landmarks() []Landmark {
	return s.cfg.Landmarks
}

// Step advances the simulation by dt executing command u.
// Odometry integrates u exactly while the robot executes a perturbed command.
func (s *Sim) Step(u slam.Command, dt time.Duration) {
	sec := dt.Seconds()

	n := s.motion.Sample()
	executed := slam.Command{V: u.V + n[0], W: u.W + n[1]}

	s.truth = Move(s.truth, executed, sec)
	s.odom = Move(s.odom, u, sec)
	s.now = s.now.Add(dt)
}

// Odometry returns the odom to base transform at the current time.
func (s *Sim) Odometry() geom.StampedTransform {
	return geom.StampedTransform{
		Transform:    geom.FromPose2D(s.odom),
		Stamp:        s.now,
		FrameID:      s.cfg.Frames.Odom,
		ChildFrameID: s.cfg.Frames.Base,
	}
}

// MountTransform returns the static base to camera transform.
// The optical camera frame is turned by -π/2 about the vertical axis.
func (s *Sim) MountTransform() geom.StampedTransform {
	mount := s.cfg.Mount
	if s.cfg.AltFrame {
		mount.Theta -= math.Pi / 2
	}

	return geom.StampedTransform{
		Transform:    geom.FromPose2D(mount),
		Stamp:        s.now,
		FrameID:      s.cfg.Frames.Base,
		ChildFrameID: s.cfg.Frames.Camera,
	}
}

// Detect returns the markers the camera sees from the true robot pose.
// Markers slightly beyond the detector range are reported too; the consumer
// is expected to gate them.
func (s *Sim) Detect() measurement.Detection {
	d := measurement.Detection{
		Stamp:         s.now,
		FrameID:       s.cfg.Frames.Camera,
		ViewDirection: geom.Identity,
		FOVHorizontal: s.cfg.FOV,
		DistanceMin:   s.cfg.RangeMin,
		DistanceMax:   s.cfg.RangeMax,
		DistanceMaxID: s.cfg.RangeMaxID,
	}

	camera := geom.FromPose2D(s.truth).Mul(geom.FromPose2D(s.cfg.Mount))
	inv := camera.Inverse()

	for _, l := range s.cfg.Landmarks {
		rel := inv.Mul(geom.FromPose2D(l.Pose)).Pose2D()

		if rel.Range() > 1.2*s.cfg.RangeMax || math.Abs(rel.Bearing()) > s.cfg.FOV {
			continue
		}

		n := s.detection.Sample()
		rel = geom.NewPose2D(rel.X+n[0], rel.Y+n[1], geom.NormalizeAngle(rel.Theta+n[2]))

		raw, ok := s.raw(rel)
		if !ok {
			continue
		}
		raw.IDs = []int{l.ID}
		raw.Confidences = []float64{1}

		d.Markers = append(d.Markers, raw)
	}

	return d
}

// raw expresses a marker pose relative to the camera in the detector convention.
func (s *Sim) raw(rel geom.Pose2D) (measurement.RawDetection, bool) {
	if !s.cfg.AltFrame {
		return measurement.RawDetection{
			Position:    r3.Vector{X: rel.X, Y: rel.Y},
			Orientation: geom.QuaternionFromYaw(rel.Theta),
		}, true
	}

	// optical frames only see markers facing the camera
	pitch := geom.AngleDifference(math.Pi, rel.Theta)
	if math.Abs(pitch) >= math.Pi/2 {
		return measurement.RawDetection{}, false
	}

	return measurement.RawDetection{
		Position:    r3.Vector{X: -rel.Y, Z: rel.X},
		Orientation: geom.QuaternionFromRPY(0, pitch, 0),
	}, true
}

// Move propagates pose p with velocity command u for dt seconds.
func Move(p geom.Pose2D, u slam.Command, dt float64) geom.Pose2D {
	if math.Abs(u.W) < 1e-9 {
		return geom.NewPose2D(
			p.X+u.V*dt*math.Cos(p.Theta),
			p.Y+u.V*dt*math.Sin(p.Theta),
			p.Theta,
		)
	}

	r := u.V / u.W
	return geom.NewPose2D(
		p.X-r*math.Sin(p.Theta)+r*math.Sin(p.Theta+u.W*dt),
		p.Y+r*math.Cos(p.Theta)-r*math.Cos(p.Theta+u.W*dt),
		geom.NormalizeAngle(p.Theta+u.W*dt),
	)
}
