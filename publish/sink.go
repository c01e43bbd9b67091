package publish

import (
	"sync"

	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/pkg/errors"
)

// Memory is a sink which keeps the latest published records.
// If Broadcaster is set, transforms are forwarded to it as well.
type Memory struct {
	// Broadcaster optionally receives every transform
	Broadcaster slam.Broadcaster

	mu         sync.Mutex
	pose       *slam.PoseRecord
	landmarks  *slam.LandmarkArray
	transform  *geom.StampedTransform
	transforms int
}

// SendTransform stores tf and forwards it to the broadcaster.
func (m *Memory) SendTransform(tf geom.StampedTransform) error {
	m.mu.Lock()
	m.transform = &tf
	m.transforms++
	m.mu.Unlock()

	if m.Broadcaster != nil {
		return m.Broadcaster.SendTransform(tf)
	}

	return nil
}

// PublishPose stores p.
func (m *Memory) PublishPose(p slam.PoseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pose = &p

	return nil
}

// PublishLandmarks stores l.
func (m *Memory) PublishLandmarks(l slam.LandmarkArray) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.landmarks = &l

	return nil
}

// Pose returns the latest pose record.
func (m *Memory) Pose() (slam.PoseRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pose == nil {
		return slam.PoseRecord{}, false
	}

	return *m.pose, true
}

// Landmarks returns the latest landmark array.
func (m *Memory) Landmarks() (slam.LandmarkArray, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.landmarks == nil {
		return slam.LandmarkArray{}, false
	}

	return *m.landmarks, true
}

// Transform returns the latest transform and the number of transforms sent so far.
func (m *Memory) Transform() (geom.StampedTransform, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transform == nil {
		return geom.StampedTransform{}, m.transforms
	}

	return *m.transform, m.transforms
}

// Fanout publishes every record to all of its sinks.
// It keeps going when a sink fails and returns the first error.
type Fanout []slam.Sink

// SendTransform sends tf to all sinks.
func (f Fanout) SendTransform(tf geom.StampedTransform) error {
	return f.each(func(s slam.Sink) error { return s.SendTransform(tf) })
}

// PublishPose publishes p to all sinks.
func (f Fanout) PublishPose(p slam.PoseRecord) error {
	return f.each(func(s slam.Sink) error { return s.PublishPose(p) })
}

// PublishLandmarks publishes l to all sinks.
func (f Fanout) PublishLandmarks(l slam.LandmarkArray) error {
	return f.each(func(s slam.Sink) error { return s.PublishLandmarks(l) })
}

func (f Fanout) each(fn func(slam.Sink) error) error {
	var first error
	for i, s := range f {
		if err := fn(s); err != nil && first == nil {
			first = errors.Wrapf(err, "sink %d", i)
		}
	}

	return first
}
