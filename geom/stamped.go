package geom

import "time"

// StampedPose is a pose expressed in frame FrameID at time Stamp.
type StampedPose struct {
	Transform
	// Stamp is the time the pose refers to
	Stamp time.Time
	// FrameID is the frame the pose is expressed in
	FrameID string
}

// StampedTransform transforms coordinates from ChildFrameID to FrameID at time Stamp.
type StampedTransform struct {
	Transform
	// Stamp is the time the transform refers to
	Stamp time.Time
	// FrameID is the parent (target) frame
	FrameID string
	// ChildFrameID is the child (source) frame
	ChildFrameID string
}
