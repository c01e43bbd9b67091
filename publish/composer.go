package publish

import (
	"time"

	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/pkg/errors"
)

// Frames names the frames involved in publishing the map correction.
type Frames struct {
	Map  string
	Odom string
	Base string
}

// Composer computes the map to odom correction transform.
type Composer struct {
	// resolver resolves poses between frames
	resolver slam.FrameResolver
	// frames are the map, odom and base frame names
	frames Frames
}

// NewComposer creates new Composer and returns it.
func NewComposer(resolver slam.FrameResolver, frames Frames) *Composer {
	return &Composer{
		resolver: resolver,
		frames:   frames,
	}
}

// Compose returns the map to odom transform given the robot pose in the map
// frame estimated at stamp. The robot pose in the odom frame is taken from the
// frame resolver, so the returned transform absorbs the odometry drift.
func (c *Composer) Compose(robot geom.Pose2D, stamp time.Time) (geom.StampedTransform, error) {
	baseToMap := geom.FromPose2D(robot)

	mapToBase := geom.StampedPose{
		Transform: baseToMap.Inverse(),
		Stamp:     stamp,
		FrameID:   c.frames.Base,
	}

	odomToMap, err := c.resolver.TransformPose(c.frames.Odom, mapToBase)
	if err != nil {
		return geom.StampedTransform{}, errors.Wrap(err, "subtracting base-to-odom from map-to-base failed")
	}

	return geom.StampedTransform{
		Transform:    odomToMap.Inverse(),
		Stamp:        odomToMap.Stamp,
		FrameID:      c.frames.Map,
		ChildFrameID: c.frames.Odom,
	}, nil
}
