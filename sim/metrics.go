package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-markerslam/geom"
	"gonum.org/v1/gonum/floats"
)

// PositionRMSE returns the root mean square position error between two
// equally long trajectories.
func PositionRMSE(truth, estimate []geom.Pose2D) (float64, error) {
	if len(truth) != len(estimate) {
		return 0, fmt.Errorf("trajectory length mismatch: %d != %d", len(truth), len(estimate))
	}

	if len(truth) == 0 {
		return 0, fmt.Errorf("empty trajectory")
	}

	sq := make([]float64, len(truth))
	for i := range truth {
		dx := truth[i].X - estimate[i].X
		dy := truth[i].Y - estimate[i].Y
		sq[i] = dx*dx + dy*dy
	}

	return math.Sqrt(floats.Sum(sq) / float64(len(sq))), nil
}
