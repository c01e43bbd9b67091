// Package covariance extracts per-entity marginal covariances from a joint
// SLAM state covariance and packs them into 6-DOF pose covariance layouts.
package covariance

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// BlockSize is the dimension of a planar pose (x, y, theta).
const BlockSize = 3

// ErrDesync is returned when the joint covariance does not match the state size.
var ErrDesync = errors.New("state and covariance are out of sync")

// layout maps planar pose indices (x, y, theta) to 6-DOF indices (x, y, yaw).
var layout = [BlockSize]int{0, 1, 5}

// Validate checks that c is a 3n x 3n matrix for a state of n > 0 poses.
func Validate(n int, c mat.Matrix) error {
	if n <= 0 {
		return errors.Wrap(ErrDesync, "empty state")
	}

	if c == nil {
		return errors.Wrap(ErrDesync, "nil covariance")
	}

	r, cols := c.Dims()
	if r != BlockSize*n || cols != BlockSize*n {
		return errors.Wrap(ErrDesync, fmt.Sprintf("state size %d, covariance [%d x %d]", n, r, cols))
	}

	return nil
}

// Block returns a copy of the i-th 3x3 diagonal block of c.
// It panics if the block lies outside of c.
func Block(c mat.Matrix, i int) *mat.Dense {
	b := mat.NewDense(BlockSize, BlockSize, nil)
	for r := 0; r < BlockSize; r++ {
		for col := 0; col < BlockSize; col++ {
			b.Set(r, col, c.At(BlockSize*i+r, BlockSize*i+col))
		}
	}

	return b
}

// Pack embeds a 3x3 planar covariance into a row-major 6x6 pose covariance.
// All entries outside of the (x, y, yaw) rows and columns are zero.
func Pack(block mat.Matrix) [36]float64 {
	var out [36]float64
	for r := 0; r < BlockSize; r++ {
		for c := 0; c < BlockSize; c++ {
			out[6*layout[r]+layout[c]] = block.At(r, c)
		}
	}

	return out
}

// Extract returns the packed marginal covariance of the i-th state entity.
// Entity 0 is the robot, entity k > 0 is the k-th landmark.
func Extract(c mat.Matrix, i int) [36]float64 {
	return Pack(Block(c, i))
}

// Marginals validates c against a state of n poses and returns the packed
// marginal covariance of every entity in state order.
func Marginals(n int, c mat.Matrix) ([][36]float64, error) {
	if err := Validate(n, c); err != nil {
		return nil, err
	}

	out := make([][36]float64, n)
	for i := range out {
		out[i] = Extract(c, i)
	}

	return out, nil
}
