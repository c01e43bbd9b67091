package noise

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
}

// NewGaussian creates new Gaussian noise with given mean and covariance,
// drawing samples from a source seeded with seed.
// It returns error if cov is not positive definite or does not match mean.
func NewGaussian(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || cov.SymmetricDim() != len(mean) {
		return nil, fmt.Errorf("invalid covariance for mean of length %d", len(mean))
	}

	src := rand.New(rand.NewSource(seed))
	dist, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, fmt.Errorf("covariance is not positive definite")
	}

	return &Gaussian{
		dist: dist,
		mean: append([]float64(nil), mean...),
		cov:  cov,
	}, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() []float64 {
	return g.dist.Rand(nil)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return append([]float64(nil), g.mean...)
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}

// Zero is noise which is always zero.
type Zero struct {
	// size is the noise dimension
	size int
}

// NewZero creates new zero noise of given size.
// It returns error if size is negative.
func NewZero(size int) (*Zero, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", size)
	}

	return &Zero{size: size}, nil
}

// Sample returns a vector of zeros.
func (z *Zero) Sample() []float64 {
	return make([]float64, z.size)
}

// Mean returns a vector of zeros.
func (z *Zero) Mean() []float64 {
	return make([]float64, z.size)
}

// Cov returns zero covariance matrix.
func (z *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(z.size, nil)
}
