// Package noise provides noise sources used to perturb simulated motion and
// marker detections.
package noise

import "gonum.org/v1/gonum/mat"

// Noise is a multivariate noise source.
type Noise interface {
	// Sample returns a noise sample
	Sample() []float64
	// Mean returns noise mean
	Mean() []float64
	// Cov returns noise covariance
	Cov() mat.Symmetric
}

// Diag returns zero mean noise with independent components of standard
// deviation std, drawn from a source seeded with seed.
// It returns Zero noise if all deviations are zero.
func Diag(std []float64, seed uint64) (Noise, error) {
	zero := true
	for _, s := range std {
		if s != 0 {
			zero = false
			break
		}
	}

	if zero {
		z, err := NewZero(len(std))
		if err != nil {
			return nil, err
		}
		return z, nil
	}

	cov := mat.NewSymDense(len(std), nil)
	for i, s := range std {
		cov.SetSym(i, i, s*s)
	}

	g, err := NewGaussian(make([]float64, len(std)), cov, seed)
	if err != nil {
		return nil, err
	}

	return g, nil
}
