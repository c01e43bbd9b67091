package ekf

import "fmt"

// Config is EKF SLAM configuration.
type Config struct {
	// Alpha are velocity motion model noise parameters:
	// var(v) = a1*v^2 + a2*w^2, var(w) = a3*v^2 + a4*w^2
	Alpha [4]float64 `yaml:"alpha"`
	// RangeNoise is the range standard deviation: s0 + s1*range
	RangeNoise [2]float64 `yaml:"range_noise"`
	// BearingNoise is the bearing standard deviation
	BearingNoise float64 `yaml:"bearing_noise"`
	// OrientationNoise is the marker orientation standard deviation
	OrientationNoise float64 `yaml:"orientation_noise"`
	// Predict enables the prediction step
	Predict bool `yaml:"enable_prediction"`
	// Update enables the measurement update step
	Update bool `yaml:"enable_update"`
}

// DefaultConfig returns default EKF SLAM configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:            [4]float64{0.05, 0.01, 0.01, 0.05},
		RangeNoise:       [2]float64{0.02, 0.02},
		BearingNoise:     0.02,
		OrientationNoise: 0.1,
		Predict:          true,
		Update:           true,
	}
}

// Validate returns error if c is not a valid configuration.
func (c Config) Validate() error {
	for i, a := range c.Alpha {
		if a < 0 {
			return fmt.Errorf("invalid motion noise alpha_%d: %f", i+1, a)
		}
	}

	if c.RangeNoise[0] < 0 || c.RangeNoise[1] < 0 || c.RangeNoise[0]+c.RangeNoise[1] <= 0 {
		return fmt.Errorf("invalid range noise: %v", c.RangeNoise)
	}

	if c.BearingNoise <= 0 {
		return fmt.Errorf("invalid bearing noise: %f", c.BearingNoise)
	}

	if c.OrientationNoise <= 0 {
		return fmt.Errorf("invalid orientation noise: %f", c.OrientationNoise)
	}

	return nil
}
