// Package config loads marker SLAM node configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/milosgajdos/go-markerslam/estimator/ekf"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// maxFileSize is the maximum configuration file size
const maxFileSize = 1 << 20

// Frames are the names of the coordinate frames the node works with.
type Frames struct {
	Map  string `yaml:"map"`
	Odom string `yaml:"odom"`
	Base string `yaml:"base"`
}

// Config is marker SLAM node configuration.
type Config struct {
	// Mode selects the SLAM technique
	Mode int `yaml:"mode"`
	// AltFrame selects the optical detector reporting convention (z forward, x right)
	AltFrame bool `yaml:"alt_frame"`
	// Frames names the map, odom and base frames
	Frames Frames `yaml:"frames"`
	// Rate is the cycle rate in Hz
	Rate float64 `yaml:"rate"`
	// Reset discards the map on every cycle while set
	Reset bool `yaml:"reset"`
	// LookupTimeout bounds transform lookups
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	// CacheTime is the transform history length
	CacheTime time.Duration `yaml:"cache_time"`
	// Listen is the address published state is streamed on; empty disables streaming
	Listen string `yaml:"listen"`
	// Debug enables debug logging
	Debug bool `yaml:"debug"`
	// EKF is EKF SLAM configuration
	EKF ekf.Config `yaml:"ekf"`
}

// Default returns default configuration.
func Default() Config {
	return Config{
		Mode:          0,
		AltFrame:      false,
		Frames:        Frames{Map: "map", Odom: "odom", Base: "base_link"},
		Rate:          10,
		LookupTimeout: 50 * time.Millisecond,
		CacheTime:     10 * time.Second,
		EKF:           ekf.DefaultConfig(),
	}
}

// Load reads YAML configuration from path. Fields missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yml" && ext != ".yaml" {
		return cfg, fmt.Errorf("config file must have .yml or .yaml extension, got %q", ext)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to stat config file")
	}

	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config file")
	}

	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate returns error if the configuration can not be used.
// The SLAM mode is validated when the node is created.
func (c Config) Validate() error {
	if c.Frames.Map == "" || c.Frames.Odom == "" || c.Frames.Base == "" {
		return fmt.Errorf("invalid frames: %+v", c.Frames)
	}

	if c.Frames.Map == c.Frames.Odom || c.Frames.Odom == c.Frames.Base || c.Frames.Map == c.Frames.Base {
		return fmt.Errorf("frames must be distinct: %+v", c.Frames)
	}

	if c.Rate <= 0 {
		return fmt.Errorf("invalid rate: %f", c.Rate)
	}

	if c.LookupTimeout < 0 {
		return fmt.Errorf("invalid lookup timeout: %s", c.LookupTimeout)
	}

	return nil
}

// Period returns the cycle period.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Rate)
}
