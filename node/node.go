// Package node wires the measurement adapter, a SLAM estimator and the state
// publisher into a fixed rate cycle.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/config"
	"github.com/milosgajdos/go-markerslam/estimator/ekf"
	"github.com/milosgajdos/go-markerslam/measurement"
	"github.com/milosgajdos/go-markerslam/publish"
	"github.com/milosgajdos/go-markerslam/slot"
	"github.com/pkg/errors"
)

// ErrUnsupportedMode is returned when the configured SLAM mode is unknown.
var ErrUnsupportedMode = errors.New("unsupported SLAM mode")

// Dynamic is configuration which can be changed while the node runs.
type Dynamic struct {
	// Reset discards the map on every cycle while set
	Reset bool
}

// Node runs marker SLAM cycles.
type Node struct {
	estimator slam.Estimator
	adapter   *measurement.Adapter
	publisher *publish.Publisher
	logger    golog.Logger

	// cmd holds the latest command, kept until overwritten
	cmd slot.Slot[slam.Command]
	// zt holds the latest measurement set, consumed by every tick
	zt slot.Slot[*measurement.Set]
	// dropped is the number of overwritten sets already reported
	dropped int

	mu      sync.Mutex
	dynamic Dynamic
}

// New creates a node running the estimator selected by cfg.Mode.
// It returns ErrUnsupportedMode if the mode is unknown.
func New(cfg config.Config, resolver slam.FrameResolver, sink slam.Sink, logger golog.Logger, opts ...ekf.Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	var est slam.Estimator

	switch slam.Technique(cfg.Mode) {
	case slam.EKF:
		k, err := ekf.New(cfg.EKF, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create EKF SLAM")
		}
		est = k
	default:
		return nil, errors.Wrapf(ErrUnsupportedMode, "mode %d", cfg.Mode)
	}

	return NewWithEstimator(cfg, est, resolver, sink, logger), nil
}

// NewWithEstimator creates a node running est.
func NewWithEstimator(cfg config.Config, est slam.Estimator, resolver slam.FrameResolver, sink slam.Sink, logger golog.Logger) *Node {
	frames := publish.Frames{
		Map:  cfg.Frames.Map,
		Odom: cfg.Frames.Odom,
		Base: cfg.Frames.Base,
	}

	logger.Infow("node created", "mode", est.TypeName(), "type", int(est.Type()), "alt_frame", cfg.AltFrame)

	return &Node{
		estimator: est,
		adapter:   measurement.NewAdapter(cfg.AltFrame, cfg.Frames.Base, resolver, logger),
		publisher: publish.NewPublisher(resolver, sink, frames, logger),
		logger:    logger,
		dynamic:   Dynamic{Reset: cfg.Reset},
	}
}

// Estimator returns the node estimator.
func (n *Node) Estimator() slam.Estimator {
	return n.estimator
}

// OnCommand stores the latest robot command. The command is used by every
// tick until a new one arrives.
func (n *Node) OnCommand(u slam.Command) {
	n.cmd.Store(u)
}

// OnDetection adapts a detector batch and stores it as the latest measurement set.
// It is safe to call from transport goroutines.
func (n *Node) OnDetection(d measurement.Detection) {
	set, err := n.adapter.Adapt(d)
	if err != nil {
		n.logger.Errorw("detection batch degraded", "op", "detection", "error", err.Error())
	}

	n.zt.Store(set)
}

// OnConfig applies dynamic node configuration.
func (n *Node) OnConfig(d Dynamic) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger.Infow("node config changed", "reset", d.Reset)
	n.dynamic = d
}

// OnEstimatorConfig passes estimator specific configuration to the estimator.
func (n *Node) OnEstimatorConfig(cfg interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger.Infow("estimator config changed", "estimator", n.estimator.TypeName())

	return n.estimator.SetConfig(cfg)
}

// Tick runs a single cycle: reset if requested, advance the estimator with the
// latest command and the buffered measurement set, and publish the new state.
func (n *Node) Tick() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dynamic.Reset {
		n.estimator.Reset()
	}

	u, _ := n.cmd.Peek()
	z, _ := n.zt.Take()

	if d := n.zt.Dropped(); d > n.dropped {
		n.logger.Debugw("measurement sets overwritten before use", "op", "tick", "dropped", d-n.dropped)
		n.dropped = d
	}

	if err := n.estimator.Cycle(u, z); err != nil {
		return errors.Wrap(err, "estimator cycle failed")
	}

	return n.publisher.Publish(n.estimator)
}

// Run runs cycles every period until ctx is cancelled.
// Failed cycles are logged and do not stop the loop.
func (n *Node) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.Tick(); err != nil {
				n.logger.Errorw("cycle failed", "op", "tick", "error", err.Error())
			}
		}
	}
}
