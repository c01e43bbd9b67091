// Package tf implements an in-memory transform tree.
//
// Every frame has at most one parent. Transforms are kept for a bounded time
// window per edge and looked up at a requested time by interpolating between
// the bracketing samples.
package tf

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

var (
	// ErrUnknownFrame is returned when a frame has never been seen.
	ErrUnknownFrame = errors.New("unknown frame")
	// ErrDisconnected is returned when two frames have no common ancestor.
	ErrDisconnected = errors.New("frames are not connected")
	// ErrExtrapolation is returned when the requested time is outside of the cached window.
	ErrExtrapolation = errors.New("extrapolation required")
	// ErrLookupTimeout is returned when a transform does not become available in time.
	ErrLookupTimeout = errors.New("transform lookup timed out")
)

const (
	// DefaultCacheTime is the default transform history length
	DefaultCacheTime = 10 * time.Second
	// tolerance is the time skew accepted without extrapolating
	tolerance = time.Millisecond
)

type edge struct {
	parent  string
	static  bool
	samples []geom.StampedTransform
}

// Buffer is a transform tree which keeps a short history of every edge.
// Buffer is safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	edges     map[string]*edge
	cacheTime time.Duration
	timeout   time.Duration
	// updated is closed and replaced on every new transform
	updated chan struct{}
}

// NewBuffer creates new Buffer and returns it.
// cacheTime bounds the per-edge history, timeout bounds how long a lookup
// waits for a transform which is not yet available. Zero timeout never waits.
func NewBuffer(cacheTime, timeout time.Duration) *Buffer {
	if cacheTime <= 0 {
		cacheTime = DefaultCacheTime
	}

	return &Buffer{
		edges:     make(map[string]*edge),
		cacheTime: cacheTime,
		timeout:   timeout,
		updated:   make(chan struct{}),
	}
}

// SetTransform adds tf to the tree. Static transforms are valid at any time.
func (b *Buffer) SetTransform(tf geom.StampedTransform, static bool) error {
	if tf.FrameID == "" || tf.ChildFrameID == "" {
		return errors.Errorf("invalid transform frames: %q -> %q", tf.ChildFrameID, tf.FrameID)
	}

	if tf.FrameID == tf.ChildFrameID {
		return errors.Errorf("transform from %q to itself", tf.FrameID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.edges[tf.ChildFrameID]
	if !ok || e.parent != tf.FrameID || e.static != static {
		e = &edge{parent: tf.FrameID, static: static}
		b.edges[tf.ChildFrameID] = e
	}

	if static {
		e.samples = []geom.StampedTransform{tf}
	} else {
		i := sort.Search(len(e.samples), func(i int) bool { return e.samples[i].Stamp.After(tf.Stamp) })
		e.samples = append(e.samples, geom.StampedTransform{})
		copy(e.samples[i+1:], e.samples[i:])
		e.samples[i] = tf

		// drop samples older than the cache window
		newest := e.samples[len(e.samples)-1].Stamp
		cut := 0
		for cut < len(e.samples)-1 && newest.Sub(e.samples[cut].Stamp) > b.cacheTime {
			cut++
		}
		e.samples = e.samples[cut:]
	}

	close(b.updated)
	b.updated = make(chan struct{})

	return nil
}

// SendTransform adds a non-static transform to the tree.
func (b *Buffer) SendTransform(tf geom.StampedTransform) error {
	return b.SetTransform(tf, false)
}

// Frames returns all known frames.
func (b *Buffer) Frames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	for child, e := range b.edges {
		seen[child] = true
		seen[e.parent] = true
	}

	frames := make([]string, 0, len(seen))
	for f := range seen {
		frames = append(frames, f)
	}
	sort.Strings(frames)

	return frames
}

// LookupTransform returns the transform mapping source frame coordinates to
// target frame coordinates at time t. Zero t requests the latest transform.
// If the transform is not available yet the lookup waits up to the buffer timeout.
func (b *Buffer) LookupTransform(target, source string, t time.Time) (geom.StampedTransform, error) {
	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	return b.LookupTransformContext(ctx, target, source, t)
}

// LookupTransformContext is LookupTransform which waits for a missing
// transform until ctx is done.
func (b *Buffer) LookupTransformContext(ctx context.Context, target, source string, t time.Time) (geom.StampedTransform, error) {
	for {
		b.mu.Lock()
		tf, err := b.lookup(target, source, t)
		updated := b.updated
		b.mu.Unlock()

		if err == nil {
			return tf, nil
		}

		if _, ok := ctx.Deadline(); !ok {
			return geom.StampedTransform{}, err
		}

		select {
		case <-updated:
		case <-ctx.Done():
			return geom.StampedTransform{}, errors.Wrapf(ErrLookupTimeout, "%s -> %s: %v", source, target, err)
		}
	}
}

// TransformPose expresses pose p in the target frame at the pose time.
func (b *Buffer) TransformPose(target string, p geom.StampedPose) (geom.StampedPose, error) {
	tf, err := b.LookupTransform(target, p.FrameID, p.Stamp)
	if err != nil {
		return geom.StampedPose{}, err
	}

	return geom.StampedPose{
		Transform: tf.Mul(p.Transform),
		Stamp:     p.Stamp,
		FrameID:   target,
	}, nil
}

// lookup must be called with b.mu held.
func (b *Buffer) lookup(target, source string, t time.Time) (geom.StampedTransform, error) {
	if !b.known(target) {
		return geom.StampedTransform{}, errors.Wrap(ErrUnknownFrame, target)
	}

	if !b.known(source) {
		return geom.StampedTransform{}, errors.Wrap(ErrUnknownFrame, source)
	}

	if target == source {
		return geom.StampedTransform{
			Transform:    geom.Transform{Rotation: geom.Identity},
			Stamp:        t,
			FrameID:      target,
			ChildFrameID: source,
		}, nil
	}

	// source and target chains up to the root
	srcChain := b.chain(source)
	dstChain := b.chain(target)

	ancestor := ""
	dstIndex := make(map[string]int, len(dstChain))
	for i, f := range dstChain {
		dstIndex[f] = i
	}
	for _, f := range srcChain {
		if _, ok := dstIndex[f]; ok {
			ancestor = f
			break
		}
	}

	if ancestor == "" {
		return geom.StampedTransform{}, errors.Wrapf(ErrDisconnected, "%s -> %s", source, target)
	}

	stamp := t
	latest := t.IsZero()

	up := func(chain []string) (geom.Transform, error) {
		acc := geom.Transform{Rotation: geom.Identity}
		for _, f := range chain {
			if f == ancestor {
				break
			}

			s, err := b.edges[f].at(t)
			if err != nil {
				return geom.Transform{}, errors.Wrapf(err, "%s -> %s", f, b.edges[f].parent)
			}
			if latest && !b.edges[f].static && (stamp.IsZero() || s.Stamp.Before(stamp)) {
				stamp = s.Stamp
			}
			acc = s.Transform.Mul(acc)
		}

		return acc, nil
	}

	ancSrc, err := up(srcChain)
	if err != nil {
		return geom.StampedTransform{}, err
	}

	ancDst, err := up(dstChain)
	if err != nil {
		return geom.StampedTransform{}, err
	}

	return geom.StampedTransform{
		Transform:    ancDst.Inverse().Mul(ancSrc),
		Stamp:        stamp,
		FrameID:      target,
		ChildFrameID: source,
	}, nil
}

func (b *Buffer) known(frame string) bool {
	if _, ok := b.edges[frame]; ok {
		return true
	}

	for _, e := range b.edges {
		if e.parent == frame {
			return true
		}
	}

	return false
}

// chain returns frame followed by all of its ancestors.
func (b *Buffer) chain(frame string) []string {
	chain := []string{frame}
	seen := map[string]bool{frame: true}

	for {
		e, ok := b.edges[frame]
		if !ok || seen[e.parent] {
			return chain
		}
		frame = e.parent
		seen[frame] = true
		chain = append(chain, frame)
	}
}

// at returns the edge transform at time t.
func (e *edge) at(t time.Time) (geom.StampedTransform, error) {
	if len(e.samples) == 0 {
		return geom.StampedTransform{}, ErrExtrapolation
	}

	if e.static || t.IsZero() {
		return e.samples[len(e.samples)-1], nil
	}

	first, last := e.samples[0], e.samples[len(e.samples)-1]
	if t.After(last.Stamp.Add(tolerance)) {
		return geom.StampedTransform{}, errors.Wrapf(ErrExtrapolation, "into the future: %s > %s", t, last.Stamp)
	}

	if t.Before(first.Stamp.Add(-tolerance)) {
		return geom.StampedTransform{}, errors.Wrapf(ErrExtrapolation, "into the past: %s < %s", t, first.Stamp)
	}

	i := sort.Search(len(e.samples), func(i int) bool { return !e.samples[i].Stamp.Before(t) })
	switch {
	case i == len(e.samples):
		return last, nil
	case i == 0 || e.samples[i].Stamp.Equal(t):
		return e.samples[i], nil
	}

	a, c := e.samples[i-1], e.samples[i]
	ratio := float64(t.Sub(a.Stamp)) / float64(c.Stamp.Sub(a.Stamp))

	return geom.StampedTransform{
		Transform:    interpolate(a.Transform, c.Transform, ratio),
		Stamp:        t,
		FrameID:      a.FrameID,
		ChildFrameID: a.ChildFrameID,
	}, nil
}

// interpolate blends translations linearly and rotations by normalized lerp.
func interpolate(a, c geom.Transform, ratio float64) geom.Transform {
	origin := a.Origin.Add(c.Origin.Sub(a.Origin).Mul(ratio))

	qa, qc := a.Rotation, c.Rotation
	// take the short way around
	if qa.W*qc.W+qa.X*qc.X+qa.Y*qc.Y+qa.Z*qc.Z < 0 {
		qc = quaternion.Quaternion{W: -qc.W, X: -qc.X, Y: -qc.Y, Z: -qc.Z}
	}

	q := quaternion.Quaternion{
		W: qa.W + (qc.W-qa.W)*ratio,
		X: qa.X + (qc.X-qa.X)*ratio,
		Y: qa.Y + (qc.Y-qa.Y)*ratio,
		Z: qa.Z + (qc.Z-qa.Z)*ratio,
	}
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	q = quaternion.Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}

	return geom.NewTransform(q, origin)
}
