package ekf

import (
	"fmt"
	"time"

	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/milosgajdos/go-markerslam/measurement"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Option configures EKF.
type Option func(*EKF)

// WithClock sets the clock used to timestamp updates and compute time steps.
func WithClock(now func() time.Time) Option {
	return func(k *EKF) {
		k.now = now
	}
}

// EKF is Extended Kalman Filter SLAM.
//
// The state holds the robot pose followed by landmark poses. Landmarks are
// associated by the marker id reported by the detector.
type EKF struct {
	// cfg is filter configuration
	cfg Config
	// now returns current time
	now func() time.Time
	// y is the state vector
	y []float64
	// p is the joint state covariance
	p *mat.Dense
	// ids maps marker ids to landmark indices (1-based)
	ids map[int]int
	// last is the time of the last update
	last time.Time
	// updated is set once the first cycle ran
	updated bool
}

// New creates new EKF SLAM and returns it.
// It returns error if cfg is invalid.
func New(cfg Config, opts ...Option) (*EKF, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &EKF{
		cfg: cfg,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(k)
	}

	k.Reset()

	return k, nil
}

// Reset discards the map and puts the robot to the origin with zero uncertainty.
func (k *EKF) Reset() {
	k.y = make([]float64, 3)
	k.p = mat.NewDense(3, 3, nil)
	k.ids = make(map[int]int)
	k.last = time.Time{}
	k.updated = false
}

// SetConfig sets filter configuration. It accepts Config or *Config.
func (k *EKF) SetConfig(cfg interface{}) error {
	var c Config

	switch v := cfg.(type) {
	case Config:
		c = v
	case *Config:
		if v == nil {
			return fmt.Errorf("invalid config: %v", cfg)
		}
		c = *v
	default:
		return fmt.Errorf("unsupported config type: %T", cfg)
	}

	if err := c.Validate(); err != nil {
		return err
	}
	k.cfg = c

	return nil
}

// Config returns filter configuration.
func (k *EKF) Config() Config {
	return k.cfg
}

// TimeLastUpdate returns the time of the last cycle.
func (k *EKF) TimeLastUpdate() (time.Time, bool) {
	return k.last, k.updated
}

// Type returns slam.EKF.
func (k *EKF) Type() slam.Technique {
	return slam.EKF
}

// TypeName returns filter name.
func (k *EKF) TypeName() string {
	return "ekf"
}

// State returns robot pose followed by landmark poses.
func (k *EKF) State() []geom.Pose2D {
	poses := make([]geom.Pose2D, len(k.y)/3)
	for i := range poses {
		poses[i] = geom.NewPose2D(k.y[3*i], k.y[3*i+1], k.y[3*i+2])
	}

	return poses
}

// Cov returns joint state covariance.
func (k *EKF) Cov() mat.Matrix {
	return mat.DenseCopyOf(k.p)
}

// MarkerIDs returns marker ids of the landmarks in state order.
func (k *EKF) MarkerIDs() []int {
	ids := make([]int, len(k.ids))
	for id, i := range k.ids {
		ids[i-1] = id
	}

	return ids
}

// Cycle runs a single prediction with command u followed by an update with
// all measurements in z. z may be nil. The first cycle only starts the clock.
// The clock advances even if an update fails.
func (k *EKF) Cycle(u slam.Command, z *measurement.Set) error {
	now := k.now()

	if k.updated && k.cfg.Predict {
		if dt := now.Sub(k.last).Seconds(); dt > 0 {
			k.predict(u, dt)
		}
	}

	k.last = now
	k.updated = true

	if z != nil && k.cfg.Update {
		for _, m := range z.Markers {
			if err := k.correct(m, z); err != nil {
				return fmt.Errorf("update failed: %v", err)
			}
		}
	}

	return nil
}

// predict propagates robot pose and its covariance.
func (k *EKF) predict(u slam.Command, dt float64) {
	n := len(k.y)
	x := append([]float64(nil), k.y[:3]...)

	// propagation Jacobian w.r.t. robot pose
	G := mat.NewDense(3, 3, nil)
	jacobian(G, func(out, in []float64) { motion(out, in, u, dt) }, x)

	// propagation Jacobian w.r.t. control
	V := mat.NewDense(3, 2, nil)
	jacobian(V, func(out, in []float64) {
		motion(out, x, slam.Command{V: in[0], W: in[1]}, dt)
	}, []float64{u.V, u.W})

	a := k.cfg.Alpha
	M := mat.NewDiagDense(2, []float64{
		a[0]*u.V*u.V + a[1]*u.W*u.W,
		a[2]*u.V*u.V + a[3]*u.W*u.W,
	})

	// Q = V*M*V'
	q := &mat.Dense{}
	q.Product(V, M, V.T())

	// Prr = G*Prr*G' + Q
	prr := &mat.Dense{}
	prr.Product(G, k.p.Slice(0, 3, 0, 3), G.T())
	prr.Add(prr, q)
	k.p.Slice(0, 3, 0, 3).(*mat.Dense).Copy(prr)

	// Prm = G*Prm, Pmr = Prm'
	if n > 3 {
		prm := &mat.Dense{}
		prm.Mul(G, k.p.Slice(0, 3, 3, n))
		k.p.Slice(0, 3, 3, n).(*mat.Dense).Copy(prm)
		k.p.Slice(3, n, 0, 3).(*mat.Dense).Copy(prm.T())
	}

	next := make([]float64, 3)
	motion(next, x, u, dt)
	next[2] = geom.NormalizeAngle(next[2])
	copy(k.y, next)
}

// noise returns measurement noise covariance at the given range.
func (k *EKF) noise(r float64) *mat.DiagDense {
	sr := k.cfg.RangeNoise[0] + k.cfg.RangeNoise[1]*r
	sb := k.cfg.BearingNoise
	so := k.cfg.OrientationNoise

	return mat.NewDiagDense(3, []float64{sr * sr, sb * sb, so * so})
}

// markerID returns the most confident id candidate of m.
func markerID(m measurement.Gated) (int, bool) {
	if len(m.IDs) == 0 {
		return 0, false
	}

	best := 0
	for i := 1; i < len(m.IDs) && i < len(m.Confidences); i++ {
		if m.Confidences[i] > m.Confidences[best] {
			best = i
		}
	}

	return m.IDs[best], true
}

// correct updates the state with a single marker measurement.
func (k *EKF) correct(m measurement.Gated, z *measurement.Set) error {
	id, ok := markerID(m)
	if !ok {
		return nil
	}

	zt := []float64{m.Length, m.Angle, m.Orientation}

	j, ok := k.ids[id]
	if !ok {
		// ids of new markers are unreliable beyond RangeMaxID
		if z.RangeMaxID <= 0 || m.Length <= z.RangeMaxID {
			k.insert(id, zt, z.SensorPose)
		}
		return nil
	}

	n := len(k.y)
	x := []float64{k.y[0], k.y[1], k.y[2], k.y[3*j], k.y[3*j+1], k.y[3*j+2]}

	obs := func(out, in []float64) { observe(out, in, z.SensorPose) }

	h := make([]float64, 3)
	obs(h, x)

	// observation Jacobian w.r.t. robot and landmark j
	hs := mat.NewDense(3, 6, nil)
	jacobian(hs, obs, x, 1, 2)

	H := mat.NewDense(3, n, nil)
	H.Slice(0, 3, 0, 3).(*mat.Dense).Copy(hs.Slice(0, 3, 0, 3))
	H.Slice(0, 3, 3*j, 3*j+3).(*mat.Dense).Copy(hs.Slice(0, 3, 3, 6))

	R := k.noise(m.Length)

	// P*H'
	pht := &mat.Dense{}
	pht.Mul(k.p, H.T())

	// S = H*P*H' + R
	s := &mat.Dense{}
	s.Mul(H, pht)
	s.Add(s, R)

	sInv := &mat.Dense{}
	if err := sInv.Inverse(s); err != nil {
		return fmt.Errorf("failed to invert innovation covariance: %v", err)
	}

	gain := &mat.Dense{}
	gain.Mul(pht, sInv)

	inn := mat.NewVecDense(3, []float64{
		zt[0] - h[0],
		geom.AngleDifference(zt[1], h[1]),
		geom.AngleDifference(zt[2], h[2]),
	})

	corr := &mat.VecDense{}
	corr.MulVec(gain, inn)
	for i := range k.y {
		k.y[i] += corr.AtVec(i)
		if i%3 == 2 {
			k.y[i] = geom.NormalizeAngle(k.y[i])
		}
	}

	// Joseph form update
	eye, err := matrix.NewDenseValIdentity(n, 1.0)
	if err != nil {
		return err
	}
	a := &mat.Dense{}
	a.Mul(gain, H)
	a.Sub(eye, a)

	apa := &mat.Dense{}
	apa.Product(a, k.p, a.T())

	krk := &mat.Dense{}
	krk.Product(gain, R, gain.T())

	apa.Add(apa, krk)
	k.p = symmetrize(apa)

	return nil
}

// insert adds a new landmark observed with measurement zt.
func (k *EKF) insert(id int, zt []float64, s geom.Pose2D) {
	n := len(k.y)
	x := []float64{k.y[0], k.y[1], k.y[2], zt[0], zt[1], zt[2]}

	inv := func(out, in []float64) { inverse(out, in, s) }

	lm := make([]float64, 3)
	inv(lm, x)
	lm[2] = geom.NormalizeAngle(lm[2])

	// Jacobian w.r.t. robot pose and measurement
	J := mat.NewDense(3, 6, nil)
	jacobian(J, inv, x, 2)
	gy := J.Slice(0, 3, 0, 3)
	gz := J.Slice(0, 3, 3, 6)

	// Pmm = Gy*Prr*Gy' + Gz*R*Gz'
	pmm := &mat.Dense{}
	pmm.Product(gy, k.p.Slice(0, 3, 0, 3), gy.T())
	gzr := &mat.Dense{}
	gzr.Product(gz, k.noise(zt[0]), gz.T())
	pmm.Add(pmm, gzr)

	// Pmx = Gy*P[0:3, :]
	pmx := &mat.Dense{}
	pmx.Mul(gy, k.p.Slice(0, 3, 0, n))

	p := mat.NewDense(n+3, n+3, nil)
	p.Slice(0, n, 0, n).(*mat.Dense).Copy(k.p)
	p.Slice(n, n+3, 0, n).(*mat.Dense).Copy(pmx)
	p.Slice(0, n, n, n+3).(*mat.Dense).Copy(pmx.T())
	p.Slice(n, n+3, n, n+3).(*mat.Dense).Copy(pmm)

	k.p = p
	k.y = append(k.y, lm...)
	k.ids[id] = n / 3
}

// symmetrize returns (m + m')/2.
func symmetrize(m *mat.Dense) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			out.Set(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}

	return out
}

// String implements the Stringer interface.
func (k *EKF) String() string {
	return fmt.Sprintf("EKF{Robot=%v Landmarks=%d Trace=%.4f}", k.State()[0], len(k.ids), mat.Trace(k.p))
}
