package ekf

import (
	"math"

	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// minTurnRate is the angular velocity below which the robot moves straight
const minTurnRate = 1e-9

var jacSettings = &fd.JacobianSettings{
	Formula:    fd.Central,
	Concurrent: true,
}

// motion propagates robot pose x with velocity command u for dt seconds.
func motion(out, x []float64, u slam.Command, dt float64) {
	theta := x[2]

	if math.Abs(u.W) < minTurnRate {
		out[0] = x[0] + u.V*dt*math.Cos(theta)
		out[1] = x[1] + u.V*dt*math.Sin(theta)
		out[2] = theta
		return
	}

	r := u.V / u.W
	out[0] = x[0] - r*math.Sin(theta) + r*math.Sin(theta+u.W*dt)
	out[1] = x[1] + r*math.Cos(theta) - r*math.Cos(theta+u.W*dt)
	out[2] = theta + u.W*dt
}

// sensor returns the world pose of a sensor mounted at s on a robot at x.
func sensor(x []float64, s geom.Pose2D) (float64, float64, float64) {
	c, sn := math.Cos(x[2]), math.Sin(x[2])
	return x[0] + c*s.X - sn*s.Y, x[1] + sn*s.X + c*s.Y, x[2] + s.Theta
}

// observe predicts range, bearing and relative orientation of landmark
// x[3:6] seen by sensor s of a robot at x[0:3].
func observe(out, x []float64, s geom.Pose2D) {
	wx, wy, wt := sensor(x, s)
	dx, dy := x[3]-wx, x[4]-wy

	out[0] = math.Hypot(dx, dy)
	out[1] = math.Atan2(dy, dx) - wt
	out[2] = x[5] - wt
}

// inverse returns the landmark pose given robot pose x[0:3] and measurement
// x[3:6] of range, bearing and relative orientation taken by sensor s.
func inverse(out, x []float64, s geom.Pose2D) {
	wx, wy, wt := sensor(x, s)

	out[0] = wx + x[3]*math.Cos(wt+x[4])
	out[1] = wy + x[3]*math.Sin(wt+x[4])
	out[2] = wt + x[5]
}

// jacobian computes Jacobian of f at x into dst. Outputs listed in angles are
// unwrapped around their value at x so finite differences never straddle ±π.
func jacobian(dst *mat.Dense, f func(y, x []float64), x []float64, angles ...int) {
	r, _ := dst.Dims()
	y0 := make([]float64, r)
	f(y0, x)

	fd.Jacobian(dst, func(y, x []float64) {
		f(y, x)
		for _, i := range angles {
			y[i] = y0[i] + geom.AngleDifference(y[i], y0[i])
		}
	}, x, jacSettings)
}
