package sarloc

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// EphemerisSample is one state of the platform in the Earth fixed frame.
type EphemerisSample struct {
	Time     time.Time
	Position []float64 // ECEF, meters
	Velocity []float64 // ECEF, m/s; nil if unknown
}

// OrbitModel interpolates the platform trajectory from time ordered ephemeris
// samples with piecewise Hermite polynomials. It is immutable once built.
type OrbitModel struct {
	epoch     time.Time
	times     []time.Time
	t         []float64   // seconds since epoch
	r, v      [][]float64 // positions and velocities, the latter possibly estimated
	estimated []bool      // whether v[i] was estimated
	window    int
	nodes     [][]float64   // per window start, doubled nodes relative to the window start
	coeffs    [][][]float64 // per window start and axis, Newton coefficients
}

// NewOrbitModel builds an orbit model from at least two strictly time ordered
// samples. The window is the number of samples used per interpolation (2 for a
// cubic Hermite between the bracketing samples).
func NewOrbitModel(samples []EphemerisSample, window int) (*OrbitModel, error) {
	n := len(samples)
	if n < 2 {
		return nil, errors.Wrapf(ErrInvalidEphemeris, "need at least two samples, got %d", n)
	}
	if window < 2 {
		window = 2
	}
	if window > n {
		window = n
	}
	o := &OrbitModel{
		epoch:     samples[0].Time,
		times:     make([]time.Time, n),
		t:         make([]float64, n),
		r:         make([][]float64, n),
		v:         make([][]float64, n),
		estimated: make([]bool, n),
		window:    window,
	}
	for i, s := range samples {
		if len(s.Position) != 3 || !finite(s.Position) {
			return nil, errors.Wrapf(ErrInvalidEphemeris, "sample %d: position must be three finite values", i)
		}
		if s.Velocity != nil && (len(s.Velocity) != 3 || !finite(s.Velocity)) {
			return nil, errors.Wrapf(ErrInvalidEphemeris, "sample %d: velocity must be three finite values", i)
		}
		o.times[i] = s.Time
		o.t[i] = s.Time.Sub(o.epoch).Seconds()
		if i > 0 && !s.Time.After(samples[i-1].Time) {
			return nil, errors.Wrapf(ErrInvalidEphemeris, "sample %d at %s is not after sample %d at %s", i, s.Time, i-1, samples[i-1].Time)
		}
		o.r[i] = []float64{s.Position[0], s.Position[1], s.Position[2]}
		if s.Velocity != nil {
			o.v[i] = []float64{s.Velocity[0], s.Velocity[1], s.Velocity[2]}
		}
	}
	for i := range o.v {
		if o.v[i] == nil {
			o.v[i] = o.finiteDifference(i)
			o.estimated[i] = true
		}
	}
	o.buildWindows()
	return o, nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// finiteDifference estimates the velocity at sample i from the neighboring
// positions with three point (non uniform) differences.
func (o *OrbitModel) finiteDifference(i int) []float64 {
	n := len(o.t)
	vel := make([]float64, 3)
	if n == 2 {
		dt := o.t[1] - o.t[0]
		for k := 0; k < 3; k++ {
			vel[k] = (o.r[1][k] - o.r[0][k]) / dt
		}
		return vel
	}
	var i0 int
	switch {
	case i == 0:
		i0 = 0
	case i == n-1:
		i0 = n - 3
	default:
		i0 = i - 1
	}
	h1 := o.t[i0+1] - o.t[i0]
	h2 := o.t[i0+2] - o.t[i0+1]
	var w0, w1, w2 float64
	switch i - i0 {
	case 0:
		w0 = -(2*h1 + h2) / (h1 * (h1 + h2))
		w1 = (h1 + h2) / (h1 * h2)
		w2 = -h1 / (h2 * (h1 + h2))
	case 1:
		w0 = -h2 / (h1 * (h1 + h2))
		w1 = (h2 - h1) / (h1 * h2)
		w2 = h1 / (h2 * (h1 + h2))
	default:
		w0 = h2 / (h1 * (h1 + h2))
		w1 = -(h1 + h2) / (h1 * h2)
		w2 = (h1 + 2*h2) / (h2 * (h1 + h2))
	}
	for k := 0; k < 3; k++ {
		vel[k] = w0*o.r[i0][k] + w1*o.r[i0+1][k] + w2*o.r[i0+2][k]
	}
	return vel
}

// buildWindows precomputes the Hermite divided differences of every window.
func (o *OrbitModel) buildWindows() {
	m := o.window
	count := len(o.t) - m + 1
	o.nodes = make([][]float64, count)
	o.coeffs = make([][][]float64, count)
	for s := 0; s < count; s++ {
		z := make([]float64, 2*m)
		for i := 0; i < m; i++ {
			z[2*i] = o.t[s+i] - o.t[s]
			z[2*i+1] = z[2*i]
		}
		o.nodes[s] = z
		o.coeffs[s] = make([][]float64, 3)
		for axis := 0; axis < 3; axis++ {
			f := make([]float64, m)
			df := make([]float64, m)
			for i := 0; i < m; i++ {
				f[i] = o.r[s+i][axis]
				df[i] = o.v[s+i][axis]
			}
			o.coeffs[s][axis] = hermiteCoefficients(z, f, df)
		}
	}
}

// hermiteCoefficients returns the Newton form coefficients of the Hermite
// polynomial through the values f and derivatives df at the doubled nodes z.
func hermiteCoefficients(z, f, df []float64) []float64 {
	N := len(z)
	q := make([][]float64, N)
	for i := range q {
		q[i] = make([]float64, N)
		q[i][0] = f[i/2]
	}
	for i := 1; i < N; i++ {
		if i%2 == 1 {
			q[i][1] = df[i/2]
		} else {
			q[i][1] = (q[i][0] - q[i-1][0]) / (z[i] - z[i-1])
		}
	}
	for j := 2; j < N; j++ {
		for i := j; i < N; i++ {
			q[i][j] = (q[i][j-1] - q[i-1][j-1]) / (z[i] - z[i-j])
		}
	}
	c := make([]float64, N)
	for i := range c {
		c[i] = q[i][i]
	}
	return c
}

// evalNewton evaluates the Newton form polynomial and its first two derivatives.
func evalNewton(z, c []float64, x float64) (p, dp, ddp float64) {
	N := len(c)
	p = c[N-1]
	for k := N - 2; k >= 0; k-- {
		dx := x - z[k]
		ddp = ddp*dx + 2*dp
		dp = dp*dx + p
		p = p*dx + c[k]
	}
	return
}

// Epoch returns the time of the first sample, origin of the internal time scale.
func (o *OrbitModel) Epoch() time.Time {
	return o.epoch
}

// Span returns the times of the first and last samples.
func (o *OrbitModel) Span() (start, end time.Time) {
	return o.epoch, o.times[len(o.times)-1]
}

// Samples returns a copy of the samples, with the estimated velocities filled in.
func (o *OrbitModel) Samples() []EphemerisSample {
	s := make([]EphemerisSample, len(o.t))
	for i := range s {
		s[i] = EphemerisSample{
			Time:     o.times[i],
			Position: append([]float64(nil), o.r[i]...),
			Velocity: append([]float64(nil), o.v[i]...),
		}
	}
	return s
}

// VelocityEstimated returns whether any sample velocity was estimated.
func (o *OrbitModel) VelocityEstimated() bool {
	for _, e := range o.estimated {
		if e {
			return true
		}
	}
	return false
}

// PositionAt returns the interpolated ECEF position and velocity at t, and
// whether t is outside of the ephemeris span.
func (o *OrbitModel) PositionAt(t time.Time) (R, V []float64, extrapolated bool) {
	R, V, _, extrapolated = o.stateAt(o.seconds(t))
	return
}

// seconds converts an absolute time to the internal time scale.
func (o *OrbitModel) seconds(t time.Time) float64 {
	return t.Sub(o.epoch).Seconds()
}

// at converts the internal time scale to an absolute time.
func (o *OrbitModel) at(τ float64) time.Time {
	return o.epoch.Add(time.Duration(math.Round(τ * 1e9)))
}

// inSpan returns whether τ is within the ephemeris span.
func (o *OrbitModel) inSpan(τ float64) bool {
	return τ >= o.t[0] && τ <= o.t[len(o.t)-1]
}

// stateAt returns position, velocity and acceleration at τ seconds since the epoch.
func (o *OrbitModel) stateAt(τ float64) (R, V, A []float64, extrapolated bool) {
	n := len(o.t)
	extrapolated = !o.inSpan(τ)
	// Index of the last sample not after τ, -1 before the first one.
	k := sort.Search(n, func(i int) bool { return o.t[i] > τ }) - 1
	start := k - o.window/2 + 1
	if start < 0 {
		start = 0
	}
	if start > n-o.window {
		start = n - o.window
	}
	z := o.nodes[start]
	x := τ - o.t[start]
	R = make([]float64, 3)
	V = make([]float64, 3)
	A = make([]float64, 3)
	for axis := 0; axis < 3; axis++ {
		R[axis], V[axis], A[axis] = evalNewton(z, o.coeffs[start][axis], x)
	}
	if k >= 0 && o.t[k] == τ {
		// Sample hit: return the stored state as is.
		copy(R, o.r[k])
		copy(V, o.v[k])
	}
	return
}
