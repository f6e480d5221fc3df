package sarloc

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// maxNewtonStep bounds a single tangent plane update of the direct solver, in meters.
const maxNewtonStep = 2e5

// Localization is the result of a direct (image to ground) localization.
type Localization struct {
	Ground     GeoPoint  // in the configured angle unit
	ECEF       []float64 // meters
	Time       time.Time // azimuth time
	SlantRange float64   // meters
	Iterations int
	Status     Status
}

// ImagePoint is the result of an inverse (ground to image) localization.
type ImagePoint struct {
	Line, Column float64
	Time         time.Time // zero-Doppler azimuth time
	SlantRange   float64   // meters
	Iterations   int
	Status       Status
}

// hint is a known ground point used to start the solvers.
type hint struct {
	ecef []float64
	τ    float64 // orbit time scale
}

// RangeDopplerSolver solves the range and Doppler equations between the
// platform trajectory and a ground point. It only reads its orbit and timing
// models and is safe for concurrent use.
type RangeDopplerSolver struct {
	orbit    *OrbitModel
	timing   *SensorTiming
	conf     Config
	offset   float64 // AzimuthTime0 in the orbit time scale
	k        float64 // range rate (m/s) to Doppler (Hz)
	targetRR float64 // range rate matching the reference Doppler
}

// NewRangeDopplerSolver returns a solver for the provided models.
func NewRangeDopplerSolver(orbit *OrbitModel, timing *SensorTiming, conf Config) *RangeDopplerSolver {
	λ := timing.p.Wavelength
	if λ == 0 {
		λ = nominalWavelength
	}
	return &RangeDopplerSolver{
		orbit:    orbit,
		timing:   timing,
		conf:     conf,
		offset:   orbit.seconds(timing.p.AzimuthTime0),
		k:        2 / λ,
		targetRR: -λ * timing.p.DopplerCentroid / 2,
	}
}

// ImageToGround localizes a line and column of the timing model at the
// provided height above the ellipsoid, starting from the nadir point.
func (s *RangeDopplerSolver) ImageToGround(line, column, height float64) (Localization, error) {
	return s.direct(line, column, height, nil)
}

// GroundToImage returns the line and column of the timing model where the
// ground point is seen, searching the zero-Doppler time over the whole orbit.
func (s *RangeDopplerSolver) GroundToImage(g GeoPoint) (ImagePoint, error) {
	return s.inverse(GEO2ECEF(g.Height, s.conf.toRadians(g.Lat), s.conf.toRadians(g.Lon)), nil)
}

// residuals returns the range (m) and Doppler (Hz) residuals of a ground point.
func (s *RangeDopplerSolver) residuals(S, V, P []float64, r float64) (fρ, fD, ρ, rr float64, D []float64) {
	D = sub(S, P)
	ρ = norm(D)
	rr = dot(D, V) / ρ
	return ρ - r, s.k * (rr - s.targetRR), ρ, rr, D
}

// direct solves for the point of the ellipsoid offset by height which is at
// the slant range of column and at the reference Doppler at the time of line.
func (s *RangeDopplerSolver) direct(line, column, height float64, h *hint) (Localization, error) {
	τ := s.offset + s.timing.lineOffset(line)
	t := s.timing.TimeForLine(line)
	r, err := s.timing.SlantRangeForColumn(column, t)
	if err != nil {
		return Localization{}, err
	}
	S, V, _, extrapolated := s.orbit.stateAt(τ)
	loc := Localization{Time: t, SlantRange: r}
	if extrapolated {
		loc.Status |= Extrapolated
	}

	var P []float64
	var lat, lon float64
	if h != nil && math.Abs(h.τ-τ) <= s.conf.ReferenceWindow.Seconds() {
		P, lat, lon = projectToHeight(h.ecef, height)
	} else {
		P, lat, lon = s.acrossTrackGuess(S, V, r, height)
	}

	var fρ, fD float64
	for it := 0; ; it++ {
		var ρ, rr float64
		var D []float64
		fρ, fD, ρ, rr, D = s.residuals(S, V, P, r)
		if math.Abs(fρ) < s.conf.RangeTolerance && math.Abs(fD) < s.conf.DopplerTolerance {
			loc.Iterations = it
			break
		}
		if it == s.conf.MaxIterations {
			loc.Iterations = it
			if !s.conf.BestEffort {
				return loc, &ConvergenceError{Op: "range-doppler", Iterations: it, Residuals: []float64{fρ, fD}}
			}
			loc.Status |= NotConverged
			break
		}
		u := unit(D)
		// Partials of the residuals with respect to the ground point.
		dρ := []float64{-u[0], -u[1], -u[2]}
		dD := make([]float64, 3)
		for i := 0; i < 3; i++ {
			dD[i] = s.k * (-V[i] + rr*u[i]) / ρ
		}
		e, n, _ := enu(lat, lon)
		J := mat.NewDense(2, 2, []float64{dot(dρ, e), dot(dρ, n), dot(dD, e), dot(dD, n)})
		F := mat.NewVecDense(2, []float64{-fρ, -fD})
		var δ mat.VecDense
		if err := δ.SolveVec(J, F); err != nil {
			return loc, errors.Wrapf(&ConvergenceError{Op: "range-doppler", Iterations: it, Residuals: []float64{fρ, fD}}, "singular jacobian: %s", err)
		}
		δe, δn := δ.AtVec(0), δ.AtVec(1)
		if step := math.Hypot(δe, δn); step > maxNewtonStep {
			δe *= maxNewtonStep / step
			δn *= maxNewtonStep / step
		}
		P, lat, lon = projectToHeight(addScaled(addScaled(P, δe, e), δn, n), height)
	}
	loc.ECEF = P
	loc.Ground = GeoPoint{Lat: s.conf.fromRadians(lat), Lon: s.conf.fromRadians(wrapπ(lon)), Height: height}
	return loc, nil
}

// acrossTrackGuess returns a first ground point: the nadir of the platform
// moved on the look side by the ground distance implied by the slant range.
func (s *RangeDopplerSolver) acrossTrackGuess(S, V []float64, r, height float64) ([]float64, float64, float64) {
	nadir, lat, lon := projectToHeight(S, height)
	_, _, up := enu(lat, lon)
	along := unit(addScaled(V, -dot(V, up), up))
	side := cross(along, up)
	if s.timing.p.LookSide == LeftLooking {
		side = []float64{-side[0], -side[1], -side[2]}
	}
	H := norm(sub(S, nadir))
	d := math.Sqrt(math.Max(r*r-H*H, 0))
	if d == 0 {
		// Offset a little so that the Jacobian is not singular at nadir.
		d = 1e3
	}
	return projectToHeight(addScaled(nadir, d, side), height)
}

// doppler returns the Doppler residual (Hz) at τ and its time derivative.
func (s *RangeDopplerSolver) doppler(P []float64, τ float64) (g, dg float64) {
	S, V, A, _ := s.orbit.stateAt(τ)
	D := sub(S, P)
	ρ := norm(D)
	rr := dot(D, V) / ρ
	g = s.k * (rr - s.targetRR)
	dg = s.k * (dot(V, V) + dot(D, A) - rr*rr) / ρ
	return
}

// inverse finds the zero-Doppler time of an ECEF ground point, then its line and column.
func (s *RangeDopplerSolver) inverse(P []float64, h *hint) (ImagePoint, error) {
	var brackets [][2]float64
	if h != nil {
		w := s.conf.ReferenceWindow.Seconds()
		brackets = append(brackets, [2]float64{h.τ - w, h.τ + w})
	}
	m := s.conf.ExtrapolationMargin.Seconds()
	brackets = append(brackets, [2]float64{s.orbit.t[0] - m, s.orbit.t[len(s.orbit.t)-1] + m})

	var lo, hi, glo, ghi float64
	found := false
	for _, b := range brackets {
		lo, hi = b[0], b[1]
		glo, _ = s.doppler(P, lo)
		ghi, _ = s.doppler(P, hi)
		if glo*ghi <= 0 {
			found = true
			break
		}
	}
	if !found {
		return ImagePoint{}, errors.Wrap(&ConvergenceError{Op: "zero-doppler", Residuals: []float64{glo, ghi}}, "no zero-Doppler crossing within the ephemeris span")
	}
	if glo > 0 {
		lo, hi, glo, ghi = hi, lo, ghi, glo
	}
	// Start from the secant between the bracket ends.
	τ := lo
	if ghi != glo {
		τ = lo - glo*(hi-lo)/(ghi-glo)
	}
	pt := ImagePoint{}
	converged := false
	var g float64
	for it := 1; it <= s.conf.MaxIterations; it++ {
		var dg float64
		g, dg = s.doppler(P, τ)
		pt.Iterations = it
		if g == 0 {
			converged = true
			break
		}
		if g < 0 {
			lo = τ
		} else {
			hi = τ
		}
		next := τ - g/dg
		if dg == 0 || math.IsNaN(next) || (next-lo)*(next-hi) > 0 {
			next = 0.5 * (lo + hi)
		}
		δ := next - τ
		τ = next
		if math.Abs(δ) < s.conf.TimeTolerance {
			converged = true
			break
		}
	}
	if !converged {
		if !s.conf.BestEffort {
			return pt, &ConvergenceError{Op: "zero-doppler", Iterations: pt.Iterations, Residuals: []float64{g}}
		}
		pt.Status |= NotConverged
	}
	if !s.orbit.inSpan(τ) {
		pt.Status |= Extrapolated
	}
	S, _, _, _ := s.orbit.stateAt(τ)
	pt.SlantRange = norm(sub(S, P))
	pt.Time = s.orbit.at(τ)
	pt.Line = s.timing.lineFromOffset(τ - s.offset)
	col, err := s.timing.ColumnForSlantRange(pt.SlantRange, pt.Time)
	if err != nil {
		return pt, err
	}
	pt.Column = col
	return pt, nil
}
