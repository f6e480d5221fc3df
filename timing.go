package sarloc

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

const (
	// SpeedOfLight in m/s.
	SpeedOfLight = 299792458.0
	// nominalWavelength (C band) scales range rates to Hz when no wavelength is known.
	nominalWavelength = 0.0555
)

// LookSide of the antenna with respect to the flight direction.
type LookSide int8

const (
	// RightLooking is the default.
	RightLooking LookSide = iota
	// LeftLooking antenna.
	LeftLooking
)

// SRGRCoefficients is one ground range to slant range polynomial:
// slant = Σ Coefficients[i] * (ground - ReferenceGroundRange)^Exponents[i].
type SRGRCoefficients struct {
	ValidTime            time.Time
	ReferenceGroundRange float64
	Exponents            []int
	Coefficients         []float64
}

// eval returns the slant range and its derivative with respect to ground range.
func (c SRGRCoefficients) eval(groundRange float64) (slant, dSlant float64) {
	x := groundRange - c.ReferenceGroundRange
	for i, e := range c.Exponents {
		slant += c.Coefficients[i] * math.Pow(x, float64(e))
		if e != 0 {
			dSlant += c.Coefficients[i] * float64(e) * math.Pow(x, float64(e-1))
		}
	}
	return
}

// TimingParams are the radar timing constants of a product, as provided by the
// metadata reader of the mission.
type TimingParams struct {
	AzimuthTime0    time.Time // time of line 0
	PRF             float64   // Hz
	AzimuthLooks    float64   // defaults to 1
	LineDirection   float64   // +1 (default) or -1
	NearSlantRange  float64   // meters, slant range of column 0
	RangeSampling   float64   // meters per column, slant range products
	GroundProjected bool
	NearGroundRange float64 // meters, ground range of column 0
	PixelSpacing    float64 // meters per column, ground range products
	ColumnDirection float64 // +1 (default) or -1
	SRGR            []SRGRCoefficients
	Wavelength      float64 // meters, zero if unknown
	DopplerCentroid float64 // Hz, reference Doppler of the focused product
	LookSide        LookSide
}

// SensorTiming maps image lines to azimuth times and columns to slant ranges.
// It is immutable once built.
type SensorTiming struct {
	p      TimingParams
	srgr   []SRGRCoefficients // sorted by valid time
	colTol float64
	maxIt  int
}

// NewSensorTiming validates the parameters and returns the timing model.
func NewSensorTiming(p TimingParams, conf Config) (*SensorTiming, error) {
	if p.AzimuthLooks == 0 {
		p.AzimuthLooks = 1
	}
	if p.LineDirection == 0 {
		p.LineDirection = 1
	}
	if p.ColumnDirection == 0 {
		p.ColumnDirection = 1
	}
	switch {
	case !(p.PRF > 0):
		return nil, errors.Wrapf(ErrInvalidTiming, "PRF must be positive, got %f", p.PRF)
	case p.AzimuthLooks < 0:
		return nil, errors.Wrapf(ErrInvalidTiming, "azimuth looks must be positive, got %f", p.AzimuthLooks)
	case math.Abs(p.LineDirection) != 1 || math.Abs(p.ColumnDirection) != 1:
		return nil, errors.Wrap(ErrInvalidTiming, "line and column directions must be +1 or -1")
	case p.Wavelength < 0:
		return nil, errors.Wrapf(ErrInvalidTiming, "negative wavelength %f", p.Wavelength)
	case p.GroundProjected && !(p.PixelSpacing > 0):
		return nil, errors.Wrapf(ErrInvalidTiming, "ground projected product needs a positive pixel spacing, got %f", p.PixelSpacing)
	case !p.GroundProjected && !(p.RangeSampling > 0):
		return nil, errors.Wrapf(ErrInvalidTiming, "slant range product needs a positive range sampling, got %f", p.RangeSampling)
	}
	srgr := make([]SRGRCoefficients, len(p.SRGR))
	for i, c := range p.SRGR {
		if len(c.Exponents) == 0 || len(c.Exponents) != len(c.Coefficients) {
			return nil, errors.Wrapf(ErrInvalidTiming, "SRGR set %d: %d exponents for %d coefficients", i, len(c.Exponents), len(c.Coefficients))
		}
		for _, e := range c.Exponents {
			if e < 0 {
				return nil, errors.Wrapf(ErrInvalidTiming, "SRGR set %d: negative exponent %d", i, e)
			}
		}
		srgr[i] = c
	}
	sort.SliceStable(srgr, func(i, j int) bool { return srgr[i].ValidTime.Before(srgr[j].ValidTime) })
	p.SRGR = srgr
	return &SensorTiming{p: p, srgr: srgr, colTol: conf.ColumnTolerance, maxIt: conf.MaxIterations}, nil
}

// Params returns the normalized timing parameters.
func (s *SensorTiming) Params() TimingParams {
	return s.p
}

// lineOffset returns the azimuth time of a line in seconds after AzimuthTime0.
func (s *SensorTiming) lineOffset(line float64) float64 {
	return s.p.LineDirection * line * s.p.AzimuthLooks / s.p.PRF
}

// lineFromOffset is the inverse of lineOffset.
func (s *SensorTiming) lineFromOffset(sec float64) float64 {
	return sec * s.p.PRF / (s.p.LineDirection * s.p.AzimuthLooks)
}

// TimeForLine returns the azimuth time of a (fractional) line.
func (s *SensorTiming) TimeForLine(line float64) time.Time {
	return s.p.AzimuthTime0.Add(time.Duration(math.Round(s.lineOffset(line) * 1e9)))
}

// LineForTime returns the (fractional) line acquired at t.
func (s *SensorTiming) LineForTime(t time.Time) float64 {
	return s.lineFromOffset(t.Sub(s.p.AzimuthTime0).Seconds())
}

// groundRange returns the ground range of a column.
func (s *SensorTiming) groundRange(column float64) float64 {
	return s.p.NearGroundRange + s.p.ColumnDirection*column*s.p.PixelSpacing
}

// SRGRAt selects the coefficient set for t: the latest one valid at or before t,
// otherwise the earliest one.
func (s *SensorTiming) SRGRAt(t time.Time) (SRGRCoefficients, error) {
	if len(s.srgr) == 0 {
		return SRGRCoefficients{}, errors.Wrapf(ErrMissingCoefficients, "ground projected product at %s", t)
	}
	// First set strictly after t.
	i := sort.Search(len(s.srgr), func(i int) bool { return s.srgr[i].ValidTime.After(t) })
	if i == 0 {
		return s.srgr[0], nil
	}
	return s.srgr[i-1], nil
}

// SlantRangeForColumn returns the slant range in meters of a column at time t.
func (s *SensorTiming) SlantRangeForColumn(column float64, t time.Time) (float64, error) {
	if !s.p.GroundProjected {
		return s.p.NearSlantRange + s.p.ColumnDirection*column*s.p.RangeSampling, nil
	}
	set, err := s.SRGRAt(t)
	if err != nil {
		return 0, err
	}
	r, _ := set.eval(s.groundRange(column))
	return r, nil
}

// ColumnForSlantRange returns the (fractional) column whose slant range at t is r.
func (s *SensorTiming) ColumnForSlantRange(r float64, t time.Time) (float64, error) {
	if !s.p.GroundProjected {
		return (r - s.p.NearSlantRange) / (s.p.ColumnDirection * s.p.RangeSampling), nil
	}
	set, err := s.SRGRAt(t)
	if err != nil {
		return 0, err
	}
	return s.invertSRGR(set, r)
}

// invertSRGR solves the SRGR polynomial for the column with a Newton iteration
// safeguarded by bisection on a bracketing interval.
func (s *SensorTiming) invertSRGR(set SRGRCoefficients, r float64) (float64, error) {
	dg := s.p.ColumnDirection * s.p.PixelSpacing
	f := func(c float64) (float64, float64) {
		slant, dSlant := set.eval(s.groundRange(c))
		return slant - r, dSlant * dg
	}
	// Bracket the root, growing outwards from column zero.
	lo, hi := -1024.0, 1024.0
	flo, _ := f(lo)
	fhi, _ := f(hi)
	for i := 0; flo*fhi > 0; i++ {
		if i == 40 {
			return math.NaN(), &ConvergenceError{Op: "srgr inversion", Iterations: i, Residuals: []float64{flo, fhi}}
		}
		width := hi - lo
		lo -= width
		hi += width
		flo, _ = f(lo)
		fhi, _ = f(hi)
	}
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if flo > 0 {
		lo, hi = hi, lo
	}
	c := 0.5 * (lo + hi)
	for i := 0; i < s.maxIt*2; i++ {
		fc, dfc := f(c)
		if fc == 0 {
			return c, nil
		}
		if fc < 0 {
			lo = c
		} else {
			hi = c
		}
		next := c - fc/dfc
		// Fall back to bisection when Newton leaves the bracket.
		if dfc == 0 || math.IsNaN(next) || (next-lo)*(next-hi) > 0 {
			next = 0.5 * (lo + hi)
		}
		if math.Abs(next-c) < s.colTol {
			return next, nil
		}
		c = next
	}
	fc, _ := f(c)
	return c, &ConvergenceError{Op: "srgr inversion", Iterations: s.maxIt * 2, Residuals: []float64{fc}}
}
