package sarloc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidEphemeris is returned when the ephemeris samples cannot build an orbit model.
	ErrInvalidEphemeris = errors.New("invalid ephemeris")
	// ErrInvalidTiming is returned for inconsistent sensor timing parameters.
	ErrInvalidTiming = errors.New("invalid sensor timing")
	// ErrMissingCoefficients is returned when a ground projected product has no SRGR set.
	ErrMissingCoefficients = errors.New("missing SRGR coefficients")
	// ErrNoConvergence is returned when an iterative solver ran out of iterations.
	ErrNoConvergence = errors.New("no convergence")
	// ErrInsufficientControlPoints is returned when no GCP could be used for optimization.
	ErrInsufficientControlPoints = errors.New("insufficient control points")
)

// ConvergenceError reports an exhausted iteration budget.
type ConvergenceError struct {
	Op         string    // solver which failed
	Iterations int       // iterations performed
	Residuals  []float64 // last residuals, in the units of the solver
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: %s after %d iterations (residuals %v)", e.Op, ErrNoConvergence, e.Iterations, e.Residuals)
}

// Is makes errors.Is(err, ErrNoConvergence) hold.
func (e *ConvergenceError) Is(target error) bool {
	return target == ErrNoConvergence
}

// Status flags soft conditions on an otherwise valid result.
type Status uint8

const (
	// Extrapolated is set when the azimuth time fell outside the ephemeris span.
	Extrapolated Status = 1 << iota
	// NotConverged is set in best effort mode when the last iterate is returned.
	NotConverged
)

// Has returns whether all the flags of f are set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

func (s Status) String() string {
	switch s {
	case 0:
		return "ok"
	case Extrapolated:
		return "extrapolated"
	case NotConverged:
		return "not-converged"
	case Extrapolated | NotConverged:
		return "extrapolated,not-converged"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}
