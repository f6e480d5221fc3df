package sarloc

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Localization directions, used as metric labels.
const (
	directionDirect  = "direct"
	directionInverse = "inverse"
)

// Metrics bundles the Prometheus collectors of the localization core.
type Metrics struct {
	Localizations   *prometheus.CounterVec
	Iterations      *prometheus.HistogramVec
	OptimizerPasses prometheus.Counter
	OptimizerRMS    prometheus.Gauge
}

// NewMetrics registers the collectors against reg, defaulting to the global
// Prometheus registry when nil. Collectors which are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	locs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sarloc_localizations_total",
		Help: "Localizations performed, by direction and outcome.",
	}, []string{"direction", "outcome"})
	if err := register(reg, &locs); err != nil {
		return nil, err
	}
	its := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sarloc_solver_iterations",
		Help:    "Iterations of the range-Doppler and zero-Doppler solvers.",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20, 30, 50},
	}, []string{"direction"})
	if err := register(reg, &its); err != nil {
		return nil, err
	}
	passes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sarloc_optimizer_passes_total",
		Help: "Bias estimation passes run by the GCP optimizer.",
	})
	if err := register(reg, &passes); err != nil {
		return nil, err
	}
	rms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sarloc_optimizer_rms_pixels",
		Help: "RMS image residual over the GCPs after the last optimization.",
	})
	if err := register(reg, &rms); err != nil {
		return nil, err
	}
	return &Metrics{Localizations: locs, Iterations: its, OptimizerPasses: passes, OptimizerRMS: rms}, nil
}

// register registers c, replacing it with the existing collector of the same
// type when one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return errors.Errorf("collector %T already registered with incompatible type", *c)
		}
		*c = existing
	}
	return nil
}

// outcome returns the outcome label of a localization.
func outcome(status Status, err error) string {
	switch {
	case err != nil:
		return "failed"
	case status.Has(NotConverged):
		return "not_converged"
	case status.Has(Extrapolated):
		return "extrapolated"
	default:
		return "ok"
	}
}

func (m *Metrics) observe(direction string, iterations int, status Status, err error) {
	if m == nil {
		return
	}
	m.Localizations.WithLabelValues(direction, outcome(status, err)).Inc()
	if err == nil {
		m.Iterations.WithLabelValues(direction).Observe(float64(iterations))
	}
}

func (m *Metrics) observeOptimization(passes int, rms float64) {
	if m == nil {
		return
	}
	m.OptimizerPasses.Add(float64(passes))
	m.OptimizerRMS.Set(rms)
}
