package sarloc

import (
	"math"

	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// Mission gathers the inputs of a sensor model, as produced by the metadata
// reader of a given mission (RadarSat, TerraSAR-X, Envisat, ...).
type Mission struct {
	Name           string
	Ephemeris      []EphemerisSample
	Timing         TimingParams
	Lines, Columns int             // image size, used to place a default reference point
	Reference      *ReferencePoint // nil to compute one at the scene center
}

// Option configures a SensorModel.
type Option func(*SensorModel)

// WithConfig sets the solver configuration.
func WithConfig(conf Config) Option {
	return func(m *SensorModel) {
		m.conf = conf
	}
}

// WithLogger sets the logger.
func WithLogger(logger kitlog.Logger) Option {
	return func(m *SensorModel) {
		m.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(m *SensorModel) {
		m.metrics = metrics
	}
}

// WithHeightSource sets the height source used by ImageToGroundWithHeights and
// for the default reference point.
func WithHeightSource(h HeightSource) Option {
	return func(m *SensorModel) {
		m.heights = h
	}
}

// SensorModel converts between image coordinates and geodetic coordinates for
// one SAR product.
//
// All queries only read the model and may run concurrently, but Optimize
// updates the reference point and must not run concurrently with any query.
type SensorModel struct {
	name    string
	conf    Config
	orbit   *OrbitModel
	timing  *SensorTiming
	solver  *RangeDopplerSolver
	anc     anchor
	refHint hint
	heights HeightSource
	logger  kitlog.Logger
	metrics *Metrics
}

// NewSensorModel builds the sensor model of a mission.
func NewSensorModel(mission Mission, opts ...Option) (*SensorModel, error) {
	m := &SensorModel{
		name:    mission.Name,
		conf:    DefaultConfig(),
		heights: ConstantHeight(0),
		logger:  kitlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	m.logger = kitlog.With(m.logger, "mission", mission.Name)
	var err error
	if m.orbit, err = NewOrbitModel(mission.Ephemeris, m.conf.HermiteWindow); err != nil {
		return nil, err
	}
	if m.timing, err = NewSensorTiming(mission.Timing, m.conf); err != nil {
		return nil, err
	}
	m.solver = NewRangeDopplerSolver(m.orbit, m.timing, m.conf)

	var ref ReferencePoint
	if mission.Reference != nil {
		ref = *mission.Reference
	} else if ref, err = m.centerReference(mission.Lines, mission.Columns); err != nil {
		return nil, errors.Wrap(err, "could not compute the reference point")
	}
	if err = m.setReference(ref); err != nil {
		return nil, err
	}
	start, end := m.orbit.Span()
	m.logger.Log("level", "info", "subsys", "model", "ephemeris", len(mission.Ephemeris), "start", start, "end", end, "velocityEstimated", m.orbit.VelocityEstimated(), "ref", ref)
	return m, nil
}

// centerReference localizes the scene center with the timing model.
func (m *SensorModel) centerReference(lines, columns int) (ReferencePoint, error) {
	line, column := float64(lines)/2, float64(columns)/2
	loc, err := m.withHeights(func(h float64) (Localization, error) {
		return m.solver.direct(line, column, h, nil)
	}, m.heights.HeightAt(0, 0))
	if err != nil {
		return ReferencePoint{}, err
	}
	return ReferencePoint{Line: line, Column: column, Ground: loc.Ground, Time: loc.Time, SlantRange: loc.SlantRange}, nil
}

// setReference installs a new reference point.
func (m *SensorModel) setReference(ref ReferencePoint) error {
	anc, err := newAnchor(ref, m.timing)
	if err != nil {
		return errors.Wrap(err, "reference point")
	}
	m.anc = anc
	m.refHint = hint{
		ecef: GEO2ECEF(ref.Ground.Height, m.conf.toRadians(ref.Ground.Lat), m.conf.toRadians(ref.Ground.Lon)),
		τ:    m.orbit.seconds(ref.Time),
	}
	return nil
}

// Name returns the mission name.
func (m *SensorModel) Name() string {
	return m.name
}

// Config returns the configuration of the model.
func (m *SensorModel) Config() Config {
	return m.conf
}

// Orbit returns the orbit model.
func (m *SensorModel) Orbit() *OrbitModel {
	return m.orbit
}

// Timing returns the sensor timing model.
func (m *SensorModel) Timing() *SensorTiming {
	return m.timing
}

// Solver returns the range-Doppler solver, which works in the coordinates of the
// timing model and ignores the reference point.
func (m *SensorModel) Solver() *RangeDopplerSolver {
	return m.solver
}

// Reference returns the current reference point, for inspection or persistence.
func (m *SensorModel) Reference() ReferencePoint {
	return m.anc.ref
}

// ImageToGround localizes an image coordinate at the provided height above the ellipsoid.
func (m *SensorModel) ImageToGround(line, column, height float64) (Localization, error) {
	tl, tc := m.anc.toTiming(line, column)
	loc, err := m.solver.direct(tl, tc, height, &m.refHint)
	m.metrics.observe(directionDirect, loc.Iterations, loc.Status, err)
	return loc, err
}

// ImageToGroundWithHeights localizes an image coordinate on the surface given by
// the height source, alternating localization and height lookups until the
// height settles.
func (m *SensorModel) ImageToGroundWithHeights(line, column float64) (Localization, error) {
	return m.withHeights(func(h float64) (Localization, error) {
		return m.ImageToGround(line, column, h)
	}, m.heights.HeightAt(m.anc.ref.Ground.Lat, m.anc.ref.Ground.Lon))
}

func (m *SensorModel) withHeights(localize func(float64) (Localization, error), h float64) (Localization, error) {
	var loc Localization
	var err error
	for it := 0; it < m.conf.MaxHeightIterations; it++ {
		if loc, err = localize(h); err != nil {
			return loc, err
		}
		next := m.heights.HeightAt(loc.Ground.Lat, loc.Ground.Lon)
		if math.Abs(next-h) < m.conf.HeightTolerance {
			return loc, nil
		}
		h = next
	}
	if !m.conf.BestEffort {
		return loc, &ConvergenceError{Op: "height", Iterations: m.conf.MaxHeightIterations, Residuals: []float64{m.heights.HeightAt(loc.Ground.Lat, loc.Ground.Lon) - h}}
	}
	loc.Status |= NotConverged
	return loc, nil
}

// GroundToImage returns the image coordinate where a ground point is seen.
func (m *SensorModel) GroundToImage(g GeoPoint) (ImagePoint, error) {
	pt, err := m.groundToTiming(g)
	if err == nil {
		pt.Line, pt.Column = m.anc.toImage(pt.Line, pt.Column)
	}
	m.metrics.observe(directionInverse, pt.Iterations, pt.Status, err)
	return pt, err
}

// groundToTiming is GroundToImage without the reference point correction.
func (m *SensorModel) groundToTiming(g GeoPoint) (ImagePoint, error) {
	return m.solver.inverse(GEO2ECEF(g.Height, m.conf.toRadians(g.Lat), m.conf.toRadians(g.Lon)), &m.refHint)
}
