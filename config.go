package sarloc

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Angle units of GeoPoint latitudes and longitudes.
const (
	Degrees = "degrees"
	Radians = "radians"
)

// Optimizer modes.
const (
	// BiasOnly shifts the reference image coordinate by the mean residual.
	BiasOnly = "bias"
	// Affine also fits a per axis scale about the reference point.
	Affine = "affine"
)

// Config holds the numerical settings of the solvers.
type Config struct {
	Angles              string        // Degrees or Radians
	HermiteWindow       int           // number of ephemeris samples per interpolation window (>= 2)
	RangeTolerance      float64       // meters
	DopplerTolerance    float64       // Hz
	TimeTolerance       float64       // seconds, zero-Doppler time search
	ColumnTolerance     float64       // pixels, SRGR inversion
	MaxIterations       int           // per solve
	BestEffort          bool          // return the last iterate flagged NotConverged instead of failing
	ReferenceWindow     time.Duration // reference point is used as a guess within this window
	ExtrapolationMargin time.Duration // zero-Doppler search beyond the ephemeris span
	OptimizerMode       string        // BiasOnly or Affine
	OptimizerTolerance  float64       // pixels, RMS residual
	MaxPasses           int
	HeightTolerance     float64 // meters, height source iteration
	MaxHeightIterations int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Angles:              Degrees,
		HermiteWindow:       2,
		RangeTolerance:      1e-4,
		DopplerTolerance:    1e-4,
		TimeTolerance:       1e-9,
		ColumnTolerance:     1e-6,
		MaxIterations:       50,
		ReferenceWindow:     30 * time.Second,
		ExtrapolationMargin: 60 * time.Second,
		OptimizerMode:       BiasOnly,
		OptimizerTolerance:  1e-3,
		MaxPasses:           10,
		HeightTolerance:     1e-2,
		MaxHeightIterations: 20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Angles != Degrees && c.Angles != Radians:
		return errors.Errorf("unknown angle unit `%s`", c.Angles)
	case c.OptimizerMode != BiasOnly && c.OptimizerMode != Affine:
		return errors.Errorf("unknown optimizer mode `%s`", c.OptimizerMode)
	case c.HermiteWindow < 2:
		return errors.Errorf("hermite window must be at least 2, got %d", c.HermiteWindow)
	case c.MaxIterations < 1 || c.MaxPasses < 1 || c.MaxHeightIterations < 1:
		return errors.New("iteration caps must be positive")
	case c.RangeTolerance <= 0 || c.DopplerTolerance <= 0 || c.TimeTolerance <= 0 || c.ColumnTolerance <= 0:
		return errors.New("solver tolerances must be positive")
	case c.OptimizerTolerance <= 0 || c.HeightTolerance <= 0:
		return errors.New("optimizer and height tolerances must be positive")
	}
	return nil
}

// toRadians converts a configured angle to radians.
func (c Config) toRadians(a float64) float64 {
	if c.Angles == Radians {
		return a
	}
	return Deg2rad(a)
}

// fromRadians converts radians to the configured angle unit.
func (c Config) fromRadians(a float64) float64 {
	if c.Angles == Radians {
		return a
	}
	return Rad2deg(a)
}

// ConfigFromViper reads the configuration keys from v, using the defaults for
// anything which is not set.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	c := DefaultConfig()
	if v.IsSet("geo.angles") {
		c.Angles = strings.ToLower(v.GetString("geo.angles"))
	}
	if v.IsSet("orbit.hermite_window") {
		c.HermiteWindow = v.GetInt("orbit.hermite_window")
	}
	if v.IsSet("solver.range_tolerance") {
		c.RangeTolerance = v.GetFloat64("solver.range_tolerance")
	}
	if v.IsSet("solver.doppler_tolerance") {
		c.DopplerTolerance = v.GetFloat64("solver.doppler_tolerance")
	}
	if v.IsSet("solver.time_tolerance") {
		c.TimeTolerance = v.GetFloat64("solver.time_tolerance")
	}
	if v.IsSet("timing.column_tolerance") {
		c.ColumnTolerance = v.GetFloat64("timing.column_tolerance")
	}
	if v.IsSet("solver.max_iterations") {
		c.MaxIterations = v.GetInt("solver.max_iterations")
	}
	if v.IsSet("solver.best_effort") {
		c.BestEffort = v.GetBool("solver.best_effort")
	}
	if v.IsSet("solver.reference_window") {
		c.ReferenceWindow = v.GetDuration("solver.reference_window")
	}
	if v.IsSet("solver.extrapolation_margin") {
		c.ExtrapolationMargin = v.GetDuration("solver.extrapolation_margin")
	}
	if v.IsSet("optimizer.mode") {
		c.OptimizerMode = strings.ToLower(v.GetString("optimizer.mode"))
	}
	if v.IsSet("optimizer.tolerance") {
		c.OptimizerTolerance = v.GetFloat64("optimizer.tolerance")
	}
	if v.IsSet("optimizer.max_passes") {
		c.MaxPasses = v.GetInt("optimizer.max_passes")
	}
	if v.IsSet("dem.height_tolerance") {
		c.HeightTolerance = v.GetFloat64("dem.height_tolerance")
	}
	if v.IsSet("dem.max_iterations") {
		c.MaxHeightIterations = v.GetInt("dem.max_iterations")
	}
	return c, c.Validate()
}

// LoadConfig reads `conf.toml` from the provided directory.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("conf")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrapf(err, "%s/conf.toml", dir)
	}
	return ConfigFromViper(v)
}

// ConfigFromEnv loads the configuration from the directory in `SARLOC_CONFIG`,
// or returns the defaults if that variable is empty.
func ConfigFromEnv() (Config, error) {
	confPath := os.Getenv("SARLOC_CONFIG")
	if confPath == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(confPath)
}
