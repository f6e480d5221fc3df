package sarloc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfigDefaults(t *testing.T) {
	conf := DefaultConfig()
	if err := conf.Validate(); err != nil {
		t.Fatalf("default configuration is invalid: %s", err)
	}
	loaded, err := ConfigFromViper(viper.New())
	if err != nil {
		t.Fatalf("%s", err)
	}
	if loaded != conf {
		t.Fatalf("empty viper should give the defaults: %+v", loaded)
	}
}

func TestConfigFromViper(t *testing.T) {
	v := viper.New()
	v.SetConfigType("toml")
	err := v.ReadConfig(strings.NewReader(`
[geo]
angles = "Radians"
[orbit]
hermite_window = 4
[solver]
range_tolerance = 1e-3
max_iterations = 25
best_effort = true
reference_window = "45s"
extrapolation_margin = "2m"
[optimizer]
mode = "affine"
max_passes = 3
[dem]
height_tolerance = 0.5
`))
	if err != nil {
		t.Fatalf("%s", err)
	}
	conf, err := ConfigFromViper(v)
	if err != nil {
		t.Fatalf("%s", err)
	}
	exp := DefaultConfig()
	exp.Angles = Radians
	exp.HermiteWindow = 4
	exp.RangeTolerance = 1e-3
	exp.MaxIterations = 25
	exp.BestEffort = true
	exp.ReferenceWindow = 45 * time.Second
	exp.ExtrapolationMargin = 2 * time.Minute
	exp.OptimizerMode = Affine
	exp.MaxPasses = 3
	exp.HeightTolerance = 0.5
	if conf != exp {
		t.Fatalf("got %+v\nexpected %+v", conf, exp)
	}
}

func TestConfigInvalid(t *testing.T) {
	for key, value := range map[string]interface{}{
		"geo.angles":            "gradians",
		"optimizer.mode":        "magic",
		"orbit.hermite_window":  1,
		"solver.max_iterations": 0,
		"solver.time_tolerance": -1,
		"dem.height_tolerance":  0,
	} {
		v := viper.New()
		v.Set(key, value)
		if _, err := ConfigFromViper(v); err == nil {
			t.Fatalf("%s=%v should be invalid", key, value)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "conf.toml"), []byte("[solver]\nmax_iterations = 7\n"), 0644); err != nil {
		t.Fatalf("%s", err)
	}
	conf, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("%s", err)
	}
	if conf.MaxIterations != 7 {
		t.Fatalf("max iterations %d", conf.MaxIterations)
	}
	if _, err := LoadConfig(filepath.Join(dir, "nope")); err == nil {
		t.Fatal("expected an error for a missing configuration")
	}

	t.Setenv("SARLOC_CONFIG", dir)
	if conf, err = ConfigFromEnv(); err != nil || conf.MaxIterations != 7 {
		t.Fatalf("from env: %d (%v)", conf.MaxIterations, err)
	}
	t.Setenv("SARLOC_CONFIG", "")
	if conf, err = ConfigFromEnv(); err != nil || conf != DefaultConfig() {
		t.Fatalf("empty env should give the defaults (%v)", err)
	}
}
