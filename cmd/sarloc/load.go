package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ChristopherRabotin/sarloc"
	kitlog "github.com/go-kit/kit/log"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/viper"
)

// srgrConf is one `[[timing.srgr]]` table of the scenario. The time may be a
// TOML datetime or an RFC 3339 string.
type srgrConf struct {
	Time                 time.Time `mapstructure:"time"`
	JDE                  float64   `mapstructure:"jde"`
	ReferenceGroundRange float64   `mapstructure:"reference_ground_range"`
	Exponents            []int     `mapstructure:"exponents"`
	Coefficients         []float64 `mapstructure:"coefficients"`
}

// loadEphemerisFile reads the ephemeris records of filename, one per line:
// time (RFC 3339 or Julian date), x, y, z and optionally vx, vy, vz, in meters.
func loadEphemerisFile(filename string, logger kitlog.Logger) ([]sarloc.EphemerisSample, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanLines)
	var samples []sarloc.EphemerisSample
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0:1] == "#" {
			continue
		}
		entries := strings.Split(line, ",")
		if len(entries) != 4 && len(entries) != 7 {
			logger.Log("level", "warning", "subsys", "load", "file", filename, "line", lineNo, "message", "expected 4 or 7 fields, skipped")
			continue
		}
		dt, err := parseTime(strings.TrimSpace(entries[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", filename, lineNo)
		}
		vals := make([]float64, len(entries)-1)
		for i, entry := range entries[1:] {
			if vals[i], err = strconv.ParseFloat(strings.TrimSpace(entry), 64); err != nil {
				return nil, errors.Wrapf(err, "%s:%d", filename, lineNo)
			}
		}
		sample := sarloc.EphemerisSample{Time: dt, Position: vals[0:3]}
		if len(vals) == 6 {
			sample.Velocity = vals[3:6]
		}
		samples = append(samples, sample)
	}
	return samples, scanner.Err()
}

// parseTime reads an RFC 3339 time or a Julian date.
func parseTime(s string) (time.Time, error) {
	if jde, err := strconv.ParseFloat(s, 64); err == nil {
		return julian.JDToTime(jde), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// loadTiming reads the `timing` section of the scenario.
func loadTiming() (sarloc.TimingParams, error) {
	p := sarloc.TimingParams{
		AzimuthTime0:    confReadJDEorTime("timing.azimuth_time0"),
		PRF:             viper.GetFloat64("timing.prf"),
		AzimuthLooks:    viper.GetFloat64("timing.azimuth_looks"),
		LineDirection:   viper.GetFloat64("timing.line_direction"),
		NearSlantRange:  viper.GetFloat64("timing.near_slant_range"),
		RangeSampling:   viper.GetFloat64("timing.range_sampling"),
		GroundProjected: viper.GetBool("timing.ground_projected"),
		NearGroundRange: viper.GetFloat64("timing.near_ground_range"),
		PixelSpacing:    viper.GetFloat64("timing.pixel_spacing"),
		ColumnDirection: viper.GetFloat64("timing.column_direction"),
		Wavelength:      viper.GetFloat64("timing.wavelength"),
		DopplerCentroid: viper.GetFloat64("timing.doppler_centroid"),
	}
	if p.RangeSampling == 0 && viper.IsSet("timing.range_sampling_rate") {
		// Sampling rate in Hz, as found in most leader files.
		p.RangeSampling = sarloc.SpeedOfLight / (2 * viper.GetFloat64("timing.range_sampling_rate"))
	}
	switch side := strings.ToLower(viper.GetString("timing.look_side")); side {
	case "", "right":
		p.LookSide = sarloc.RightLooking
	case "left":
		p.LookSide = sarloc.LeftLooking
	default:
		return p, fmt.Errorf("unknown look side `%s`", side)
	}
	var sets []srgrConf
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.UnmarshalKey("timing.srgr", &sets, hook); err != nil {
		return p, errors.Wrap(err, "timing.srgr")
	}
	for _, set := range sets {
		validTime := set.Time
		if set.JDE != 0 {
			validTime = julian.JDToTime(set.JDE)
		}
		p.SRGR = append(p.SRGR, sarloc.SRGRCoefficients{
			ValidTime:            validTime,
			ReferenceGroundRange: set.ReferenceGroundRange,
			Exponents:            set.Exponents,
			Coefficients:         set.Coefficients,
		})
	}
	return p, nil
}

// loadGCPFile reads the GCP file, if any.
func loadGCPFile(filename string) ([]sarloc.GCP, error) {
	if filename == "" {
		return nil, nil
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return sarloc.ParseGCPs(file)
}

func confReadJDEorTime(key string) (dt time.Time) {
	jde := viper.GetFloat64(key)
	if jde == 0 {
		dt = viper.GetTime(key)
	} else {
		dt = julian.JDToTime(jde)
	}
	return
}
