package sarloc

import (
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/viper"
)

// SaveReference stores the reference point under prefix (e.g. "reference") in v,
// so that a corrected model can be rebuilt with v.WriteConfigAs. The time is
// stored both as RFC 3339 and as a Julian date.
func SaveReference(v *viper.Viper, prefix string, ref ReferencePoint) {
	key := func(k string) string { return prefix + "." + k }
	v.Set(key("line"), ref.Line)
	v.Set(key("column"), ref.Column)
	v.Set(key("lat"), ref.Ground.Lat)
	v.Set(key("lon"), ref.Ground.Lon)
	v.Set(key("height"), ref.Ground.Height)
	v.Set(key("time"), ref.Time.UTC().Format(time.RFC3339Nano))
	v.Set(key("jde"), julian.TimeToJD(ref.Time))
	v.Set(key("slant_range"), ref.SlantRange)
	v.Set(key("line_scale"), ref.LineScale)
	v.Set(key("column_scale"), ref.ColumnScale)
}

// LoadReference reads a reference point stored by SaveReference, or written by
// hand with either a time or a jde entry.
func LoadReference(v *viper.Viper, prefix string) (ReferencePoint, error) {
	key := func(k string) string { return prefix + "." + k }
	if !v.IsSet(key("slant_range")) {
		return ReferencePoint{}, errors.Errorf("%s.slant_range not set", prefix)
	}
	dt, err := readJDEorTime(v, key("time"), key("jde"))
	if err != nil {
		return ReferencePoint{}, errors.Wrap(err, prefix)
	}
	return ReferencePoint{
		Line:        v.GetFloat64(key("line")),
		Column:      v.GetFloat64(key("column")),
		Ground:      GeoPoint{Lat: v.GetFloat64(key("lat")), Lon: v.GetFloat64(key("lon")), Height: v.GetFloat64(key("height"))},
		Time:        dt,
		SlantRange:  v.GetFloat64(key("slant_range")),
		LineScale:   v.GetFloat64(key("line_scale")),
		ColumnScale: v.GetFloat64(key("column_scale")),
	}, nil
}

// readJDEorTime reads a time from timeKey, falling back to the Julian date in jdeKey.
func readJDEorTime(v *viper.Viper, timeKey, jdeKey string) (time.Time, error) {
	if s := v.GetString(timeKey); s != "" {
		dt, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "could not parse %s", timeKey)
		}
		return dt, nil
	}
	if jde := v.GetFloat64(jdeKey); jde != 0 {
		return julian.JDToTime(jde), nil
	}
	return time.Time{}, errors.Errorf("neither %s nor %s set", timeKey, jdeKey)
}
