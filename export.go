package sarloc

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ExportConfig configures the exporting of localization grids.
type ExportConfig struct {
	Filename  string
	OutputDir string
	Timestamp bool
}

// GridPoint is a localized image coordinate, as written by StreamGrid.
type GridPoint struct {
	Line, Column float64
	Loc          Localization
	Err          error
}

// gridHeader lists the columns of the grid files.
var gridHeader = []string{"line", "column", "lat", "lon", "height", "x", "y", "z", "time", "slant_range", "iterations", "status", "error"}

// ToText converts to a record for written output. Failed points have empty
// geometry fields and the error text in the last field.
func (p GridPoint) ToText() []string {
	record := make([]string, len(gridHeader))
	record[0] = strconv.FormatFloat(p.Line, 'f', -1, 64)
	record[1] = strconv.FormatFloat(p.Column, 'f', -1, 64)
	if p.Err != nil {
		record[len(record)-1] = p.Err.Error()
		return record
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', 9, 64) }
	record[2], record[3], record[4] = ff(p.Loc.Ground.Lat), ff(p.Loc.Ground.Lon), ff(p.Loc.Ground.Height)
	for i := 0; i < 3; i++ {
		record[5+i] = strconv.FormatFloat(p.Loc.ECEF[i], 'f', 4, 64)
	}
	record[8] = p.Loc.Time.UTC().Format(time.RFC3339Nano)
	record[9] = strconv.FormatFloat(p.Loc.SlantRange, 'f', 4, 64)
	record[10] = strconv.Itoa(p.Loc.Iterations)
	record[11] = p.Loc.Status.String()
	return record
}

// CreateGridFile creates the grid file of conf with its comment header.
// The file must be closed by the caller.
func CreateGridFile(conf ExportConfig, mission string) (*os.File, error) {
	filename := conf.Filename
	if conf.Timestamp {
		t := time.Now()
		filename = fmt.Sprintf("%s-%d-%02d-%02dT%02d.%02d.%02d", filename, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	f, err := os.Create(filepath.Join(conf.OutputDir, filename+".csv"))
	if err != nil {
		return nil, errors.Wrap(err, "could not create grid file")
	}
	// Header
	if _, err = fmt.Fprintf(f, `# Creation date (UTC): %s
# Mission: %s
# Angles in the configured unit, heights and ranges in meters, ECEF in meters.
`, time.Now().UTC(), mission); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// StreamGrid writes the grid points received on points to w until the channel
// is closed, and returns the number of failed points. On a write error the
// channel is still drained until closed, so producers never block.
func StreamGrid(w io.Writer, points <-chan GridPoint) (failed int, err error) {
	defer func() {
		if err != nil {
			for range points {
			}
		}
	}()
	cw := csv.NewWriter(w)
	if err = cw.Write(gridHeader); err != nil {
		return
	}
	for p := range points {
		if p.Err != nil {
			failed++
		}
		if err = cw.Write(p.ToText()); err != nil {
			return
		}
	}
	cw.Flush()
	return failed, cw.Error()
}

// FromText initializes a GCP from a record of five items: lat, lon, height, line and column.
func (g *GCP) FromText(record []string) error {
	if len(record) != 5 {
		return errors.Errorf("expected 5 fields, got %d", len(record))
	}
	vals := make([]float64, 5)
	for i, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return errors.Wrapf(err, "field %d", i)
		}
		vals[i] = v
	}
	*g = GCP{Ground: GeoPoint{Lat: vals[0], Lon: vals[1], Height: vals[2]}, Line: vals[3], Column: vals[4]}
	return nil
}

// ParseGCPs reads comma separated GCP records, skipping lines starting with '#'.
func ParseGCPs(r io.Reader) ([]GCP, error) {
	var gcps []GCP
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	for {
		record, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		var gcp GCP
		if err := gcp.FromText(record); err != nil {
			line, _ := cr.FieldPos(0)
			return nil, errors.Wrapf(err, "GCP on line %d", line)
		}
		gcps = append(gcps, gcp)
	}
	return gcps, nil
}
