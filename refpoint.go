package sarloc

import (
	"fmt"
	"time"
)

// ReferencePoint anchors the model: the image coordinate (Line, Column) is the
// one observed for the ground point Ground, which the radar sees at azimuth
// time Time and slant range SlantRange.
//
// Image coordinates map to the timing model through the anchor:
//
//	line = Line + (1+LineScale)*(timingLine - pivotLine)
//
// where timingLine is the line the timing model gives for an azimuth time and
// pivotLine the one it gives for Time. Columns follow the same rule with the
// column of SlantRange as pivot. A freshly built model has no scale and its
// anchor agrees with the timing model; the optimizer moves Line and Column (and
// the scales in affine mode).
type ReferencePoint struct {
	Line, Column float64
	Ground       GeoPoint
	Time         time.Time
	SlantRange   float64
	LineScale    float64
	ColumnScale  float64
}

func (r ReferencePoint) String() string {
	return fmt.Sprintf("ref(line=%.6f, col=%.6f) @ %s r=%.3f m -> %s", r.Line, r.Column, r.Time.Format(time.RFC3339Nano), r.SlantRange, r.Ground)
}

// anchor is the part of the reference point used by the solver, with the
// pivots resolved against the timing model.
type anchor struct {
	ref       ReferencePoint
	pivotLine float64
	pivotCol  float64
}

func newAnchor(ref ReferencePoint, timing *SensorTiming) (anchor, error) {
	col, err := timing.ColumnForSlantRange(ref.SlantRange, ref.Time)
	if err != nil {
		return anchor{}, err
	}
	return anchor{ref: ref, pivotLine: timing.LineForTime(ref.Time), pivotCol: col}, nil
}

// toTiming converts an image coordinate to the timing model's line and column.
func (a anchor) toTiming(line, column float64) (float64, float64) {
	return a.pivotLine + (line-a.ref.Line)/(1+a.ref.LineScale),
		a.pivotCol + (column-a.ref.Column)/(1+a.ref.ColumnScale)
}

// toImage converts the timing model's line and column to an image coordinate.
func (a anchor) toImage(line, column float64) (float64, float64) {
	return a.ref.Line + (1+a.ref.LineScale)*(line-a.pivotLine),
		a.ref.Column + (1+a.ref.ColumnScale)*(column-a.pivotCol)
}
