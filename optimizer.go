package sarloc

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GCP is a ground control point: a known ground position and the image
// coordinate where it is observed.
type GCP struct {
	Ground       GeoPoint
	Line, Column float64
}

// OptimizationReport summarizes a run of Optimize.
type OptimizationReport struct {
	Passes    int
	Used      int // GCPs with a successful prediction
	Skipped   int
	RMSBefore float64 // pixels
	RMSAfter  float64
	PassRMS   []float64 // RMS after each pass
	Reference ReferencePoint
}

// prediction is the timing model coordinate of a GCP.
type prediction struct {
	gcp          GCP
	line, column float64
}

// Optimize corrects the reference point so that the model predictions of the
// GCPs match their observed image coordinates. Each pass shifts the reference
// image coordinate by the mean residual (observed minus predicted) and, in
// affine mode, also fits the line and column scales. Passes stop once the RMS
// residual is under the optimizer tolerance or after the maximum number of passes.
//
// GCPs which cannot be predicted are skipped, including best effort predictions
// which did not converge. If none is usable, the reference
// point is left unchanged and ErrInsufficientControlPoints is returned.
func (m *SensorModel) Optimize(gcps []GCP) (OptimizationReport, error) {
	var report OptimizationReport
	// The timing model coordinates do not depend on the reference point.
	preds := make([]prediction, 0, len(gcps))
	for i, gcp := range gcps {
		pt, err := m.groundToTiming(gcp.Ground)
		if err == nil && pt.Status.Has(NotConverged) {
			err = &ConvergenceError{Op: "zero-doppler", Iterations: pt.Iterations}
		}
		if err != nil {
			m.logger.Log("level", "warning", "subsys", "optimizer", "gcp", i, "ground", gcp.Ground, "err", err)
			report.Skipped++
			continue
		}
		preds = append(preds, prediction{gcp: gcp, line: pt.Line, column: pt.Column})
	}
	report.Used = len(preds)
	if len(preds) == 0 {
		return report, errors.Wrapf(ErrInsufficientControlPoints, "%d GCPs provided, %d skipped", len(gcps), report.Skipped)
	}

	anc := m.anc
	dl := make([]float64, len(preds))
	dc := make([]float64, len(preds))
	ul := make([]float64, len(preds))
	uc := make([]float64, len(preds))
	residuals := func(a anchor) float64 {
		for i, p := range preds {
			l, c := a.toImage(p.line, p.column)
			dl[i], dc[i] = p.gcp.Line-l, p.gcp.Column-c
			ul[i], uc[i] = l-a.ref.Line, c-a.ref.Column
		}
		return math.Sqrt((floats.Dot(dl, dl) + floats.Dot(dc, dc)) / float64(len(preds)))
	}

	report.RMSBefore = residuals(anc)
	rms := report.RMSBefore
	m.logger.Log("level", "info", "subsys", "optimizer", "mode", m.conf.OptimizerMode, "gcps", len(preds), "skipped", report.Skipped, "rms", rms)
	for report.Passes < m.conf.MaxPasses && rms >= m.conf.OptimizerTolerance {
		ref := anc.ref
		if m.conf.OptimizerMode == Affine {
			ref.Line, ref.LineScale = affineUpdate(ref.Line, ref.LineScale, ul, dl)
			ref.Column, ref.ColumnScale = affineUpdate(ref.Column, ref.ColumnScale, uc, dc)
		} else {
			ref.Line += stat.Mean(dl, nil)
			ref.Column += stat.Mean(dc, nil)
		}
		anc.ref = ref
		rms = residuals(anc)
		report.Passes++
		report.PassRMS = append(report.PassRMS, rms)
		m.logger.Log("level", "debug", "subsys", "optimizer", "pass", report.Passes, "line", ref.Line, "column", ref.Column, "rms", rms)
	}
	report.RMSAfter = rms
	report.Reference = anc.ref
	if rms >= m.conf.OptimizerTolerance {
		m.logger.Log("level", "warning", "subsys", "optimizer", "status", "tolerance not reached", "passes", report.Passes, "rms", rms)
	} else {
		m.logger.Log("level", "notice", "subsys", "optimizer", "status", "finished", "passes", report.Passes, "rms", rms, "ref", anc.ref)
	}
	// The pivots only depend on the reference time and range, which are unchanged.
	m.anc = anc
	m.metrics.observeOptimization(report.Passes, rms)
	return report, nil
}

// affineUpdate fits residual = a + b*u by least squares, where u is the image
// offset from the reference, and returns the updated reference coordinate and
// scale. It falls back to a bias update when all offsets are equal.
func affineUpdate(ref, scale float64, u, residual []float64) (float64, float64) {
	if len(u) < 2 || stat.Variance(u, nil) == 0 {
		return ref + stat.Mean(residual, nil), scale
	}
	a, b := stat.LinearRegression(u, residual, nil, false)
	return ref + a, (1+b)*(1+scale) - 1
}
