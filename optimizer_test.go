package sarloc

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// gcpGrid localizes a grid of the image with the provided model.
func gcpGrid(t *testing.T, m *SensorModel) []GCP {
	var gcps []GCP
	for line := 500.0; line < 20000; line += 3000 {
		for col := 100.0; col < 2000; col += 450 {
			loc, err := m.ImageToGround(line, col, 30)
			if err != nil {
				t.Fatalf("%s", err)
			}
			gcps = append(gcps, GCP{Ground: loc.Ground, Line: line, Column: col})
		}
	}
	return gcps
}

// perturbedModel returns a model of the truth mission whose reference is moved by the provided offsets.
func perturbedModel(t *testing.T, truth *SensorModel, δline, δcol, lineScale float64, opts ...Option) *SensorModel {
	ref := truth.Reference()
	ref.Line += δline
	ref.Column += δcol
	ref.LineScale = lineScale
	mission := testMission(true)
	mission.Reference = &ref
	return newTestModel(t, mission, opts...)
}

func TestOptimizeBias(t *testing.T) {
	truth := newTestModel(t, testMission(true))
	gcps := gcpGrid(t, truth)
	m := perturbedModel(t, truth, 2.5, -1.5, 0)
	report, err := m.Optimize(gcps)
	if err != nil {
		t.Fatalf("%s", err)
	}
	if report.Used != len(gcps) || report.Skipped != 0 {
		t.Fatalf("used %d skipped %d", report.Used, report.Skipped)
	}
	if !scalar.EqualWithinAbs(report.RMSBefore, math.Hypot(2.5, 1.5), 1e-3) {
		t.Fatalf("RMS before %f", report.RMSBefore)
	}
	if report.RMSAfter >= report.RMSBefore || report.RMSAfter > DefaultConfig().OptimizerTolerance {
		t.Fatalf("RMS after %f", report.RMSAfter)
	}
	if report.Passes != 1 || len(report.PassRMS) != 1 {
		t.Fatalf("%d passes", report.Passes)
	}
	ref, exp := m.Reference(), truth.Reference()
	if report.Reference != ref {
		t.Fatal("reported reference differs from the model's")
	}
	if !scalar.EqualWithinAbs(ref.Line, exp.Line, 1e-3) || !scalar.EqualWithinAbs(ref.Column, exp.Column, 1e-3) {
		t.Fatalf("corrected reference (%f, %f), expected (%f, %f)", ref.Line, ref.Column, exp.Line, exp.Column)
	}
	// Later queries use the corrected reference.
	for _, gcp := range gcps {
		pt, err := m.GroundToImage(gcp.Ground)
		if err != nil {
			t.Fatalf("%s", err)
		}
		if !scalar.EqualWithinAbs(pt.Line, gcp.Line, 1e-3) || !scalar.EqualWithinAbs(pt.Column, gcp.Column, 1e-3) {
			t.Fatalf("GCP (%f, %f) predicted at (%f, %f)", gcp.Line, gcp.Column, pt.Line, pt.Column)
		}
	}
	// Nothing left to correct.
	again, err := m.Optimize(gcps)
	if err != nil || again.Passes != 0 {
		t.Fatalf("second optimization ran %d passes (%v)", again.Passes, err)
	}
}

func TestOptimizeAffine(t *testing.T) {
	truth := newTestModel(t, testMission(true))
	gcps := gcpGrid(t, truth)

	// A bias only correction cannot absorb a scale error.
	bias := perturbedModel(t, truth, 2, 0, 1e-3)
	report, err := bias.Optimize(gcps)
	if err != nil {
		t.Fatalf("%s", err)
	}
	if report.RMSAfter < 1 || report.RMSAfter >= report.RMSBefore {
		t.Fatalf("bias only RMS %f -> %f", report.RMSBefore, report.RMSAfter)
	}

	conf := DefaultConfig()
	conf.OptimizerMode = Affine
	m := perturbedModel(t, truth, 2, 0, 1e-3, WithConfig(conf))
	if report, err = m.Optimize(gcps); err != nil {
		t.Fatalf("%s", err)
	}
	if report.RMSAfter > conf.OptimizerTolerance {
		t.Fatalf("affine RMS %f -> %f", report.RMSBefore, report.RMSAfter)
	}
	ref := m.Reference()
	if !scalar.EqualWithinAbs(ref.LineScale, 0, 1e-7) || !scalar.EqualWithinAbs(ref.ColumnScale, 0, 1e-7) {
		t.Fatalf("scales %e %e", ref.LineScale, ref.ColumnScale)
	}
	if !scalar.EqualWithinAbs(ref.Line, truth.Reference().Line, 1e-3) {
		t.Fatalf("corrected line %f", ref.Line)
	}
}

func TestOptimizeAffineSinglePoint(t *testing.T) {
	truth := newTestModel(t, testMission(true))
	conf := DefaultConfig()
	conf.OptimizerMode = Affine
	m := perturbedModel(t, truth, -4, 3, 0, WithConfig(conf))
	report, err := m.Optimize(gcpGrid(t, truth)[:1])
	if err != nil {
		t.Fatalf("%s", err)
	}
	if report.RMSAfter > conf.OptimizerTolerance || m.Reference().LineScale != 0 {
		t.Fatalf("RMS %f scale %e", report.RMSAfter, m.Reference().LineScale)
	}
}

func TestOptimizeNoisy(t *testing.T) {
	truth := newTestModel(t, testMission(true))
	gcps := gcpGrid(t, truth)
	σ := 0.3 // pixels
	noise, ok := distmv.NewNormal([]float64{0, 0}, mat.NewSymDense(2, []float64{σ * σ, 0, 0, σ * σ}), nil)
	if !ok {
		t.Fatal("covariance is not positive definite")
	}
	for i := range gcps {
		δ := noise.Rand(nil)
		gcps[i].Line += δ[0]
		gcps[i].Column += δ[1]
	}
	m := perturbedModel(t, truth, 5, 5, 0)
	report, err := m.Optimize(gcps)
	if err != nil {
		t.Fatalf("%s", err)
	}
	if report.RMSAfter >= report.RMSBefore {
		t.Fatalf("RMS %f -> %f", report.RMSBefore, report.RMSAfter)
	}
	if report.Passes != m.Config().MaxPasses {
		t.Fatalf("noisy GCPs should exhaust the passes, ran %d", report.Passes)
	}
	// The mean of n samples has a standard deviation of σ/√n.
	tol := 5 * σ / math.Sqrt(float64(len(gcps)))
	ref, exp := m.Reference(), truth.Reference()
	if !scalar.EqualWithinAbs(ref.Line, exp.Line, tol) || !scalar.EqualWithinAbs(ref.Column, exp.Column, tol) {
		t.Fatalf("corrected reference (%f, %f), expected (%f, %f) within %f", ref.Line, ref.Column, exp.Line, exp.Column, tol)
	}
}

func TestOptimizeInsufficient(t *testing.T) {
	truth := newTestModel(t, testMission(true))
	m := perturbedModel(t, truth, 1, 1, 0)
	before := m.Reference()
	if _, err := m.Optimize(nil); !errors.Is(err, ErrInsufficientControlPoints) {
		t.Fatalf("expected ErrInsufficientControlPoints, got %v", err)
	}
	// Points the platform never sees.
	unseen := []GCP{{Ground: GeoPoint{Lat: 60, Lon: 0}, Line: 1, Column: 1}, {Ground: GeoPoint{Lat: -45, Lon: 90}, Line: 2, Column: 2}}
	report, err := m.Optimize(unseen)
	if !errors.Is(err, ErrInsufficientControlPoints) {
		t.Fatalf("expected ErrInsufficientControlPoints, got %v", err)
	}
	if report.Skipped != 2 || report.Used != 0 {
		t.Fatalf("skipped %d used %d", report.Skipped, report.Used)
	}
	if m.Reference() != before {
		t.Fatal("reference point changed after a failed optimization")
	}

	// Unseen points are skipped when others are usable.
	gcps := append(gcpGrid(t, truth), unseen...)
	if report, err = perturbedModel(t, truth, 1, 1, 0).Optimize(gcps); err != nil {
		t.Fatalf("%s", err)
	}
	if report.Skipped != 2 || report.Used != len(gcps)-2 {
		t.Fatalf("skipped %d used %d", report.Skipped, report.Used)
	}
}

func TestOptimizeBestEffortNotConverged(t *testing.T) {
	truth := newTestModel(t, testMission(true))
	gcps := gcpGrid(t, truth)
	conf := DefaultConfig()
	conf.BestEffort = true
	conf.MaxIterations = 1
	conf.TimeTolerance = 1e-30
	m := perturbedModel(t, truth, 2, -2, 0, WithConfig(conf))
	before := m.Reference()
	// Best effort predictions come back flagged instead of failing.
	pt, err := m.GroundToImage(gcps[0].Ground)
	if err != nil || !pt.Status.Has(NotConverged) {
		t.Fatalf("expected a not converged prediction, got %s (%v)", pt.Status, err)
	}
	report, err := m.Optimize(gcps)
	if !errors.Is(err, ErrInsufficientControlPoints) {
		t.Fatalf("expected ErrInsufficientControlPoints, got %v", err)
	}
	if report.Used != 0 || report.Skipped != len(gcps) {
		t.Fatalf("used %d skipped %d", report.Used, report.Skipped)
	}
	if m.Reference() != before {
		t.Fatal("reference point changed with only not converged predictions")
	}
}
