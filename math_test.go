package sarloc

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// vectorsEqual returns whether two vectors are equal within 1e-6.
func vectorsEqual(a, b []float64) bool {
	return floats.EqualApprox(a, b, 1e-6)
}

func TestCross(t *testing.T) {
	i := []float64{1, 0, 0}
	j := []float64{0, 1, 0}
	k := []float64{0, 0, 1}
	if !vectorsEqual(cross(i, j), k) {
		t.Fatal("i x j != k")
	}
	if !vectorsEqual(cross(j, k), i) {
		t.Fatal("j x k != i")
	}
	if !vectorsEqual(cross([]float64{2, 3, 4}, []float64{5, 6, 7}), []float64{-3, 6, -3}) {
		t.Fatal("cross fail")
	}
}

func TestVectorHelpers(t *testing.T) {
	a := []float64{3, 4, 12}
	if norm(a) != 13 {
		t.Fatalf("norm=%f", norm(a))
	}
	if !scalar.EqualWithinAbs(norm(unit(a)), 1, 1e-15) {
		t.Fatal("unit vector is not unit")
	}
	if !vectorsEqual(unit([]float64{0, 0, 0}), []float64{0, 0, 0}) {
		t.Fatal("unit of zero vector should be zero")
	}
	if dot(a, []float64{1, 1, 1}) != 19 {
		t.Fatal("dot fail")
	}
	if !vectorsEqual(addScaled(a, 2, []float64{1, 0, -1}), []float64{5, 4, 10}) {
		t.Fatal("addScaled fail")
	}
	if !vectorsEqual(sub(a, a), []float64{0, 0, 0}) {
		t.Fatal("sub fail")
	}
}

func TestAngles(t *testing.T) {
	for i := -720.0; i <= 720; i += 0.5 {
		if !scalar.EqualWithinAbs(Rad2deg(Deg2rad(i)), i, 1e-10) {
			t.Fatalf("incorrect conversion for %3.2f", i)
		}
		w := wrapπ(Deg2rad(i))
		if w <= -math.Pi || w > math.Pi {
			t.Fatalf("wrapπ(%f deg) = %f out of range", i, w)
		}
		if s, c := math.Sincos(w); !scalar.EqualWithinAbs(s, math.Sin(Deg2rad(i)), 1e-12) || !scalar.EqualWithinAbs(c, math.Cos(Deg2rad(i)), 1e-12) {
			t.Fatalf("wrapπ(%f deg) changed the angle", i)
		}
	}
	if wrapπ(-math.Pi) != math.Pi {
		t.Fatal("-π should wrap to π")
	}
}

func TestGeodeticRoundTrip(t *testing.T) {
	for _, height := range []float64{-400, 0, 1234.5, 8848, 700e3} {
		for lat := -89.5; lat <= 89.5; lat += 8.5 {
			for lon := -179.0; lon <= 180; lon += 17 {
				r := GEO2ECEF(height, Deg2rad(lat), Deg2rad(lon))
				h, φ, λ := ECEF2GEO(r)
				if !scalar.EqualWithinAbs(h, height, 1e-6) {
					t.Fatalf("height %f != %f at (%f, %f)", h, height, lat, lon)
				}
				if !scalar.EqualWithinAbs(Rad2deg(φ), lat, 1e-10) || !scalar.EqualWithinAbs(Rad2deg(λ), lon, 1e-10) {
					t.Fatalf("(%f, %f) != (%f, %f)", Rad2deg(φ), Rad2deg(λ), lat, lon)
				}
			}
		}
	}
}

func TestGeodeticKnown(t *testing.T) {
	if r := GEO2ECEF(0, 0, 0); !vectorsEqual(r, []float64{wgs84A, 0, 0}) {
		t.Fatalf("equator/Greenwich: %v", r)
	}
	if r := GEO2ECEF(100, math.Pi/2, 0); !scalar.EqualWithinAbs(r[2], wgs84B+100, 1e-6) || !scalar.EqualWithinAbs(r[0], 0, 1e-6) {
		t.Fatalf("north pole: %v", r)
	}
	h, lat, _ := ECEF2GEO([]float64{0, 0, -(wgs84B + 50)})
	if !scalar.EqualWithinAbs(h, 50, 1e-9) || lat != -math.Pi/2 {
		t.Fatalf("south pole: h=%f lat=%f", h, lat)
	}
}

func TestENU(t *testing.T) {
	lat, lon := Deg2rad(45), Deg2rad(30)
	e, n, u := enu(lat, lon)
	if !vectorsEqual(cross(e, n), u) {
		t.Fatal("east x north != up")
	}
	// Up is the ellipsoid normal: moving along it only changes the height.
	p := GEO2ECEF(0, lat, lon)
	h, φ, λ := ECEF2GEO(addScaled(p, 1000, u))
	if !scalar.EqualWithinAbs(h, 1000, 1e-6) || !scalar.EqualWithinAbs(φ, lat, 1e-12) || !scalar.EqualWithinAbs(λ, lon, 1e-12) {
		t.Fatalf("up is not normal to the ellipsoid: h=%f", h)
	}
	q, φ, λ := projectToHeight(addScaled(p, 250, u), 10)
	if !vectorsEqual(q, GEO2ECEF(10, lat, lon)) || !scalar.EqualWithinAbs(φ, lat, 1e-12) || !scalar.EqualWithinAbs(λ, lon, 1e-12) {
		t.Fatal("projectToHeight fail")
	}
}

func TestECIStateToECEF(t *testing.T) {
	R := []float64{7e6, 0, 0}
	V := []float64{0, 0, 7.5e3}
	// No rotation: only the transport velocity is removed.
	r, v := ECIStateToECEF(R, V, 0)
	if !vectorsEqual(r, R) {
		t.Fatalf("r=%v", r)
	}
	if !vectorsEqual(v, []float64{0, -EarthRotationRate * 7e6, 7.5e3}) {
		t.Fatalf("v=%v", v)
	}
	θ := math.Pi / 2
	r, _ = ECIStateToECEF(R, V, θ)
	if !vectorsEqual(r, []float64{0, -7e6, 0}) {
		t.Fatalf("rotated r=%v", r)
	}
	// A rotation about the pole keeps the norm and the polar component.
	R = []float64{4e6, 3e6, 5e6}
	r, _ = ECIStateToECEF(R, V, 0.3)
	if !scalar.EqualWithinAbs(norm(r), norm(R), 1e-6) || r[2] != R[2] {
		t.Fatalf("rotated r=%v", r)
	}
	// The transport term vanishes for a point on the rotation axis.
	_, v = ECIStateToECEF([]float64{0, 0, 7e6}, V, 0.3)
	if !vectorsEqual(v, V) {
		t.Fatalf("polar v=%v", v)
	}
}
