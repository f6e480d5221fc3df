package sarloc

import (
	"math"
	"time"
)

// Synthetic scenes shared by the tests: a circular polar orbit crossing the
// equator northbound at the middle sample, with a slant range or a ground
// range product.

const (
	testGM          = 3.986004418e14
	testOrbitRadius = 7e6
)

var testEpoch = time.Date(2017, 3, 1, 10, 30, 0, 0, time.UTC)

// circularSamples returns n samples spaced by step. When rotating is set, the
// inertial orbit is seen from the rotating Earth.
func circularSamples(n int, step time.Duration, rotating, withVelocity bool) []EphemerisSample {
	ω := math.Sqrt(testGM / math.Pow(testOrbitRadius, 3))
	samples := make([]EphemerisSample, n)
	for i := range samples {
		τ := float64(i-n/2) * step.Seconds()
		R, V := circularState(ω, τ)
		if rotating {
			R, V = ECIStateToECEF(R, V, EarthRotationRate*τ)
		}
		samples[i] = EphemerisSample{Time: testEpoch.Add(time.Duration(i-n/2) * step), Position: R}
		if withVelocity {
			samples[i].Velocity = V
		}
	}
	return samples
}

func circularState(ω, τ float64) (R, V []float64) {
	s, c := math.Sincos(ω * τ)
	return []float64{testOrbitRadius * c, 0, testOrbitRadius * s},
		[]float64{-testOrbitRadius * ω * s, 0, testOrbitRadius * ω * c}
}

// slantTiming starts 10 seconds before the equator crossing.
func slantTiming() TimingParams {
	return TimingParams{
		AzimuthTime0:   testEpoch.Add(-10 * time.Second),
		PRF:            1000,
		NearSlantRange: 800e3,
		RangeSampling:  10,
		Wavelength:     0.0555,
	}
}

// groundTiming is a ground range product with two SRGR sets, the second one
// valid from line 7000.
func groundTiming() TimingParams {
	return TimingParams{
		AzimuthTime0:    testEpoch.Add(-10 * time.Second),
		PRF:             1000,
		GroundProjected: true,
		NearGroundRange: 300e3,
		PixelSpacing:    12.5,
		Wavelength:      0.0555,
		SRGR: []SRGRCoefficients{
			{ValidTime: testEpoch.Add(-10 * time.Second), ReferenceGroundRange: 0, Exponents: []int{0, 1, 2}, Coefficients: []float64{700e3, 0.5, 2e-7}},
			{ValidTime: testEpoch.Add(-3 * time.Second), ReferenceGroundRange: 300e3, Exponents: []int{0, 1, 2}, Coefficients: []float64{868.2e3, 0.62, 2e-7}},
		},
	}
}

// testMission covers 20 seconds of a slant range product.
func testMission(rotating bool) Mission {
	return Mission{
		Name:      "synthetic",
		Ephemeris: circularSamples(11, 5*time.Second, rotating, true),
		Timing:    slantTiming(),
		Lines:     20000,
		Columns:   2000,
	}
}
