package sarloc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// EarthRotationRate is the average Earth rotation rate in radians per second.
	EarthRotationRate = 7.2921158553e-5
)

// ECIStateToECEF converts an inertial state to an Earth fixed one for the θgst
// given in radians, including the transport term of the velocity.
func ECIStateToECEF(R, V []float64, θgst float64) (rECEF, vECEF []float64) {
	s, c := math.Sincos(θgst)
	r3 := mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
	var r, v mat.VecDense
	r.MulVec(r3, mat.NewVecDense(3, R))
	v.MulVec(r3, mat.NewVecDense(3, V))
	rECEF = []float64{r.AtVec(0), r.AtVec(1), r.AtVec(2)}
	vRot := []float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)}
	ω := []float64{0, 0, EarthRotationRate}
	vECEF = sub(vRot, cross(ω, rECEF))
	return
}
