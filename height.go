package sarloc

// HeightSource provides the height above the ellipsoid (meters) of a ground
// position given in the configured angle unit. Implementations are called
// concurrently when the model is shared between workers.
type HeightSource interface {
	HeightAt(lat, lon float64) float64
}

// ConstantHeight is a HeightSource returning the same height everywhere.
type ConstantHeight float64

// HeightAt implements HeightSource.
func (h ConstantHeight) HeightAt(lat, lon float64) float64 {
	return float64(h)
}

// HeightFunc adapts a function, such as a DEM lookup, to a HeightSource.
type HeightFunc func(lat, lon float64) float64

// HeightAt implements HeightSource.
func (f HeightFunc) HeightAt(lat, lon float64) float64 {
	return f(lat, lon)
}
