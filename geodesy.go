package sarloc

import (
	"fmt"
	"math"
)

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
	wgs84B  = wgs84A * (1 - wgs84F)
)

// GeoPoint is a geodetic position. Lat and Lon are in the angle unit of the
// configuration which produced or consumes it, Height is in meters above the
// ellipsoid.
type GeoPoint struct {
	Lat, Lon, Height float64
}

func (g GeoPoint) String() string {
	return fmt.Sprintf("(%.9f, %.9f, %.3f m)", g.Lat, g.Lon, g.Height)
}

// GEO2ECEF converts geodetic coordinates (radians and meters) to the WGS-84 ECEF vector in meters.
func GEO2ECEF(height, latitude, longitude float64) []float64 {
	sLong, cLong := math.Sincos(longitude)
	sLat, cLat := math.Sincos(latitude)
	N := wgs84A / math.Sqrt(1-wgs84E2*sLat*sLat)
	return []float64{(N + height) * cLat * cLong, (N + height) * cLat * sLong, (N*(1-wgs84E2) + height) * sLat}
}

// ECEF2GEO converts an ECEF vector in meters to geodetic height, latitude and
// longitude (radians). The latitude is refined with Bowring's iteration until it
// stops moving.
func ECEF2GEO(r []float64) (height, latitude, longitude float64) {
	x, y, z := r[0], r[1], r[2]
	longitude = math.Atan2(y, x)
	p := math.Hypot(x, y)
	if p < 1e-9 {
		// On the polar axis.
		latitude = math.Copysign(math.Pi/2, z)
		height = math.Abs(z) - wgs84B
		return
	}
	latitude = math.Atan2(z, p*(1-wgs84E2))
	for i := 0; i < 10; i++ {
		sLat := math.Sin(latitude)
		N := wgs84A / math.Sqrt(1-wgs84E2*sLat*sLat)
		next := math.Atan2(z+wgs84E2*N*sLat, p)
		done := math.Abs(next-latitude) < 1e-15
		latitude = next
		if done {
			break
		}
	}
	sLat, cLat := math.Sincos(latitude)
	N := wgs84A / math.Sqrt(1-wgs84E2*sLat*sLat)
	if math.Abs(cLat) > 1e-10 {
		height = p/cLat - N
	} else {
		height = math.Abs(z)/math.Abs(sLat) - N*(1-wgs84E2)
	}
	return
}

// enu returns the local east, north and up unit vectors at the given geodetic
// latitude and longitude (radians).
func enu(latitude, longitude float64) (e, n, u []float64) {
	sLat, cLat := math.Sincos(latitude)
	sLong, cLong := math.Sincos(longitude)
	e = []float64{-sLong, cLong, 0}
	n = []float64{-sLat * cLong, -sLat * sLong, cLat}
	u = []float64{cLat * cLong, cLat * sLong, sLat}
	return
}

// projectToHeight moves an ECEF point onto the ellipsoid offset by height along
// its normal, returning the projected point and its latitude and longitude.
func projectToHeight(r []float64, height float64) (p []float64, latitude, longitude float64) {
	_, latitude, longitude = ECEF2GEO(r)
	return GEO2ECEF(height, latitude, longitude), latitude, longitude
}
