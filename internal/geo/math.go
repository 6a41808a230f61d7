package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// MaxLat is the latitude limit of the Web Mercator projection used by
// the map surface. Clicks cannot land outside of it.
const MaxLat = 85.05112878

// ValidLonLat reports whether a coordinate can be placed on the surface.
func ValidLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}

	return lon >= -180 && lon <= 180 && lat >= -MaxLat && lat <= MaxLat
}

// Endpoints returns the first and last point of a line.
// ok is false for an empty line.
func Endpoints(ls orb.LineString) (first, last orb.Point, ok bool) {
	if len(ls) == 0 {
		return orb.Point{}, orb.Point{}, false
	}

	return ls[0], ls[len(ls)-1], true
}

// WrapLon maps a longitude from any world copy into [-180, 180).
func WrapLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}

	w := math.Mod(lon+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}
