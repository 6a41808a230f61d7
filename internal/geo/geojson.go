// Package geo handles geographic data structures and coordinate checks.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NewFeatureCollection returns an empty collection that still encodes
// "features": [] rather than null.
func NewFeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0)
	return fc
}

// NewFeature wraps a geometry into a GeoJSON feature with the given id.
// Properties with nil values are dropped.
func NewFeature(id string, g orb.Geometry, props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = id

	for k, v := range props {
		if v == nil {
			continue
		}
		f.Properties[k] = v
	}

	return f
}
