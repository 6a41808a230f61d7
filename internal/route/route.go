// Package route holds the route and stop data exchanged with the routing backend.
package route

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/paulmach/orb"
)

// ErrNotArray is returned by ParseSet when the payload is not a JSON array.
var ErrNotArray = errors.New("route set payload is not an array")

// Place is a named endpoint of a streamed route.
type Place struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
}

// Geometry is a GeoJSON LineString. Coordinates are [lon, lat] pairs.
type Geometry struct {
	Type        string         `json:"type" yaml:"type"`
	Coordinates orb.LineString `json:"coordinates" yaml:"coordinates"`
}

// Leg summarizes one segment between two consecutive locations.
type Leg struct {
	DistanceKm  float64 `json:"distance_km" yaml:"distance_km"`
	DurationMin float64 `json:"duration_min" yaml:"duration_min"`
}

// Route is one computed path. It is never mutated after decoding and has
// no stable identity: its position in the pushed set is its key.
type Route struct {
	Geometry    Geometry `json:"geometry" yaml:"geometry"`
	Origin      Place    `json:"origin" yaml:"origin"`
	Destination Place    `json:"destination" yaml:"destination"`
	DistanceKm  float64  `json:"distance_km" yaml:"distance_km"`
	DurationMin float64  `json:"duration_min" yaml:"duration_min"`
	Legs        []Leg    `json:"legs,omitempty" yaml:"legs,omitempty"`
}

// Drawable reports whether the route has at least one coordinate.
func (r Route) Drawable() bool {
	return len(r.Geometry.Coordinates) > 0
}

// OriginName returns the origin label, falling back to "Origin".
func (r Route) OriginName() string {
	if r.Origin.Name == "" {
		return "Origin"
	}
	return r.Origin.Name
}

// DestinationName returns the destination label, falling back to "Destination".
func (r Route) DestinationName() string {
	if r.Destination.Name == "" {
		return "Destination"
	}
	return r.Destination.Name
}

// Stop is a user-selected point to be visited by an optimized route.
type Stop struct {
	Lat  float64 `json:"lat" yaml:"lat" validate:"latitude"`
	Lon  float64 `json:"lon" yaml:"lon" validate:"longitude"`
	Name string  `json:"name" yaml:"name"`
}

// ParseSet decodes a pushed route set. Anything other than a JSON array
// of routes is rejected, including null and error objects.
func ParseSet(data []byte) ([]Route, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	routes := make([]Route, 0, 3)
	if err := json.Unmarshal(trimmed, &routes); err != nil {
		return nil, err
	}

	return routes, nil
}
