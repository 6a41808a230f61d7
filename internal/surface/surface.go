// Package surface describes the map surface capability provided by the host.
//
// The host owns the surface and its interaction events. Components that draw on
// it only ever add and remove features by id and subscribe to events; each
// feature id has exactly one owning component.
package surface

import (
	"errors"

	"github.com/paulmach/orb"
)

// Event names dispatched by a surface.
const (
	EventLoad  = "load"
	EventClick = "click"
)

var (
	// ErrDuplicateFeature is returned when a feature id is already present.
	ErrDuplicateFeature = errors.New("feature already exists")
	// ErrUnknownFeature is returned when removing an id that is not present.
	ErrUnknownFeature = errors.New("feature not found")
)

// Kind distinguishes line layers from point markers.
type Kind string

const (
	KindLine   Kind = "line"
	KindMarker Kind = "marker"
)

// Style is the cosmetic part of a feature.
type Style struct {
	Color       string    `json:"color,omitempty"`
	Width       float64   `json:"width,omitempty"`
	Opacity     float64   `json:"opacity,omitempty"`
	DashArray   []float64 `json:"dash_array,omitempty"`
	Radius      float64   `json:"radius,omitempty"`
	BorderWidth float64   `json:"border_width,omitempty"`
	Text        string    `json:"text,omitempty"`
}

// Feature is one drawable object. Lines carry an orb.LineString and
// markers an orb.Point.
type Feature struct {
	ID       string
	Kind     Kind
	Geometry orb.Geometry
	Style    Style
	Title    string
	Popup    string
}

// Event is an interaction or lifecycle event. Lon/Lat are set for clicks.
type Event struct {
	Type string
	Lon  float64
	Lat  float64
}

// Handler receives surface events.
type Handler func(Event)

// Surface is the feature mutation and event API offered by the host.
type Surface interface {
	// Subscribe registers h for the named event and returns its unsubscribe func.
	Subscribe(event string, h Handler) (unsubscribe func())
	AddFeature(f Feature) error
	RemoveFeature(id string) error
}
