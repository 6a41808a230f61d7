// Package overlay reconciles route sets against the features drawn on a map surface.
package overlay

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/routesync/internal/geo"
	"github.com/woozymasta/routesync/internal/route"
	"github.com/woozymasta/routesync/internal/surface"
)

// Category separates overlay namespaces.
type Category string

const (
	Live      Category = "live"
	Optimized Category = "optimized"
)

// MaxLiveSlots is the number of streamed routes that can be shown at once.
const MaxLiveSlots = 3

// DefaultPalette colors live slots by index mod 3.
var DefaultPalette = []string{"#e6194b", "#3cb44b", "#4363d8"}

// DefaultOptimizedColor is used for the optimized route line.
const DefaultOptimizedColor = "#ff6b35"

// Key identifies one overlay entry.
type Key struct {
	Category Category `json:"category"`
	Slot     int      `json:"slot"`
}

// Entry describes a rendered feature bundle.
type Entry struct {
	Key       Key      `json:"key"`
	Color     string   `json:"color"`
	LineID    string   `json:"line_id"`
	MarkerIDs []string `json:"marker_ids,omitempty"`
}

// Options configures a Renderer.
type Options struct {
	Palette        []string
	OptimizedColor string
}

// Renderer owns the live slots and the optimized slot on a surface.
// It keeps a registry of every feature id it created and tears entries
// down through that registry. It is safe for concurrent use.
type Renderer struct {
	surface        surface.Surface
	palette        []string
	optimizedColor string
	logger         zerolog.Logger

	mu       sync.Mutex
	entries  map[Key]*Entry
	disposed bool
}

// NewRenderer attaches a renderer to s.
func NewRenderer(s surface.Surface, opts Options) *Renderer {
	r := &Renderer{
		surface:        s,
		palette:        opts.Palette,
		optimizedColor: opts.OptimizedColor,
		logger:         log.With().Str("component", "overlay").Logger(),
		entries:        make(map[Key]*Entry),
	}

	if len(r.palette) == 0 {
		r.palette = DefaultPalette
	}
	if r.optimizedColor == "" {
		r.optimizedColor = DefaultOptimizedColor
	}

	return r
}

// Color returns the palette color of a live slot.
func (r *Renderer) Color(slot int) string {
	return r.palette[slot%len(r.palette)]
}

// Reconcile replaces every entry of category with one entry per drawable
// route, in input order. Routes without coordinates are skipped but keep
// their position, so slot and color always follow the input index.
func (r *Renderer) Reconcile(category Category, routes []route.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil
	}

	limit := len(routes)
	switch category {
	case Live:
		if limit > MaxLiveSlots {
			r.logger.Warn().
				Int("routes", limit).
				Int("max_slots", MaxLiveSlots).
				Msg("Route set exceeds live slots, extra routes ignored")
			limit = MaxLiveSlots
		}
	case Optimized:
		if limit > 1 {
			limit = 1
		}
	default:
		return fmt.Errorf("reconcile: unknown category %q", category)
	}

	errs := []error{r.clearLocked(category)}

	created := 0
	for i := 0; i < limit; i++ {
		rt := routes[i]
		if !rt.Drawable() {
			r.logger.Debug().
				Str("category", string(category)).
				Int("slot", i).
				Msg("Route without geometry skipped")
			continue
		}

		key := Key{Category: category, Slot: i}
		entry, err := r.build(key, rt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.entries[key] = entry
		created++
	}

	r.logger.Debug().
		Str("category", string(category)).
		Int("routes", len(routes)).
		Int("entries", created).
		Msg("Overlay reconciled")

	return errors.Join(errs...)
}

// Clear removes every entry of category.
func (r *Renderer) Clear(category Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil
	}
	return r.clearLocked(category)
}

// Entries returns the entries of category ordered by slot.
func (r *Renderer) Entries(category Category) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for k, e := range r.entries {
		if k.Category != category {
			continue
		}
		cp := *e
		cp.MarkerIDs = append([]string(nil), e.MarkerIDs...)
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Slot < out[j].Key.Slot })
	return out
}

// Dispose removes every entry and detaches from the surface.
func (r *Renderer) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil
	}
	err := errors.Join(r.clearLocked(Live), r.clearLocked(Optimized))
	r.disposed = true
	return err
}

func (r *Renderer) clearLocked(category Category) error {
	var errs []error
	for k, e := range r.entries {
		if k.Category != category {
			continue
		}
		errs = append(errs, r.teardown(e))
		delete(r.entries, k)
	}
	return errors.Join(errs...)
}

// teardown removes the features of e. Features the surface no longer knows
// are ignored; the registry entry is dropped either way.
func (r *Renderer) teardown(e *Entry) error {
	var errs []error

	ids := append([]string{e.LineID}, e.MarkerIDs...)
	for _, id := range ids {
		if err := r.surface.RemoveFeature(id); err != nil && !errors.Is(err, surface.ErrUnknownFeature) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Renderer) build(key Key, rt route.Route) (*Entry, error) {
	base := featureID(key)
	coords := rt.Geometry.Coordinates

	entry := &Entry{Key: key, LineID: base}

	line := surface.Feature{
		ID:       base,
		Kind:     surface.KindLine,
		Geometry: append(orb.LineString(nil), coords...),
	}

	var markers []surface.Feature
	switch key.Category {
	case Live:
		entry.Color = r.Color(key.Slot)
		line.Style = surface.Style{Color: entry.Color, Width: 4, Opacity: 0.85}
		markers = liveMarkers(base, entry.Color, rt)
	case Optimized:
		entry.Color = r.optimizedColor
		line.Style = surface.Style{Color: entry.Color, Width: 5, DashArray: []float64{2, 1}}
	}

	if err := r.surface.AddFeature(line); err != nil {
		return nil, fmt.Errorf("add line %q: %w", line.ID, err)
	}

	for _, m := range markers {
		if err := r.surface.AddFeature(m); err != nil {
			// roll back the half-built entry so nothing dangles
			tdErr := r.teardown(entry)
			return nil, errors.Join(fmt.Errorf("add marker %q: %w", m.ID, err), tdErr)
		}
		entry.MarkerIDs = append(entry.MarkerIDs, m.ID)
	}

	return entry, nil
}

func liveMarkers(base, color string, rt route.Route) []surface.Feature {
	first, last, _ := geo.Endpoints(rt.Geometry.Coordinates)

	return []surface.Feature{
		{
			ID:       base + "-origin",
			Kind:     surface.KindMarker,
			Geometry: first,
			Style:    surface.Style{Color: color, Radius: 5, BorderWidth: 2},
			Title:    rt.OriginName(),
			Popup:    rt.OriginName(),
		},
		{
			ID:       base + "-destination",
			Kind:     surface.KindMarker,
			Geometry: last,
			Style:    surface.Style{Color: color, Radius: 6, BorderWidth: 3},
			Title:    rt.DestinationName(),
			Popup:    DestinationLabel(rt),
		},
	}
}

// DestinationLabel is the popup text of a destination marker.
func DestinationLabel(rt route.Route) string {
	return fmt.Sprintf("%s — %s km / %s min",
		rt.DestinationName(),
		strconv.FormatFloat(rt.DistanceKm, 'f', -1, 64),
		strconv.FormatFloat(rt.DurationMin, 'f', -1, 64))
}

func featureID(key Key) string {
	if key.Category == Optimized {
		return "optimized-route"
	}
	return "sse-route-" + strconv.Itoa(key.Slot)
}
