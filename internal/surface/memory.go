package surface

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/woozymasta/routesync/internal/geo"
)

// Memory is a headless surface that keeps features in insertion order.
// It is safe for concurrent use. Handlers run on the caller's goroutine
// after the internal lock has been released.
type Memory struct {
	mu       sync.RWMutex
	order    []string
	features map[string]Feature
	handlers map[string]map[uint64]Handler
	nextSub  uint64
	revision uint64
	loaded   bool
}

// NewMemory returns an empty, not yet loaded surface.
func NewMemory() *Memory {
	return &Memory{
		features: make(map[string]Feature),
		handlers: make(map[string]map[uint64]Handler),
	}
}

// Subscribe implements Surface.
func (m *Memory) Subscribe(event string, h Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[uint64]Handler)
	}
	m.handlers[event][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers[event], id)
			m.mu.Unlock()
		})
	}
}

// AddFeature implements Surface.
func (m *Memory) AddFeature(f Feature) error {
	if f.ID == "" {
		return fmt.Errorf("add feature: empty id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.features[f.ID]; ok {
		return fmt.Errorf("add feature %q: %w", f.ID, ErrDuplicateFeature)
	}

	m.features[f.ID] = f
	m.order = append(m.order, f.ID)
	m.revision++
	return nil
}

// RemoveFeature implements Surface.
func (m *Memory) RemoveFeature(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.features[id]; !ok {
		return fmt.Errorf("remove feature %q: %w", id, ErrUnknownFeature)
	}

	delete(m.features, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.revision++
	return nil
}

// Load marks the surface ready and dispatches EventLoad once.
func (m *Memory) Load() {
	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()
		return
	}
	m.loaded = true
	m.mu.Unlock()

	m.Emit(Event{Type: EventLoad})
}

// Loaded reports whether Load has been called.
func (m *Memory) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Emit dispatches e to every handler subscribed to e.Type.
func (m *Memory) Emit(e Event) {
	m.mu.RLock()
	hs := make([]Handler, 0, len(m.handlers[e.Type]))
	for _, h := range m.handlers[e.Type] {
		hs = append(hs, h)
	}
	m.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}

// Subscribers returns the number of handlers registered for an event.
func (m *Memory) Subscribers(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Feature returns a feature by id.
func (m *Memory) Feature(id string) (Feature, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.features[id]
	return f, ok
}

// Features returns a copy of all features in insertion order.
func (m *Memory) Features() []Feature {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Feature, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.features[id])
	}
	return out
}

// Revision increases on every successful mutation.
func (m *Memory) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}

// FeatureCollection renders the current state as GeoJSON.
func (m *Memory) FeatureCollection() *geojson.FeatureCollection {
	fc := geo.NewFeatureCollection()
	for _, f := range m.Features() {
		props := map[string]interface{}{
			"kind":  string(f.Kind),
			"color": f.Style.Color,
		}
		if f.Style.Width > 0 {
			props["width"] = f.Style.Width
		}
		if f.Style.Opacity > 0 {
			props["opacity"] = f.Style.Opacity
		}
		if len(f.Style.DashArray) > 0 {
			props["dash_array"] = f.Style.DashArray
		}
		if f.Style.Radius > 0 {
			props["radius"] = f.Style.Radius
			props["border_width"] = f.Style.BorderWidth
		}
		if f.Style.Text != "" {
			props["text"] = f.Style.Text
		}
		if f.Title != "" {
			props["title"] = f.Title
		}
		if f.Popup != "" {
			props["popup"] = f.Popup
		}

		fc.Append(geo.NewFeature(f.ID, f.Geometry, props))
	}
	return fc
}
