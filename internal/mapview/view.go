// Package mapview wires the route stream, the overlay renderer and the stop
// controller onto one map surface.
//
// The stream starts as soon as the view is started. Renderer and controller
// attach only once the surface fires its load event; the latest route set
// received before that is drawn on attach.
package mapview

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/routesync/internal/overlay"
	"github.com/woozymasta/routesync/internal/route"
	"github.com/woozymasta/routesync/internal/stops"
	"github.com/woozymasta/routesync/internal/stream"
	"github.com/woozymasta/routesync/internal/surface"
)

// ErrNotAttached is returned by stop operations before the surface has loaded.
var ErrNotAttached = errors.New("map not loaded")

// Options configures a View.
type Options struct {
	StreamURL string
	Stream    stream.Options
	Overlay   overlay.Options
	Optimizer stops.Optimizer
	// OnStops receives every stop controller state change after attach.
	OnStops func(stops.State)
}

// Status is the combined view state served to clients.
type Status struct {
	Attached   bool            `json:"attached"`
	Stream     stream.State    `json:"stream"`
	Connected  bool            `json:"connected"`
	LiveRoutes int             `json:"live_routes"`
	Live       []overlay.Entry `json:"live"`
	Stops      stops.State     `json:"stops"`
}

// View owns the components attached to one surface.
type View struct {
	surface   surface.Surface
	optimizer stops.Optimizer
	overlay   overlay.Options
	onStops   func(stops.State)
	logger    zerolog.Logger

	stream *stream.Client

	mu         sync.Mutex
	renderer   *overlay.Renderer
	controller *stops.Controller
	unload     func()
	closed     bool
}

// New creates a view. Nothing runs until Start.
func New(s surface.Surface, opts Options) *View {
	v := &View{
		surface:   s,
		optimizer: opts.Optimizer,
		overlay:   opts.Overlay,
		onStops:   opts.OnStops,
		logger:    log.With().Str("component", "mapview").Logger(),
	}

	streamOpts := opts.Stream
	onRoutes := streamOpts.OnRoutes
	streamOpts.OnRoutes = func(routes []route.Route) {
		v.applyLive(routes)
		if onRoutes != nil {
			onRoutes(routes)
		}
	}
	v.stream = stream.NewClient(opts.StreamURL, streamOpts)

	return v
}

// Start connects the stream and waits for the surface load event to attach.
func (v *View) Start() {
	v.mu.Lock()
	if v.closed || v.unload != nil {
		v.mu.Unlock()
		return
	}
	v.unload = v.surface.Subscribe(surface.EventLoad, func(surface.Event) { v.Attach() })
	v.mu.Unlock()

	v.stream.Connect()
}

// Attach creates the renderer and controller. Safe to call more than once.
func (v *View) Attach() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || v.renderer != nil {
		return
	}

	v.renderer = overlay.NewRenderer(v.surface, v.overlay)
	v.controller = stops.NewController(v.surface, v.renderer, v.optimizer)
	if v.onStops != nil {
		v.controller.OnChange(v.onStops)
	}

	if err := v.renderer.Reconcile(overlay.Live, v.stream.Routes()); err != nil {
		v.logger.Error().Err(err).Msg("Failed to draw live routes on attach")
	}

	v.logger.Info().Msg("Attached to map surface")
}

func (v *View) applyLive(routes []route.Route) {
	v.mu.Lock()
	r := v.renderer
	v.mu.Unlock()

	if r == nil {
		return
	}
	if err := r.Reconcile(overlay.Live, routes); err != nil {
		v.logger.Error().Err(err).Msg("Failed to draw live routes")
	}
}

// Controller returns the stop controller, nil before attach.
func (v *View) Controller() *stops.Controller {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.controller
}

// Renderer returns the overlay renderer, nil before attach.
func (v *View) Renderer() *overlay.Renderer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renderer
}

// Stream returns the stream client.
func (v *View) Stream() *stream.Client {
	return v.stream
}

// Optimize forwards to the controller. Before attach it returns ErrNotAttached.
func (v *View) Optimize(ctx context.Context) error {
	c := v.Controller()
	if c == nil {
		return ErrNotAttached
	}
	return c.Optimize(ctx)
}

// Clear forwards to the controller.
func (v *View) Clear() {
	if c := v.Controller(); c != nil {
		c.Clear()
	}
}

// Status returns a combined snapshot.
func (v *View) Status() Status {
	st := v.stream.State()
	s := Status{
		Stream:     st,
		Connected:  st.Status == stream.Open,
		LiveRoutes: len(v.stream.Routes()),
		Live:       []overlay.Entry{},
		Stops:      stops.State{Stops: []route.Stop{}},
	}

	if r := v.Renderer(); r != nil {
		s.Attached = true
		s.Live = r.Entries(overlay.Live)
	}
	if c := v.Controller(); c != nil {
		s.Stops = c.State()
		if s.Stops.Stops == nil {
			s.Stops.Stops = []route.Stop{}
		}
	}

	return s
}

// Close tears down in dependency order: stream first so no update races the
// renderer teardown, then the controller, then the renderer.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unload := v.unload
	v.mu.Unlock()

	if unload != nil {
		unload()
	}
	v.stream.Close()

	v.mu.Lock()
	c, r := v.controller, v.renderer
	v.mu.Unlock()

	if c != nil {
		c.Dispose()
	}
	if r != nil {
		if err := r.Dispose(); err != nil {
			v.logger.Error().Err(err).Msg("Failed to remove overlay")
		}
	}

	v.logger.Info().Msg("Map view closed")
}
