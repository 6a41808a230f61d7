// Package stops manages user-selected stops and their optimization.
package stops

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/routesync/internal/geo"
	"github.com/woozymasta/routesync/internal/optimize"
	"github.com/woozymasta/routesync/internal/overlay"
	"github.com/woozymasta/routesync/internal/route"
	"github.com/woozymasta/routesync/internal/surface"
)

// MarkerColor is the fill of numbered stop markers.
const MarkerColor = "#334155"

var (
	// ErrTooFewStops is returned when optimize is invoked below the threshold.
	ErrTooFewStops = optimize.ErrTooFewStops
	// ErrBusy is returned when a request is already in flight.
	ErrBusy = errors.New("optimization already in progress")
	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("stop controller disposed")
	// ErrDiscarded is returned when a clear or dispose superseded the request.
	ErrDiscarded = errors.New("optimization result discarded")
)

// Optimizer computes a visiting order for stops.
type Optimizer interface {
	Optimize(ctx context.Context, req optimize.Request) (*optimize.Result, error)
}

// OverlaySink draws the optimized route.
type OverlaySink interface {
	Reconcile(category overlay.Category, routes []route.Route) error
	Clear(category overlay.Category) error
}

// State is a snapshot of the controller.
type State struct {
	Stops   []route.Stop     `json:"stops"`
	Loading bool             `json:"loading"`
	Error   string           `json:"error,omitempty"`
	Result  *optimize.Result `json:"result,omitempty"`
}

// CanOptimize reports whether the optimize action should be enabled.
func (s State) CanOptimize() bool {
	return len(s.Stops) >= optimize.MinStops && !s.Loading
}

// Controller owns the ordered stop list, the numbered stop markers and the
// optimize round-trip. It is safe for concurrent use.
type Controller struct {
	surface   surface.Surface
	sink      OverlaySink
	optimizer Optimizer
	logger    zerolog.Logger

	// lifetime is cancelled by Dispose; every request derives from it.
	lifetime context.Context
	stop     context.CancelFunc

	mu          sync.Mutex
	stops       []route.Stop
	markers     []string
	result      *optimize.Result
	loading     bool
	errText     string
	epoch       uint64
	cancelReq   context.CancelFunc
	unsubscribe func()
	disposed    bool
	onChange    func(State)
	version     uint64

	// notifyMu serializes OnChange callbacks; delivered is the newest
	// version handed out.
	notifyMu  sync.Mutex
	delivered uint64

	wg sync.WaitGroup
}

// NewController subscribes to click events on s.
func NewController(s surface.Surface, sink OverlaySink, optimizer Optimizer) *Controller {
	lifetime, stop := context.WithCancel(context.Background())

	c := &Controller{
		surface:   s,
		sink:      sink,
		optimizer: optimizer,
		logger:    log.With().Str("component", "stops").Logger(),
		lifetime:  lifetime,
		stop:      stop,
	}
	c.unsubscribe = s.Subscribe(surface.EventClick, c.handleClick)

	return c
}

// OnChange registers a callback invoked after every state change. Callbacks
// never run concurrently and arrive in change order; an intermediate state may
// be skipped when a newer one was already delivered.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) handleClick(e surface.Event) {
	if _, err := c.AddStop(e.Lon, e.Lat); err != nil {
		c.logger.Warn().Err(err).Float64("lon", e.Lon).Float64("lat", e.Lat).Msg("Click ignored")
	}
}

// AddStop appends a stop named "Stop N" and draws its numbered marker.
// Longitudes from repeated world copies are wrapped into [-180, 180).
func (c *Controller) AddStop(lon, lat float64) (route.Stop, error) {
	lon = geo.WrapLon(lon)
	if !geo.ValidLonLat(lon, lat) {
		return route.Stop{}, fmt.Errorf("coordinate out of range: lon=%v lat=%v", lon, lat)
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return route.Stop{}, ErrDisposed
	}

	n := len(c.stops) + 1
	stop := route.Stop{Lat: lat, Lon: lon, Name: "Stop " + strconv.Itoa(n)}
	c.stops = append(c.stops, stop)

	id := "stop-" + strconv.Itoa(n-1)
	marker := surface.Feature{
		ID:       id,
		Kind:     surface.KindMarker,
		Geometry: orb.Point{lon, lat},
		Style:    surface.Style{Color: MarkerColor, Radius: 12, BorderWidth: 2, Text: strconv.Itoa(n)},
		Title:    stop.Name,
	}
	if err := c.surface.AddFeature(marker); err != nil {
		c.logger.Error().Err(err).Str("feature", id).Msg("Failed to draw stop marker")
	} else {
		c.markers = append(c.markers, id)
	}

	st, notify := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug().Str("stop", stop.Name).Float64("lon", lon).Float64("lat", lat).Msg("Stop added")
	notify(st)
	return stop, nil
}

// Optimize sends the current stops to the optimizer and draws the result.
// It blocks until the response arrives, ctx is done, or the request is
// superseded by Clear or Dispose. While a request is in flight further calls
// return ErrBusy without issuing another request. Below two stops it returns
// ErrTooFewStops and nothing is sent.
//
// A failed request records a readable error and keeps the previous result
// and overlay. Cancelling ctx abandons the request without recording an error.
func (c *Controller) Optimize(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.loading:
		c.mu.Unlock()
		return ErrBusy
	case len(c.stops) < optimize.MinStops:
		c.mu.Unlock()
		return ErrTooFewStops
	}

	c.loading = true
	c.errText = ""
	c.epoch++
	epoch := c.epoch

	reqCtx, cancel := context.WithCancel(c.lifetime)
	c.cancelReq = cancel
	req := optimize.Request{
		Stops:      append([]route.Stop(nil), c.stops...),
		FixedStart: false,
		RoundTrip:  false,
	}

	c.wg.Add(1)
	st, notify := c.snapshotLocked()
	c.mu.Unlock()

	defer c.wg.Done()
	defer cancel()
	release := context.AfterFunc(ctx, cancel)
	defer release()

	notify(st)

	res, err := c.optimizer.Optimize(reqCtx, req)

	c.mu.Lock()
	if c.disposed || epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug().Msg("Optimization result discarded")
		return ErrDiscarded
	}

	c.loading = false
	c.cancelReq = nil

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		// the caller gave up; that is not a failure worth showing
		st, notify := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Debug().Int("stops", len(req.Stops)).Msg("Optimization abandoned by caller")
		notify(st)
		return ctx.Err()
	}

	if err != nil {
		c.errText = Message(err)
		st, notify := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Warn().Err(err).Int("stops", len(req.Stops)).Msg("Optimization failed")
		notify(st)
		return err
	}

	c.result = res
	if rerr := c.sink.Reconcile(overlay.Optimized, []route.Route{res.Route}); rerr != nil {
		c.logger.Error().Err(rerr).Msg("Failed to draw optimized route")
	}
	st, notify = c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info().
		Int("stops", len(req.Stops)).
		Float64("distance_km", res.Route.DistanceKm).
		Float64("duration_min", res.Route.DurationMin).
		Msg("Route optimized")
	notify(st)
	return nil
}

// Clear removes every stop and marker, drops the result and error, cancels
// an in-flight request and removes the optimized overlay.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	c.resetLocked()
	if err := c.sink.Clear(overlay.Optimized); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear optimized route")
	}
	st, notify := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug().Msg("Stops cleared")
	notify(st)
}

// Dispose unsubscribes from the surface, removes the stop markers and
// prevents any outstanding response from changing state. It waits for
// in-flight Optimize calls to return.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	c.disposed = true
	c.unsubscribe()
	c.resetLocked()
	c.onChange = nil
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// resetLocked returns the controller to its initial state.
func (c *Controller) resetLocked() {
	for _, id := range c.markers {
		if err := c.surface.RemoveFeature(id); err != nil && !errors.Is(err, surface.ErrUnknownFeature) {
			c.logger.Error().Err(err).Str("feature", id).Msg("Failed to remove stop marker")
		}
	}
	c.markers = nil
	c.stops = nil
	c.result = nil
	c.errText = ""
	c.loading = false
	c.epoch++
	if c.cancelReq != nil {
		c.cancelReq()
		c.cancelReq = nil
	}
}

func (c *Controller) stateLocked() State {
	return State{
		Stops:   append([]route.Stop(nil), c.stops...),
		Loading: c.loading,
		Error:   c.errText,
		Result:  c.result,
	}
}

// snapshotLocked captures the state for an OnChange notification. Notifies
// run outside c.mu; a notify older than one already delivered is dropped so
// observers never end on a stale state.
func (c *Controller) snapshotLocked() (State, func(State)) {
	c.version++
	version := c.version
	fn := c.onChange

	return c.stateLocked(), func(s State) {
		if fn == nil {
			return
		}

		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		if version <= c.delivered {
			return
		}
		c.delivered = version
		fn(s)
	}
}

// Message turns an optimize failure into user-facing text: the server
// supplied message if any, otherwise the status or transport error.
func Message(err error) string {
	var serr *optimize.StatusError
	if errors.As(err, &serr) {
		return serr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "optimization request timed out"
	}
	return err.Error()
}
