// Package stream keeps a push connection to the route stream endpoint.
//
// The connection moves through a small state machine:
//
//	Disconnected -> Connecting   Connect
//	Connecting   -> Open         response accepted
//	Open         -> Open         route set message (last write wins)
//	Connecting   -> Disconnected transport error, one retry scheduled
//	Open         -> Disconnected transport error, one retry scheduled
//	any          -> Closed       Close (terminal)
//
// Every connection attempt carries a generation number. Callbacks from a
// connection or timer whose generation is no longer current are dropped, so a
// closed or superseded socket can never touch client state.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/routesync/internal/route"
)

// DefaultRetryDelay is the fixed delay before a reconnect attempt.
const DefaultRetryDelay = 3 * time.Second

// Status is the connection state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Open
	Closed
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText lets Status encode as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{Disconnected, Connecting, Open, Closed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown stream status %q", b)
}

// State is a snapshot of the connection.
type State struct {
	Status    Status `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient *http.Client
	Scheduler  Scheduler
	RetryDelay time.Duration
	// OnRoutes is called for every accepted route set, in receipt order.
	OnRoutes func([]route.Route)
	// OnState is called after every status change.
	OnState func(State)
}

// Client is a route stream consumer. It is safe for concurrent use.
// Callbacks must not call Close.
type Client struct {
	url        string
	httpClient *http.Client
	sched      Scheduler
	retryDelay time.Duration
	onRoutes   func([]route.Route)
	onState    func(State)
	logger     zerolog.Logger

	mu       sync.Mutex
	state    State
	routes   []route.Route
	gen      uint64
	cancel   context.CancelFunc
	retry    Timer
	retrySeq uint64
	attempts int

	// deliver serializes callbacks so they observe receipt order.
	deliver sync.Mutex
	wg      sync.WaitGroup
}

// NewClient creates a disconnected client for the given stream URL.
func NewClient(url string, opts Options) *Client {
	c := &Client{
		url:        url,
		httpClient: opts.HTTPClient,
		sched:      opts.Scheduler,
		retryDelay: opts.RetryDelay,
		onRoutes:   opts.OnRoutes,
		onState:    opts.OnState,
		logger:     log.With().Str("component", "stream").Str("url", url).Logger(),
		state:      State{Status: Disconnected},
	}

	if c.httpClient == nil {
		// no overall timeout: the response body is long-lived
		c.httpClient = &http.Client{}
	}
	if c.sched == nil {
		c.sched = WallClock
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}

	return c
}

// Connect opens the stream. It is a no-op while connecting, open or closed.
// A pending retry is cancelled and replaced by this attempt.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state.Status != Disconnected {
		c.mu.Unlock()
		return
	}

	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.attempts++
	c.state.Status = Connecting
	st := c.state
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug().Uint64("generation", gen).Msg("Connecting to route stream")
	c.emitState(gen, st)

	go c.run(ctx, gen)
}

// Close tears the client down. Pending retries are cancelled, the open
// connection is closed and no callback fires afterwards. Close waits for the
// connection goroutine to exit.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state.Status == Closed {
		c.mu.Unlock()
		return
	}

	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.state = State{Status: Closed}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Debug().Msg("Route stream closed")
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Routes returns the last accepted route set.
func (c *Client) Routes() []route.Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]route.Route(nil), c.routes...)
}

// Attempts returns how many connection attempts were started.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// RetryPending reports whether a reconnect is scheduled.
func (c *Client) RetryPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry != nil
}

func (c *Client) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.fail(gen, fmt.Errorf("create request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.fail(gen, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.fail(gen, fmt.Errorf("HTTP %d", resp.StatusCode))
		return
	}

	if !c.opened(gen) {
		return
	}

	err = readEvents(resp.Body, func(ev event) {
		if ev.Name != "" && ev.Name != "message" {
			return
		}
		if ev.Oversized {
			c.logger.Debug().Int("limit", maxFrameSize).Msg("Discarding oversized stream message")
			return
		}
		c.handleMessage(gen, ev.Data)
	})
	if errors.Is(err, io.EOF) {
		err = errors.New("stream closed by server")
	}
	c.fail(gen, err)
}

func (c *Client) opened(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen || c.state.Status != Connecting {
		c.mu.Unlock()
		return false
	}
	c.state = State{Status: Open}
	st := c.state
	c.mu.Unlock()

	c.logger.Info().Msg("Route stream connected")
	c.emitState(gen, st)
	return true
}

func (c *Client) handleMessage(gen uint64, data []byte) {
	routes, err := route.ParseSet(data)
	if err != nil {
		c.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Discarding malformed stream message")
		return
	}

	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	if gen != c.gen || c.state.Status != Open {
		c.mu.Unlock()
		return
	}
	c.routes = routes
	c.mu.Unlock()

	c.logger.Debug().Int("routes", len(routes)).Msg("Route set received")
	if c.onRoutes != nil {
		c.onRoutes(routes)
	}
}

// fail handles a transport error for connection gen: the connection is
// closed and exactly one retry is scheduled.
func (c *Client) fail(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || (c.state.Status != Connecting && c.state.Status != Open) {
		c.mu.Unlock()
		return
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = State{Status: Disconnected, LastError: cause.Error()}
	st := c.state

	if c.retry == nil {
		c.retrySeq++
		seq := c.retrySeq
		c.retry = c.sched.AfterFunc(c.retryDelay, func() { c.retryFired(seq) })
	}
	c.mu.Unlock()

	c.logger.Warn().
		Err(cause).
		Dur("retry_in", c.retryDelay).
		Msg("Route stream disconnected, reconnecting")
	c.emitState(gen, st)
}

func (c *Client) retryFired(seq uint64) {
	c.mu.Lock()
	if c.retry == nil || seq != c.retrySeq {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()

	c.Connect()
}

func (c *Client) emitState(gen uint64, st State) {
	if c.onState == nil {
		return
	}

	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	c.onState(st)
}
