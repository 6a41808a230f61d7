// Package optimize calls the remote route optimization service.
package optimize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/routesync/internal/route"
)

// MinStops is the smallest stop count the service accepts.
const MinStops = 2

// ErrTooFewStops is returned before any network call when fewer than
// MinStops stops are given.
var ErrTooFewStops = errors.New("at least 2 stops are required")

// Request is the optimize-route request body.
type Request struct {
	Stops      []route.Stop `json:"stops" validate:"dive"`
	FixedStart bool         `json:"fixed_start"`
	RoundTrip  bool         `json:"round_trip"`
}

// Result is a successful optimize-route response.
type Result struct {
	Route        route.Route  `json:"route"`
	OrderedStops []route.Stop `json:"ordered_stops"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

// Error returns the server supplied message, or "HTTP <code>" when the
// response carried none.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Client posts optimization requests. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewClient creates a client for the optimize-route endpoint URL.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(),
		logger:     log.With().Str("component", "optimize").Logger(),
	}
}

// Optimize sends req and decodes the result.
func (c *Client) Optimize(ctx context.Context, req Request) (*Result, error) {
	if len(req.Stops) < MinStops {
		return nil, ErrTooFewStops
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid optimize request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode optimize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	logger := c.logger.With().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Int("stops", len(req.Stops)).
		Dur("duration", time.Since(start)).
		Logger()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Message: errorField(resp.Body)}
		logger.Warn().Err(serr).Msg("Optimize request rejected")
		return nil, serr
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode optimize response: %w", err)
	}

	logger.Info().
		Float64("distance_km", res.Route.DistanceKm).
		Float64("duration_min", res.Route.DurationMin).
		Msg("Optimize request completed")

	return &res, nil
}

// errorField extracts {"error": "..."} from a failure body, if present.
func errorField(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}
