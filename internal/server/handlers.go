// Package server exposes a map view over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/routesync/internal/geo"
	"github.com/woozymasta/routesync/internal/mapview"
	"github.com/woozymasta/routesync/internal/stops"
	"github.com/woozymasta/routesync/internal/surface"
)

const etagCap = 32

// maxBody caps request payloads; clicks are tiny.
const maxBody = 1 << 16

type clickRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router registers all handlers.
func (s *ServerContext) Router() http.Handler {
	r := httprouter.New()
	r.GET("/", s.HandleIndex)
	r.GET("/healthz", s.HandleHealth)
	r.GET("/api/status", s.HandleStatus)
	r.GET("/api/overlay", s.HandleOverlay)
	r.POST("/api/click", s.HandleClick)
	r.POST("/api/optimize", s.HandleOptimize)
	r.POST("/api/clear", s.HandleClear)
	return r
}

// HandleIndex serves the status page.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, int64(len(s.IndexHTML)), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

// HandleHealth reports liveness.
func (s *ServerContext) HandleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus serves the combined view snapshot.
func (s *ServerContext) HandleStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.View.Status())
}

// HandleOverlay serves every feature on the surface as GeoJSON. The ETag
// follows the surface revision.
func (s *ServerContext) HandleOverlay(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	buf := make([]byte, 0, etagCap)
	buf = append(buf, `"rev-`...)
	buf = strconv.AppendUint(buf, s.Surface.Revision(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := json.Marshal(s.Surface.FeatureCollection())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// HandleClick injects a map click at the given coordinate.
func (s *ServerContext) HandleClick(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req clickRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	lon := geo.WrapLon(*req.Lon)
	if !geo.ValidLonLat(lon, *req.Lat) {
		writeError(w, http.StatusBadRequest, "coordinate out of range")
		return
	}

	c := s.View.Controller()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, mapview.ErrNotAttached.Error())
		return
	}

	s.Surface.Emit(surface.Event{Type: surface.EventClick, Lon: lon, Lat: *req.Lat})
	writeJSON(w, http.StatusOK, c.State())
}

// HandleOptimize runs an optimization over the current stops and waits for it.
func (s *ServerContext) HandleOptimize(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	err := s.View.Optimize(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.View.Status().Stops)
	case errors.Is(err, stops.ErrTooFewStops):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stops.ErrBusy), errors.Is(err, stops.ErrDiscarded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mapview.ErrNotAttached), errors.Is(err, stops.ErrDisposed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// caller went away; nothing is recorded
		writeError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		writeError(w, http.StatusBadGateway, stops.Message(err))
	}
}

// HandleClear drops all stops and the optimized overlay.
func (s *ServerContext) HandleClear(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.View.Clear()
	writeJSON(w, http.StatusOK, s.View.Status().Stops)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// client disconnects are not actionable
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
