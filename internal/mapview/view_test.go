package mapview

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/routesync/internal/optimize"
	"github.com/woozymasta/routesync/internal/overlay"
	"github.com/woozymasta/routesync/internal/stops"
	"github.com/woozymasta/routesync/internal/stream"
	"github.com/woozymasta/routesync/internal/surface"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

const liveRoutes = `[
 {"origin":{"name":"London"},"destination":{"name":"Leeds"},"distance_km":312.4,"duration_min":201.5,
  "geometry":{"type":"LineString","coordinates":[[-0.12,51.5],[-1.55,53.8]]}},
 {"origin":{"name":"Bath"},"destination":{"name":"Bristol"},"distance_km":19.1,"duration_min":25,
  "geometry":{"type":"LineString","coordinates":[[-2.36,51.38],[-2.59,51.45]]}}
]`

const optimized = `{"ordered_stops":[{"lat":51.5,"lon":-0.1,"name":"Stop 1"},{"lat":51.6,"lon":-0.2,"name":"Stop 2"}],
 "route":{"geometry":{"type":"LineString","coordinates":[[-0.1,51.5],[-0.2,51.6]]},"distance_km":14.2,"duration_min":22.5}}`

// backend serves both upstream endpoints.
func backend(t *testing.T, frames chan string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/routes/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case f := <-frames:
				writeFrame(w, f)
			}
		}
	})
	mux.HandleFunc("/api/optimize-route", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(optimized))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newView(t *testing.T, srv *httptest.Server, mem *surface.Memory) *View {
	t.Helper()

	v := New(mem, Options{
		StreamURL: srv.URL + "/api/routes/stream",
		Stream:    stream.Options{Scheduler: stream.NewManualScheduler()},
		Optimizer: optimize.NewClient(srv.URL+"/api/optimize-route", time.Second),
	})
	t.Cleanup(v.Close)
	return v
}

func TestViewDrawsRoutesReceivedBeforeLoad(t *testing.T) {
	frames := make(chan string, 4)
	srv := backend(t, frames)
	mem := surface.NewMemory()
	v := newView(t, srv, mem)

	v.Start()
	frames <- liveRoutes
	require.Eventually(t, func() bool { return len(v.Stream().Routes()) == 2 }, waitFor, tick)

	assert.Nil(t, v.Renderer())
	assert.Empty(t, mem.Features())
	assert.False(t, v.Status().Attached)

	mem.Load()

	require.NotNil(t, v.Renderer())
	assert.Len(t, v.Renderer().Entries(overlay.Live), 2)
	assert.Len(t, mem.Features(), 6)
}

func TestViewFollowsStream(t *testing.T) {
	frames := make(chan string, 4)
	srv := backend(t, frames)
	mem := surface.NewMemory()
	v := newView(t, srv, mem)

	v.Start()
	mem.Load()

	frames <- liveRoutes
	require.Eventually(t, func() bool { return len(v.Renderer().Entries(overlay.Live)) == 2 }, waitFor, tick)

	frames <- `[]`
	require.Eventually(t, func() bool { return len(v.Renderer().Entries(overlay.Live)) == 0 }, waitFor, tick)

	st := v.Status()
	assert.True(t, st.Attached)
	assert.True(t, st.Connected)
	assert.Equal(t, 0, st.LiveRoutes)
}

func TestViewOptimizeFlow(t *testing.T) {
	frames := make(chan string, 4)
	srv := backend(t, frames)
	mem := surface.NewMemory()
	v := newView(t, srv, mem)

	v.Start()
	assert.ErrorIs(t, v.Optimize(context.Background()), ErrNotAttached)

	mem.Load()
	mem.Emit(surface.Event{Type: surface.EventClick, Lat: 51.5, Lon: -0.1})
	mem.Emit(surface.Event{Type: surface.EventClick, Lat: 51.6, Lon: -0.2})

	require.NoError(t, v.Optimize(context.Background()))

	st := v.Status()
	require.NotNil(t, st.Stops.Result)
	assert.Equal(t, 14.2, st.Stops.Result.Route.DistanceKm)
	assert.Len(t, v.Renderer().Entries(overlay.Optimized), 1)

	v.Clear()
	assert.Empty(t, v.Status().Stops.Stops)
	assert.Empty(t, v.Renderer().Entries(overlay.Optimized))
}

func TestViewCloseRemovesEverything(t *testing.T) {
	frames := make(chan string, 4)
	srv := backend(t, frames)
	mem := surface.NewMemory()
	v := newView(t, srv, mem)

	v.Start()
	mem.Load()
	frames <- liveRoutes
	require.Eventually(t, func() bool { return len(v.Renderer().Entries(overlay.Live)) == 2 }, waitFor, tick)
	mem.Emit(surface.Event{Type: surface.EventClick, Lat: 51.5, Lon: -0.1})

	v.Close()

	assert.Empty(t, mem.Features())
	assert.Equal(t, 0, mem.Subscribers(surface.EventClick))
	assert.Equal(t, 0, mem.Subscribers(surface.EventLoad))
	assert.Equal(t, stream.Closed, v.Stream().State().Status)
}

// writeFrame sends payload as one SSE event, one data line per payload line.
func writeFrame(w http.ResponseWriter, payload string) {
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	w.(http.Flusher).Flush()
}

func TestViewForwardsStopChanges(t *testing.T) {
	frames := make(chan string, 4)
	srv := backend(t, frames)
	mem := surface.NewMemory()

	var mu sync.Mutex
	var counts []int
	v := New(mem, Options{
		StreamURL: srv.URL + "/api/routes/stream",
		Stream:    stream.Options{Scheduler: stream.NewManualScheduler()},
		Optimizer: optimize.NewClient(srv.URL+"/api/optimize-route", time.Second),
		OnStops: func(st stops.State) {
			mu.Lock()
			defer mu.Unlock()
			counts = append(counts, len(st.Stops))
		},
	})
	t.Cleanup(v.Close)

	v.Start()
	mem.Load()
	mem.Emit(surface.Event{Type: surface.EventClick, Lat: 51.5, Lon: -0.1})
	mem.Emit(surface.Event{Type: surface.EventClick, Lat: 51.6, Lon: -0.2})
	v.Clear()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 0}, counts)
}
