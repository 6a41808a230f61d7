package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/routesync/internal/overlay"
	"github.com/woozymasta/routesync/internal/route"
	"github.com/woozymasta/routesync/internal/surface"
	"gopkg.in/yaml.v3"
)

func rendered(t *testing.T) *surface.Memory {
	t.Helper()

	routes, err := route.ParseSet([]byte(`[{"origin":{"name":"A"},"destination":{"name":"B"},"distance_km":1.5,"duration_min":3,
	 "geometry":{"type":"LineString","coordinates":[[10,50],[11,51]]}}]`))
	require.NoError(t, err)

	mem := surface.NewMemory()
	require.NoError(t, overlay.NewRenderer(mem, overlay.Options{}).Reconcile(overlay.Live, routes))
	return mem
}

func TestEncodeJSON(t *testing.T) {
	data, err := encode(rendered(t), "json")
	require.NoError(t, err)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
	assert.Equal(t, "Point", fc.Features[1].Geometry.Type)
}

func TestEncodeYAMLKeepsGeoJSONShape(t *testing.T) {
	data, err := encode(rendered(t), "yaml")
	require.NoError(t, err)

	var tree map[string]any
	require.NoError(t, yaml.Unmarshal(data, &tree))
	assert.Equal(t, "FeatureCollection", tree["type"])

	features, ok := tree["features"].([]any)
	require.True(t, ok)
	assert.Len(t, features, 3)
}
