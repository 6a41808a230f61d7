package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidLonLat(t *testing.T) {
	assert.True(t, ValidLonLat(-0.1, 51.5))
	assert.True(t, ValidLonLat(180, MaxLat))
	assert.False(t, ValidLonLat(181, 0))
	assert.False(t, ValidLonLat(0, 89))
	assert.False(t, ValidLonLat(math.NaN(), 0))
	assert.False(t, ValidLonLat(0, math.Inf(1)))
}

func TestWrapLon(t *testing.T) {
	cases := map[string]struct {
		in, want float64
	}{
		"in range":        {-0.1, -0.1},
		"west edge":       {-180, -180},
		"east edge":       {180, -180},
		"one world east":  {359.9, -0.1},
		"two worlds west": {-720.5, -0.5},
		"just past east":  {190, -170},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, tc.want, WrapLon(tc.in), 1e-9)
		})
	}

	assert.True(t, math.IsNaN(WrapLon(math.NaN())))
	assert.True(t, math.IsNaN(WrapLon(math.Inf(1))))
}

func TestEndpoints(t *testing.T) {
	t.Run("empty line", func(t *testing.T) {
		_, _, ok := Endpoints(nil)
		assert.False(t, ok)
	})

	t.Run("single point line", func(t *testing.T) {
		first, last, ok := Endpoints(orb.LineString{{1, 2}})
		require.True(t, ok)
		assert.Equal(t, orb.Point{1, 2}, first)
		assert.Equal(t, first, last)
	})

	t.Run("multi point line", func(t *testing.T) {
		first, last, ok := Endpoints(orb.LineString{{1, 2}, {3, 4}, {5, 6}})
		require.True(t, ok)
		assert.Equal(t, orb.Point{1, 2}, first)
		assert.Equal(t, orb.Point{5, 6}, last)
	})
}

func TestNewFeatureCollectionEncodesEmptyArray(t *testing.T) {
	data, err := json.Marshal(NewFeatureCollection())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestNewFeatureDropsNilProperties(t *testing.T) {
	f := NewFeature("a", orb.Point{1, 2}, map[string]interface{}{
		"color": "#fff",
		"label": nil,
	})

	assert.Equal(t, "a", f.ID)
	assert.Equal(t, "#fff", f.Properties["color"])
	_, ok := f.Properties["label"]
	assert.False(t, ok)
}
