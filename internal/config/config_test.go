package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "upstream: http://localhost:8000/\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Upstream)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultPalette, cfg.Palette)
	assert.Equal(t, DefaultOptimizedColor, cfg.OptimizedColor)
	assert.Equal(t, "http://localhost:8000/api/routes/stream", cfg.StreamURL())
	assert.Equal(t, "http://localhost:8000/api/optimize-route", cfg.OptimizeURL())
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
upstream: https://routes.example.com/backend
stream_path: /sse
optimize_path: /tsp
retry_delay: 5s
request_timeout: 1m
optimized_color: "#000000"
palette: ["#111111", "#222222", "#333333"]
`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "https://routes.example.com/backend/sse", cfg.StreamURL())
	assert.Equal(t, "https://routes.example.com/backend/tsp", cfg.OptimizeURL())
	assert.Equal(t, "#222222", cfg.Palette[1])
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing upstream": "retry_delay: 3s\n",
		"bad upstream":     "upstream: not a url\n",
		"short palette":    "upstream: http://x\npalette: ['#111111']\n",
		"bad color":        "upstream: http://x\noptimized_color: orange\n",
		"relative path":    "upstream: http://x\nstream_path: sse\n",
		"bad yaml":         "upstream: [\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestReadSkipsDefaultsAndValidation(t *testing.T) {
	cfg, err := Read(writeConfig(t, "retry_delay: 1s\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Upstream)
	assert.Empty(t, cfg.Palette)

	cfg.Upstream = "http://override:9000"
	cfg.Normalize()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, "http://override:9000/api/routes/stream", cfg.StreamURL())
}
