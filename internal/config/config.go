// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Normalize.
const (
	DefaultStreamPath     = "/api/routes/stream"
	DefaultOptimizePath   = "/api/optimize-route"
	DefaultRetryDelay     = 3 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultOptimizedColor = "#ff6b35"
)

// DefaultPalette holds the live route colors.
var DefaultPalette = []string{"#e6194b", "#3cb44b", "#4363d8"}

// Config represents the root configuration file structure.
type Config struct {
	Upstream       string        `yaml:"upstream" json:"upstream" validate:"required,url"`
	StreamPath     string        `yaml:"stream_path,omitempty" json:"stream_path" validate:"startswith=/"`
	OptimizePath   string        `yaml:"optimize_path,omitempty" json:"optimize_path" validate:"startswith=/"`
	OptimizedColor string        `yaml:"optimized_color,omitempty" json:"optimized_color" validate:"hexcolor"`
	Palette        []string      `yaml:"palette,omitempty" json:"palette" validate:"len=3,dive,hexcolor"`
	RetryDelay     time.Duration `yaml:"retry_delay,omitempty" json:"retry_delay" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" json:"request_timeout" validate:"gt=0"`
}

// Load reads, normalizes and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	return cfg, nil
}

// Read parses the YAML file at path as is, without defaults or validation.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	c.Upstream = strings.TrimRight(strings.TrimSpace(c.Upstream), "/")

	if c.StreamPath == "" {
		c.StreamPath = DefaultStreamPath
	}
	if c.OptimizePath == "" {
		c.OptimizePath = DefaultOptimizePath
	}
	if c.OptimizedColor == "" {
		c.OptimizedColor = DefaultOptimizedColor
	}
	if len(c.Palette) == 0 {
		c.Palette = append([]string(nil), DefaultPalette...)
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// StreamURL is the absolute route stream endpoint.
func (c *Config) StreamURL() string {
	return join(c.Upstream, c.StreamPath)
}

// OptimizeURL is the absolute optimize-route endpoint.
func (c *Config) OptimizeURL() string {
	return join(c.Upstream, c.OptimizePath)
}

func join(base, path string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + path
	}
	return u.JoinPath(path).String()
}
