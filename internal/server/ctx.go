package server

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/woozymasta/routesync/assets"
	"github.com/woozymasta/routesync/internal/mapview"
	"github.com/woozymasta/routesync/internal/surface"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	View      *mapview.View
	Surface   *surface.Memory
	IndexHTML []byte
}

type pageData struct {
	CSS string
	JS  string
}

// NewServerContext builds the minified status page and binds the view.
func NewServerContext(view *mapview.View, mem *surface.Memory) (*ServerContext, error) {
	index, err := BuildIndex()
	if err != nil {
		return nil, err
	}

	log.Info().Int("index_bytes", len(index)).Msg("Server context initialized")

	return &ServerContext{
		View:      view,
		Surface:   mem,
		IndexHTML: index,
	}, nil
}

// BuildIndex renders the embedded page template with minified CSS and JS and
// minifies the result.
func BuildIndex() ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)

	cssMin, err := m.String("text/css", assets.Style)
	if err != nil {
		return nil, fmt.Errorf("minify css: %w", err)
	}
	jsMin, err := m.String("text/javascript", assets.Script)
	if err != nil {
		return nil, fmt.Errorf("minify js: %w", err)
	}

	tmpl, err := template.New("index").Parse(assets.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pageData{CSS: cssMin, JS: jsMin}); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}

	out, err := m.Bytes("text/html", buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("minify html: %w", err)
	}

	return out, nil
}
