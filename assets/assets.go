// Package assets embeds the status page sources.
package assets

import _ "embed"

// IndexTemplate is the page skeleton; CSS and JS are injected after minification.
//
//go:embed index.html.tpl
var IndexTemplate string

// Style is the page stylesheet.
//
//go:embed style.css
var Style string

// Script is the page script.
//
//go:embed script.js
var Script string
