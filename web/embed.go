// Package web embeds the UI assets served by the HTTP layer.
package web

import "embed"

// TemplatesFS holds the server-rendered HTML templates, including the
// HTMX partials swapped into the dashboard.
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds stylesheets and other static assets.
//go:embed static/*
var StaticFS embed.FS
