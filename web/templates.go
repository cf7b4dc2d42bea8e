// Package web embeds the server-rendered calculator page.
package web

import (
	"embed"
	"html/template"

	"insurecalc-backend/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates with the helpers they use.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"dollars": models.FormatDollars,
	}).ParseFS(templateFS, "templates/*.html")
}
