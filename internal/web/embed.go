// Package web provides the embedded control page and its static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gpib-manager/backend/internal/models"
	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html static/*
var embeddedFiles embed.FS

// IndexTemplate is the name of the control page template.
const IndexTemplate = "index.html"

// PageData is rendered into the control page.
type PageData struct {
	Title          string
	History        []string // newest first
	Pulses         []models.PulseConfig
	DefaultAddress string
	Status         models.ConnectionStatus
	Address        string
	Driver         string
	PollIntervalMs int
}

// Renderer implements echo.Renderer over the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"pulseSummary": func(p models.PulseConfig) string { return p.String() },
	}).ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render executes the named template.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// GetFileSystem returns the embedded static assets with static/ as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(embeddedFiles, "static")
}

// RegisterStaticRoutes serves the embedded assets under /static/.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))

	e.GET("/static/*", func(c echo.Context) error {
		name := strings.TrimPrefix(path.Clean(c.Request().URL.Path), "/static/")

		// Directory listings are not exposed
		stat, err := fs.Stat(staticFS, name)
		if err != nil || stat.IsDir() {
			return echo.NewHTTPError(http.StatusNotFound, "asset not found")
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return nil
}
