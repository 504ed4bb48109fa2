package handler

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"bookie-server/internal/config"
	"bookie-server/internal/metrics"
	"bookie-server/internal/routes"
)

// staticPrefix serves the exported book's assets (stylesheets, editor scripts, media).
const staticPrefix = "/static"

// BuildTable assembles the route table: built-in routes first, then the
// generated chapter pages, then any extra routes supplied by the embedder.
// A generated route colliding with a built-in one is an error.
func BuildTable(
	cfg *config.Config,
	pages *PageHandler,
	runner *CodeRunnerHandler,
	health *HealthHandler,
	manifest *routes.Manifest,
	m *metrics.Metrics,
	extra []routes.Route,
) (*routes.Table, error) {
	t := routes.NewTable()

	builtin := []routes.Route{
		{Method: http.MethodGet, Path: "/", Name: "contents", Handler: pages.Contents},
		{Method: http.MethodPost, Path: "/code_runner", Name: "code_runner", Handler: runner.Handle},
		{Method: http.MethodGet, Path: "/healthz", Name: "healthz", Handler: health.Healthz},
		{Method: http.MethodGet, Path: "/proxy/status", Name: "status", Handler: health.Status},
		{
			Method:  http.MethodGet,
			Path:    staticPrefix + "/*",
			Name:    "static",
			Handler: echo.StaticDirectoryHandler(os.DirFS(cfg.Site.StaticDir), false),
		},
	}
	if cfg.Metrics.Enabled && m != nil {
		builtin = append(builtin, routes.Route{
			Method:  http.MethodGet,
			Path:    cfg.Metrics.Path,
			Name:    "metrics",
			Handler: echo.WrapHandler(m.Handler()),
		})
	}
	if err := t.AddAll(builtin); err != nil {
		return nil, fmt.Errorf("built-in routes: %w", err)
	}

	generated := append(manifest.Routes(pages.Page), extra...)
	for _, r := range generated {
		if r.Path == staticPrefix || strings.HasPrefix(r.Path, staticPrefix+"/") {
			return nil, fmt.Errorf("generated route %s %s shadows static assets under %s", r.Method, r.Path, staticPrefix)
		}
		if err := t.Add(r); err != nil {
			return nil, fmt.Errorf("generated routes: %w", err)
		}
	}
	return t, nil
}

// RegisterRoutes wires every route in the table onto the Echo instance.
func RegisterRoutes(e *echo.Echo, t *routes.Table) {
	t.Register(e)
}
