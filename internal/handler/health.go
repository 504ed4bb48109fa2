package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bookie-server/internal/config"
	"bookie-server/internal/routes"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg      *config.Config
	manifest *routes.Manifest
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, manifest *routes.Manifest, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, manifest: manifest, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns server status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          string(h.version),
		"code_runner_url":  h.cfg.CodeRunner.URL,
		"book_title":       h.cfg.Site.BookTitle,
		"generated_routes": len(h.manifest.Pages),
	})
}
