package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/unrolled/render"

	"bookie-server/internal/config"
	"bookie-server/internal/routes"
)

// PageData is the binding passed to every page template.
type PageData struct {
	BookTitle string
	Title     string
	Path      string
	Chapters  []routes.Page
}

// templateFuncs are available to every page template. Templates use Go
// html/template syntax; asset links are written as {{ static "bookie.css" }}.
var templateFuncs = template.FuncMap{
	"static": StaticURL,
}

// StaticURL returns the URL under which the static asset name is served.
// The name is cleaned so it cannot climb out of the static prefix.
func StaticURL(name string) string {
	return path.Join(staticPrefix, path.Clean("/"+name))
}

// NewRenderer compiles the templates under the configured directory.
// A template that fails to parse is reported as an error instead of a panic.
func NewRenderer(cfg *config.Config) (r *render.Render, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("compile templates in %s: %v", cfg.Site.TemplatesDir, rec)
		}
	}()
	return render.New(render.Options{
		Directory:                 cfg.Site.TemplatesDir,
		Extensions:                []string{".html", ".tmpl"},
		Funcs:                     []template.FuncMap{templateFuncs},
		IsDevelopment:             cfg.Log.Level == "debug",
		DisableHTTPErrorRendering: true,
	}), nil
}

// PageHandler renders the contents page and generated chapter pages.
type PageHandler struct {
	render   *render.Render
	cfg      *config.Config
	chapters []routes.Page
	logger   *slog.Logger
}

// NewPageHandler creates a PageHandler. The manifest's pages are listed on
// the contents page.
func NewPageHandler(r *render.Render, cfg *config.Config, manifest *routes.Manifest, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		render:   r,
		cfg:      cfg,
		chapters: manifest.Pages,
		logger:   logger.With("component", "page_handler"),
	}
}

// Contents renders the book's contents page.
func (h *PageHandler) Contents(c echo.Context) error {
	return h.html(c, h.cfg.Site.ContentsTemplate, PageData{
		BookTitle: h.cfg.Site.BookTitle,
		Title:     h.cfg.Site.BookTitle,
		Path:      "/",
		Chapters:  h.chapters,
	})
}

// Page returns a handler rendering one generated chapter page.
func (h *PageHandler) Page(p routes.Page) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.html(c, p.Template, PageData{
			BookTitle: h.cfg.Site.BookTitle,
			Title:     p.Title,
			Path:      p.Path,
			Chapters:  h.chapters,
		})
	}
}

func (h *PageHandler) html(c echo.Context, name string, data PageData) error {
	if err := h.render.HTML(c.Response(), http.StatusOK, name, data); err != nil {
		h.logger.Error("render page",
			"err", err,
			"template", name,
			"path", c.Request().URL.Path,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "page unavailable",
		})
	}
	return nil
}
