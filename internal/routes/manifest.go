package routes

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	toml "github.com/pelletier/go-toml/v2"
)

// Manifest is the generated route block: one page per exported chapter.
//
//	[[route]]
//	path = "/chapter_one.html"
//	template = "chapter_one"
//	title = "Chapter One"
type Manifest struct {
	Pages []Page `toml:"route"`
}

// Page is a single generated chapter route.
type Page struct {
	Path     string `toml:"path"`
	Template string `toml:"template"` // defaults to the path without leading slash and extension
	Title    string `toml:"title"`
}

// PageFunc builds the handler that renders a page's template.
type PageFunc func(p Page) echo.HandlerFunc

// LoadManifest reads the manifest at filePath. A missing file yields an empty
// manifest: the book simply has no generated chapters.
func LoadManifest(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("routes: read %s: %w", filePath, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("routes: parse %s: %w", filePath, err)
	}
	return m, nil
}

// ParseManifest decodes and normalizes a manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for i := range m.Pages {
		p, err := m.Pages[i].normalize()
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i+1, err)
		}
		m.Pages[i] = p
	}
	return &m, nil
}

// Routes turns every page into a GET route using page to build handlers.
func (m *Manifest) Routes(page PageFunc) []Route {
	out := make([]Route, 0, len(m.Pages))
	for _, p := range m.Pages {
		out = append(out, Route{
			Method:  http.MethodGet,
			Path:    p.Path,
			Name:    "page:" + p.Template,
			Handler: page(p),
		})
	}
	return out
}

func (p Page) normalize() (Page, error) {
	p.Path = strings.TrimSpace(p.Path)
	if err := validatePath(p.Path); err != nil {
		return p, fmt.Errorf("path %q: %w", p.Path, err)
	}
	p.Template = strings.TrimSpace(p.Template)
	if p.Template == "" {
		p.Template = TemplateName(p.Path)
	}
	if p.Template == "" {
		return p, fmt.Errorf("path %q: cannot derive a template name", p.Path)
	}
	return p, nil
}

// TemplateName derives a template name from a URL path:
// "/part1/chapter_one.html" becomes "part1/chapter_one".
func TemplateName(urlPath string) string {
	name := strings.TrimPrefix(path.Clean(urlPath), "/")
	return strings.TrimSuffix(name, path.Ext(name))
}
