// Package routes holds the server's route table: the built-in routes plus
// the block of chapter routes emitted by the book exporter.
package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrDuplicateRoute is returned when a (method, path) pair is registered twice.
var ErrDuplicateRoute = errors.New("duplicate route")

// Route binds a method and path to a handler.
type Route struct {
	Method  string
	Path    string
	Name    string
	Handler echo.HandlerFunc
}

func (r Route) key() string {
	return r.Method + " " + r.Path
}

// Table is an ordered set of routes with unique (method, path) pairs.
// It is not safe for concurrent use; build it before the server starts.
type Table struct {
	routes []Route
	owners map[string]string
}

// NewTable returns an empty route table.
func NewTable() *Table {
	return &Table{owners: make(map[string]string)}
}

// Add appends a route. The method is upper-cased; the path must be absolute.
func (t *Table) Add(r Route) error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if err := validatePath(r.Path); err != nil {
		return fmt.Errorf("route %s %q: %w", r.Method, r.Path, err)
	}
	if r.Handler == nil {
		return fmt.Errorf("route %s %s: nil handler", r.Method, r.Path)
	}
	if owner, ok := t.owners[r.key()]; ok {
		return fmt.Errorf("%w: %s %s (%s) already registered by %s", ErrDuplicateRoute, r.Method, r.Path, r.Name, owner)
	}
	t.owners[r.key()] = r.Name
	t.routes = append(t.routes, r)
	return nil
}

// AddAll adds routes in order, stopping at the first error.
func (t *Table) AddAll(rs []Route) error {
	for _, r := range rs {
		if err := t.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether method and path are already taken.
func (t *Table) Has(method, path string) bool {
	_, ok := t.owners[strings.ToUpper(method)+" "+path]
	return ok
}

// Routes returns a copy of the registered routes in insertion order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Register installs every route on e. A GET route also answers HEAD unless
// the table holds an explicit HEAD route for the same path.
func (t *Table) Register(e *echo.Echo) {
	for _, r := range t.routes {
		e.Add(r.Method, r.Path, r.Handler).Name = r.Name
		if r.Method == http.MethodGet && !t.Has(http.MethodHead, r.Path) {
			e.Add(http.MethodHead, r.Path, r.Handler).Name = r.Name
		}
	}
}

func validatePath(p string) error {
	if p == "" || p[0] != '/' {
		return errors.New("path must start with '/'")
	}
	if strings.ContainsAny(p, " \t\r\n?#") {
		return errors.New("path must not contain whitespace, '?' or '#'")
	}
	return nil
}
