package handler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"bookie-server/internal/client"
	"bookie-server/internal/config"
	"bookie-server/internal/routes"
	"bookie-server/internal/service"
)

// testSite lays out an exported book: templates/, static/ and a config
// pointing at them.
type testSite struct {
	cfg      *config.Config
	manifest *routes.Manifest
	logger   *slog.Logger
}

func newTestSite(t *testing.T, codeRunnerURL string, extra map[string]string) *testSite {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"templates/index.html":       `<h1>{{ .BookTitle }}</h1><ul>{{ range .Chapters }}<li><a href="{{ .Path }}">{{ .Title }}</a></li>{{ end }}</ul>`,
		"templates/chapter_one.html": `<h1>{{ .Title }}</h1><p>print(1)</p>`,
		"static/bookie.css":          `body { margin: 0; }`,
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	values := map[string]string{
		config.KeyCodeRunnerURL:     codeRunnerURL,
		config.KeyCodeRunnerTimeout: "2",
		config.KeyTemplatesDir:      filepath.Join(root, "templates"),
		config.KeyStaticDir:         filepath.Join(root, "static"),
		config.KeyBookTitle:         "Learning Go",
	}
	for k, v := range extra {
		values[k] = v
	}
	cfg, err := config.NewForTest(values)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}

	return &testSite{
		cfg: cfg,
		manifest: &routes.Manifest{Pages: []routes.Page{
			{Path: "/chapter_one.html", Template: "chapter_one", Title: "Chapter One"},
		}},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *testSite) pageHandler(t *testing.T) *PageHandler {
	t.Helper()
	r, err := NewRenderer(s.cfg)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return NewPageHandler(r, s.cfg, s.manifest, s.logger)
}

func (s *testSite) codeRunnerHandler() *CodeRunnerHandler {
	c := client.NewCodeRunnerClient(s.cfg, s.logger, nil)
	return NewCodeRunnerHandler(service.NewCodeRunnerService(c, s.cfg, s.logger), s.logger)
}

func (s *testSite) healthHandler() *HealthHandler {
	return NewHealthHandler(s.cfg, s.manifest, "test")
}
