package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeProps writes a bookie.properties file into a temp dir and returns its path.
func writeProps(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookie.properties")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeProps(t, `
# Bookie export settings
CODE_RUNNER_URL=https://runner.example.test/run
CODE_RUNNER_TIMEOUT_SECONDS=12
SERVER_HOST=127.0.0.1
SERVER_PORT=9000
SERVER_BODY_MAX_BYTES=4096
TEMPLATES_DIR=site/templates
STATIC_DIR=site/static
CONTENTS_TEMPLATE=contents
GENERATED_ROUTES=site/routes.toml
LOG_LEVEL=debug
LOG_FORMAT=text
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CodeRunner.URL != "https://runner.example.test/run" {
		t.Errorf("CodeRunner.URL = %q, want %q", cfg.CodeRunner.URL, "https://runner.example.test/run")
	}
	if cfg.CodeRunner.TimeoutSeconds != 12 {
		t.Errorf("CodeRunner.TimeoutSeconds = %d, want %d", cfg.CodeRunner.TimeoutSeconds, 12)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.BodyMaxBytes != 4096 {
		t.Errorf("Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 4096)
	}
	if cfg.Site.TemplatesDir != "site/templates" {
		t.Errorf("Site.TemplatesDir = %q, want %q", cfg.Site.TemplatesDir, "site/templates")
	}
	if cfg.Site.ContentsTemplate != "contents" {
		t.Errorf("Site.ContentsTemplate = %q, want %q", cfg.Site.ContentsTemplate, "contents")
	}
	if cfg.Site.RoutesFile != "site/routes.toml" {
		t.Errorf("Site.RoutesFile = %q, want %q", cfg.Site.RoutesFile, "site/routes.toml")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeProps(t, "CODE_RUNNER_URL=http://example.test\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 5000)
	}
	if cfg.Server.BodyMaxBytes != 1<<20 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 1<<20)
	}
	if cfg.CodeRunner.TimeoutSeconds != 30 {
		t.Errorf("default CodeRunner.TimeoutSeconds = %d, want %d", cfg.CodeRunner.TimeoutSeconds, 30)
	}
	if cfg.Site.TemplatesDir != "templates" {
		t.Errorf("default Site.TemplatesDir = %q, want %q", cfg.Site.TemplatesDir, "templates")
	}
	if cfg.Site.StaticDir != "static" {
		t.Errorf("default Site.StaticDir = %q, want %q", cfg.Site.StaticDir, "static")
	}
	if cfg.Site.ContentsTemplate != "index" {
		t.Errorf("default Site.ContentsTemplate = %q, want %q", cfg.Site.ContentsTemplate, "index")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = false by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/bookie.properties"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MissingCodeRunnerURL(t *testing.T) {
	path := writeProps(t, "SERVER_PORT=5000\n")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for missing CODE_RUNNER_URL, got nil")
	}
	if !strings.Contains(err.Error(), KeyCodeRunnerURL) {
		t.Errorf("error = %q, want mention of %s", err, KeyCodeRunnerURL)
	}
}

func TestLoad_InvalidCodeRunnerURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"relative", "/run"},
		{"ftp scheme", "ftp://example.test"},
		{"no host", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProps(t, "CODE_RUNNER_URL="+tt.url+"\n")
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Fatalf("Load() expected error for CODE_RUNNER_URL=%q, got nil", tt.url)
			}
		})
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeProps(t, `
CODE_RUNNER_URL=http://example.test
SERVER_HOST=0.0.0.0
SERVER_PORT=5000
LOG_LEVEL=info
`)

	cli := &CLI{
		Config:        path,
		Host:          "127.0.0.1",
		Port:          3000,
		CodeRunnerURL: "http://override.test",
		LogLevel:      "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.CodeRunner.URL != "http://override.test" {
		t.Errorf("CodeRunner.URL = %q, want %q (CLI override)", cfg.CodeRunner.URL, "http://override.test")
	}
	if got, _ := cfg.Get(KeyCodeRunnerURL); got != "http://override.test" {
		t.Errorf("Get(%s) = %q, want CLI override", KeyCodeRunnerURL, got)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_MalformedNumbers(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"port", "SERVER_PORT=five-thousand"},
		{"timeout", "CODE_RUNNER_TIMEOUT_SECONDS=soon"},
		{"rate limit", "SERVER_RATE_LIMIT_RPS=fast"},
		{"metrics flag", "METRICS_ENABLED=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProps(t, "CODE_RUNNER_URL=http://example.test\n"+tt.line+"\n")
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Fatalf("Load() expected error for %q, got nil", tt.line)
			}
		})
	}
}

func TestLoad_NegativeValues(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"port", "SERVER_PORT=-1"},
		{"body max bytes", "SERVER_BODY_MAX_BYTES=-1"},
		{"timeout", "CODE_RUNNER_TIMEOUT_SECONDS=-5"},
		{"idle connections", "CODE_RUNNER_IDLE_CONNECTIONS=-2"},
		{"rate limit", "SERVER_RATE_LIMIT_RPS=-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProps(t, "CODE_RUNNER_URL=http://example.test\n"+tt.line+"\n")
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Fatalf("Load() expected error for %q, got nil", tt.line)
			}
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeProps(t, "CODE_RUNNER_URL=http://example.test\nLOG_LEVEL=verbose\n")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_RateLimitEnabled(t *testing.T) {
	path := writeProps(t, "CODE_RUNNER_URL=http://example.test\nSERVER_RATE_LIMIT_RPS=50\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestConfig_Get(t *testing.T) {
	path := writeProps(t, "CODE_RUNNER_URL=http://example.test\nBOOK_TITLE=Intro to Go\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"CODE_RUNNER_URL", "http://example.test", true},
		{"code_runner_url", "http://example.test", true},
		{"BOOK_TITLE", "Intro to Go", true},
		{"MISSING_KEY", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := cfg.Get(tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Get(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCodeRunnerConfig_Origin(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.test", "http://example.test"},
		{"https://runner.example.test/api/run", "https://runner.example.test"},
		{"http://localhost:8080/run?x=1", "http://localhost:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c := &CodeRunnerConfig{URL: tt.url}
			if got := c.Origin(); got != tt.want {
				t.Errorf("Origin() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "bookie.properties")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "bookie.properties")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeProps(t, "CODE_RUNNER_URL=http://one.test\n")
	path2 := writeProps(t, "CODE_RUNNER_URL=http://two.test\n")

	if got := findConfigInPaths([]string{"/nonexistent/bookie.properties", path1, path2}); got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
	if got := findConfigInPaths([]string{"/nonexistent/a", "/nonexistent/b"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"default", "", ""},
		{"custom", "/custom-metrics", ""},
		{"no leading slash", "metrics", "must start with"},
		{"root", "/", "must start with"},
		{"code runner", "/code_runner", "conflicts"},
		{"healthz", "/healthz", "conflicts"},
		{"static sub", "/static/metrics", "conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "CODE_RUNNER_URL=http://example.test\nMETRICS_ENABLED=true\n"
			if tt.path != "" {
				data += "METRICS_PATH=" + tt.path + "\n"
			}
			cfg, err := Load(cliWithPath(writeProps(t, data)))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() expected error for METRICS_PATH=%q, got nil", tt.path)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			want := tt.path
			if want == "" {
				want = "/metrics"
			}
			if cfg.Metrics.Path != want {
				t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, want)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeProps(t, "CODE_RUNNER_URL=http://example.test\nMETRICS_ENABLED=false\nMETRICS_PATH=bad-no-slash\n")

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile() error = %v; missing file should be ignored", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOOKIE_TEST_ENV_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOKIE_TEST_ENV_FILE", "")
	os.Unsetenv("BOOKIE_TEST_ENV_FILE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("BOOKIE_TEST_ENV_FILE"); got != "loaded" {
		t.Errorf("BOOKIE_TEST_ENV_FILE = %q, want %q", got, "loaded")
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "0.0.0.0", Port: 5000}
	want := "0.0.0.0:5000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
