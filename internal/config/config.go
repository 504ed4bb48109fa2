// Package config handles bookie.properties loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"bookie.properties",
	"/etc/bookie/bookie.properties",
}

// Property keys understood by the server. Lookups are case-insensitive.
const (
	KeyCodeRunnerURL       = "CODE_RUNNER_URL"
	KeyCodeRunnerTimeout   = "CODE_RUNNER_TIMEOUT_SECONDS"
	KeyCodeRunnerIdleConns = "CODE_RUNNER_IDLE_CONNECTIONS"
	KeyCodeRunnerMaxBody   = "CODE_RUNNER_MAX_RESPONSE_BYTES"
	KeyServerHost          = "SERVER_HOST"
	KeyServerPort          = "SERVER_PORT"
	KeyServerBodyMaxBytes  = "SERVER_BODY_MAX_BYTES"
	KeyServerRateLimitRPS  = "SERVER_RATE_LIMIT_RPS"
	KeyTemplatesDir        = "TEMPLATES_DIR"
	KeyStaticDir           = "STATIC_DIR"
	KeyContentsTemplate    = "CONTENTS_TEMPLATE"
	KeyGeneratedRoutes     = "GENERATED_ROUTES"
	KeyBookTitle           = "BOOK_TITLE"
	KeyLogLevel            = "LOG_LEVEL"
	KeyLogFormat           = "LOG_FORMAT"
	KeyMetricsEnabled      = "METRICS_ENABLED"
	KeyMetricsPath         = "METRICS_PATH"
)

// requiredKeys must be present and non-empty in the properties file.
var requiredKeys = []string{KeyCodeRunnerURL}

// reservedPaths are owned by built-in routes; the metrics path may not shadow them.
var reservedPaths = []string{"/code_runner", "/healthz", "/proxy/status", "/static"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config        string `kong:"short='c',help='Path to bookie.properties.',env='BOOKIE_CONFIG'"`
	Host          string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port          int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	CodeRunnerURL string `kong:"help='Code runner URL (overrides config).',env='CODE_RUNNER_URL'"`
	LogLevel      string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the immutable application configuration built once at startup.
type Config struct {
	Server     ServerConfig
	CodeRunner CodeRunnerConfig
	Site       SiteConfig
	Log        LogConfig
	Metrics    MetricsConfig

	values   map[string]string // raw properties, lower-cased keys
	filePath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int // 0 means "use default" (5000)
	BodyMaxBytes int64
	RateLimit    RateLimitConfig
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
}

// CodeRunnerConfig describes the upstream code runner service.
type CodeRunnerConfig struct {
	URL              string
	TimeoutSeconds   int
	IdleConnections  int
	MaxResponseBytes int64
}

// SiteConfig locates the exported book on disk.
type SiteConfig struct {
	TemplatesDir     string
	StaticDir        string
	ContentsTemplate string
	RoutesFile       string
	BookTitle        string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LoadEnvFile seeds the process environment from a dotenv file so that Kong
// picks the values up. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the properties file and applies CLI overrides.
// When no explicit path is given (via --config or BOOKIE_CONFIG), it searches
// ./bookie.properties then /etc/bookie/bookie.properties.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no properties file found (searched %v)", configSearchPaths)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	values := make(map[string]string, len(v.AllKeys()))
	for _, k := range v.AllKeys() {
		values[strings.ToLower(k)] = strings.TrimSpace(v.GetString(k))
	}

	cfg := &Config{values: values, filePath: path}
	cfg.applyCLI(cli)
	if err := cfg.decode(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// Get returns the raw value for key as read from the properties file, after
// CLI overrides.
func (c *Config) Get(key string) (string, bool) {
	val, ok := c.values[strings.ToLower(key)]
	return val, ok
}

// applyCLI overrides property values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.values[strings.ToLower(KeyServerHost)] = cli.Host
	}
	if cli.Port != 0 {
		c.values[strings.ToLower(KeyServerPort)] = strconv.Itoa(cli.Port)
	}
	if cli.CodeRunnerURL != "" {
		c.values[strings.ToLower(KeyCodeRunnerURL)] = cli.CodeRunnerURL
	}
	if cli.LogLevel != "" {
		c.values[strings.ToLower(KeyLogLevel)] = cli.LogLevel
	}
}

// decode fills the typed fields from the raw values.
func (c *Config) decode() error {
	for _, key := range requiredKeys {
		if val, ok := c.Get(key); !ok || val == "" {
			return fmt.Errorf("%s is required", key)
		}
	}

	var err error
	str := func(key string) string {
		val, _ := c.Get(key)
		return val
	}
	integer := func(key string) int {
		val, ok := c.Get(key)
		if !ok || val == "" || err != nil {
			return 0
		}
		n, convErr := strconv.Atoi(val)
		if convErr != nil {
			err = fmt.Errorf("%s must be an integer; got %q", key, val)
		}
		return n
	}
	float := func(key string) float64 {
		val, ok := c.Get(key)
		if !ok || val == "" || err != nil {
			return 0
		}
		f, convErr := strconv.ParseFloat(val, 64)
		if convErr != nil {
			err = fmt.Errorf("%s must be a number; got %q", key, val)
		}
		return f
	}
	boolean := func(key string) bool {
		val, ok := c.Get(key)
		if !ok || val == "" || err != nil {
			return false
		}
		b, convErr := strconv.ParseBool(val)
		if convErr != nil {
			err = fmt.Errorf("%s must be true or false; got %q", key, val)
		}
		return b
	}

	c.CodeRunner = CodeRunnerConfig{
		URL:              str(KeyCodeRunnerURL),
		TimeoutSeconds:   integer(KeyCodeRunnerTimeout),
		IdleConnections:  integer(KeyCodeRunnerIdleConns),
		MaxResponseBytes: int64(integer(KeyCodeRunnerMaxBody)),
	}
	rps := float(KeyServerRateLimitRPS)
	c.Server = ServerConfig{
		Host:         str(KeyServerHost),
		Port:         integer(KeyServerPort),
		BodyMaxBytes: int64(integer(KeyServerBodyMaxBytes)),
		RateLimit: RateLimitConfig{
			Enabled:           rps > 0,
			RequestsPerSecond: rps,
		},
	}
	c.Site = SiteConfig{
		TemplatesDir:     str(KeyTemplatesDir),
		StaticDir:        str(KeyStaticDir),
		ContentsTemplate: str(KeyContentsTemplate),
		RoutesFile:       str(KeyGeneratedRoutes),
		BookTitle:        str(KeyBookTitle),
	}
	c.Log = LogConfig{
		Level:  str(KeyLogLevel),
		Format: str(KeyLogFormat),
	}
	c.Metrics = MetricsConfig{
		Enabled: boolean(KeyMetricsEnabled),
		Path:    str(KeyMetricsPath),
	}
	return err
}

func (c *Config) validate() error {
	// Code runner URL: absolute http(s) URL with a host.
	u, err := url.Parse(c.CodeRunner.URL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", KeyCodeRunnerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", KeyCodeRunnerURL, c.CodeRunner.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", KeyCodeRunnerURL, c.CodeRunner.URL)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%s must be 0-65535; got %d", KeyServerPort, c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("%s must be non-negative; got %d", KeyServerBodyMaxBytes, c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("%s must be non-negative; got %v", KeyServerRateLimitRPS, c.Server.RateLimit.RequestsPerSecond)
	}
	if c.CodeRunner.TimeoutSeconds < 0 {
		return fmt.Errorf("%s must be non-negative; got %d", KeyCodeRunnerTimeout, c.CodeRunner.TimeoutSeconds)
	}
	if c.CodeRunner.IdleConnections < 0 {
		return fmt.Errorf("%s must be non-negative; got %d", KeyCodeRunnerIdleConns, c.CodeRunner.IdleConnections)
	}
	if c.CodeRunner.MaxResponseBytes < 0 {
		return fmt.Errorf("%s must be non-negative; got %d", KeyCodeRunnerMaxBody, c.CodeRunner.MaxResponseBytes)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("%s must be one of: debug, info, warn, error; got %q", KeyLogLevel, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("%s must be one of: json, text; got %q", KeyLogFormat, c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' || p == "/" {
			return fmt.Errorf("%s must start with '/' and name a path; got %q", KeyMetricsPath, p)
		}
		for _, reserved := range reservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("%s %q conflicts with reserved route %q", KeyMetricsPath, p, reserved)
			}
		}
	}
	return nil
}

// setDefaults fills zero-valued fields. For integers zero means "unset", so
// SERVER_PORT=0 results in the default port.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1 << 20
	}
	if c.CodeRunner.TimeoutSeconds == 0 {
		c.CodeRunner.TimeoutSeconds = 30
	}
	if c.CodeRunner.IdleConnections == 0 {
		c.CodeRunner.IdleConnections = 16
	}
	if c.CodeRunner.MaxResponseBytes == 0 {
		c.CodeRunner.MaxResponseBytes = 1 << 20
	}
	if c.Site.TemplatesDir == "" {
		c.Site.TemplatesDir = "templates"
	}
	if c.Site.StaticDir == "" {
		c.Site.StaticDir = "static"
	}
	if c.Site.ContentsTemplate == "" {
		c.Site.ContentsTemplate = "index"
	}
	if c.Site.RoutesFile == "" {
		c.Site.RoutesFile = "routes.toml"
	}
	if c.Site.BookTitle == "" {
		c.Site.BookTitle = "Book"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origin returns the scheme://host[:port] part of the code runner URL, the
// only origin allowed by the CORS policy.
func (c *CodeRunnerConfig) Origin() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// NewForTest builds a Config from raw key/values without touching the
// filesystem. Defaults are applied; validation errors are returned.
func NewForTest(values map[string]string) (*Config, error) {
	lowered := make(map[string]string, len(values))
	for k, v := range values {
		lowered[strings.ToLower(k)] = v
	}
	cfg := &Config{values: lowered}
	if err := cfg.decode(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}
