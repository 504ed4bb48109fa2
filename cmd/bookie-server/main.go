package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"bookie-server/internal/client"
	"bookie-server/internal/config"
	"bookie-server/internal/handler"
	"bookie-server/internal/metrics"
	"bookie-server/internal/middleware"
	"bookie-server/internal/routes"
	"bookie-server/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	envFile := os.Getenv("BOOKIE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("bookie-server"),
		kong.Description("Web front-end for an exported Bookie book."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(appOptions(&cli)).Run()
}

// appOptions is the full provider set. fx.New fails, and Run exits non-zero,
// when any constructor fails: missing bookie.properties, bad manifest,
// unparsable templates or colliding routes.
func appOptions(cli *config.CLI) fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			loadManifest,
			handler.NewRenderer,
			handler.NewPageHandler,
			fx.Annotate(client.NewCodeRunnerClient, fx.As(new(service.Poster))),
			service.NewCodeRunnerService,
			handler.NewCodeRunnerHandler,
			handler.NewHealthHandler,
			fx.Annotate(handler.BuildTable, fx.ParamTags(``, ``, ``, ``, ``, ``, `group:"generated_routes"`)),
		),
		fx.Invoke(registerRoutes, warnConfigPermissions, startServer),
	)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Log.Format, "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "bookie-server")
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = strings.EqualFold(cfg.Log.Level, "debug")

	e.Server.ReadTimeout = 30 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	// Leave room for the slowest code run plus the reply.
	e.Server.WriteTimeout = time.Duration(cfg.CodeRunner.TimeoutSeconds)*time.Second + 10*time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger.With("component", "http")))
	if cfg.Metrics.Enabled {
		e.Use(middleware.Metrics(m, cfg.Metrics.Path))
	}
	e.Use(middleware.CORS(cfg.CodeRunner.Origin()))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	logger.Info("cors restricted", "origin", cfg.CodeRunner.Origin())
	return e
}

func loadManifest(cfg *config.Config, logger *slog.Logger) (*routes.Manifest, error) {
	m, err := routes.LoadManifest(cfg.Site.RoutesFile)
	if err != nil {
		return nil, err
	}
	logger.Info("route manifest loaded", "path", cfg.Site.RoutesFile, "pages", len(m.Pages))
	return m, nil
}

func registerRoutes(e *echo.Echo, t *routes.Table, logger *slog.Logger) {
	handler.RegisterRoutes(e, t)
	for _, r := range t.Routes() {
		logger.Debug("route registered", "method", r.Method, "path", r.Path, "name", r.Name)
	}
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "code_runner_url", cfg.CodeRunner.URL)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
