package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"bookie-server/internal/metrics"
)

// Metrics records request count, latency and in-flight gauge for every
// inbound request, labelled by bounded method and path prefix. scrapePath is
// the configured metrics endpoint, which keeps its own label.
func Metrics(m *metrics.Metrics, scrapePath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			status := strconv.Itoa(statusOf(c, err))
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path, scrapePath)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
