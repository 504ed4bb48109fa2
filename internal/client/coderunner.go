// Package client provides the upstream HTTP client for the code runner service.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"bookie-server/internal/config"
	"bookie-server/internal/metrics"
	"bookie-server/internal/model"
)

const userAgent = "bookie-server/1.0"

// CodeRunnerClient sends form submissions to the code runner.
type CodeRunnerClient struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewCodeRunnerClient creates a CodeRunnerClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewCodeRunnerClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *CodeRunnerClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.CodeRunner.IdleConnections,
		MaxIdleConnsPerHost: cfg.CodeRunner.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &CodeRunnerClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.CodeRunner.TimeoutSeconds) * time.Second,
		},
		url:     cfg.CodeRunner.URL,
		logger:  logger.With("component", "code_runner_client"),
		metrics: m,
	}
}

// Post sends body to the code runner URL with the given content type and
// returns the raw response. The caller is responsible for closing the
// response body. The context bounds the call together with the client timeout.
func (c *CodeRunnerClient) Post(ctx context.Context, contentType string, body io.Reader) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("build code runner request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("code runner request", "url", c.url)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		c.observe(outcome(err), duration, "")
		return nil, fmt.Errorf("code runner request: %w", err)
	}
	c.observe("ok", duration, strconv.Itoa(resp.StatusCode))

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func (c *CodeRunnerClient) observe(outcome string, seconds float64, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.CodeRunnerDuration.WithLabelValues(outcome).Observe(seconds)
	if status != "" {
		c.metrics.CodeRunnerResponses.WithLabelValues(status).Inc()
	}
}

// outcome classifies a transport error for the duration histogram.
func outcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "error"
}
