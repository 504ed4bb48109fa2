// Package service implements the code runner forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"bookie-server/internal/config"
	"bookie-server/internal/model"
)

var (
	// ErrEmptyForm is returned when the submission carries no body.
	ErrEmptyForm = errors.New("code run submission is empty")
	// ErrUpstreamStatus is returned when the code runner answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("code runner returned an error status")
	// ErrInvalidJSON is returned when the code runner body is not well-formed JSON.
	ErrInvalidJSON = errors.New("code runner returned malformed JSON")
	// ErrResponseTooLarge is returned when the code runner body exceeds the configured cap.
	ErrResponseTooLarge = errors.New("code runner response too large")
)

// forwardableResponseHeaders are the only code runner headers passed back to the browser.
var forwardableResponseHeaders = map[string]bool{
	"Cache-Control": true,
	"X-Request-Id":  true,
}

// Poster is the outbound half of the proxy.
type Poster interface {
	Post(ctx context.Context, contentType string, body io.Reader) (*model.UpstreamResponse, error)
}

// CodeRunnerService forwards code run submissions to the code runner.
type CodeRunnerService struct {
	client   Poster
	maxBytes int64
	logger   *slog.Logger
}

// NewCodeRunnerService creates a CodeRunnerService.
func NewCodeRunnerService(c Poster, cfg *config.Config, logger *slog.Logger) *CodeRunnerService {
	return &CodeRunnerService{
		client:   c,
		maxBytes: cfg.CodeRunner.MaxResponseBytes,
		logger:   logger.With("component", "code_runner_service"),
	}
}

// Run forwards the submission body unchanged to the code runner and returns
// its JSON reply. Exactly one upstream attempt is made.
func (s *CodeRunnerService) Run(rr *model.RunRequest) (*model.RunResult, error) {
	var form []byte
	if rr.Body != nil {
		b, err := io.ReadAll(rr.Body)
		if err != nil {
			return nil, fmt.Errorf("read submission: %w", err)
		}
		form = b
	}
	if len(form) == 0 {
		return nil, ErrEmptyForm
	}

	s.logger.Debug("forwarding submission",
		"content_type", rr.ContentType,
		"bytes", len(form),
	)

	resp, err := s.client.Post(rr.Ctx, rr.ContentType, bytes.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("forward to code runner: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, s.maxBytes))
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := s.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &model.RunResult{
		StatusCode: resp.StatusCode,
		Header:     s.filterResponseHeaders(resp.Header),
		Body:       json.RawMessage(body),
	}, nil
}

// readBody reads at most maxBytes of the code runner reply and checks that it is JSON.
func (s *CodeRunnerService) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read code runner response: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, ErrResponseTooLarge
	}
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}
	return body, nil
}

func (s *CodeRunnerService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
