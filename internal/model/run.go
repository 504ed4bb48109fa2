// Package model defines shared types for the code runner proxy.
package model

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// RunRequest is a browser code-run submission to be forwarded upstream.
// Body holds the form payload exactly as received.
type RunRequest struct {
	Ctx         context.Context
	ContentType string
	Body        io.Reader
}

// RunResult is the code runner's reply. Body is well-formed JSON and is
// returned to the browser unchanged; the bookie page script reads its
// "output" and "exit_code" fields.
type RunResult struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

// UpstreamResponse is the raw response from the code runner.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
