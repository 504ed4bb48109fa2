package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCORS(t *testing.T) {
	const runner = "http://runner.example:8001"

	e := echo.New()
	e.Use(CORS(runner))
	e.POST("/code_runner", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"output":"1"}`))
	})

	tests := []struct {
		name      string
		method    string
		origin    string
		wantAllow string
	}{
		{"allowed origin", http.MethodPost, runner, runner},
		{"allowed origin preflight", http.MethodOptions, runner, runner},
		{"other origin", http.MethodPost, "http://evil.example", ""},
		{"other origin preflight", http.MethodOptions, "http://evil.example", ""},
		{"same host other port", http.MethodPost, "http://runner.example:9000", ""},
		{"no origin", http.MethodPost, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/code_runner", http.NoBody)
			if tt.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORS_PreflightAllowsPost(t *testing.T) {
	const runner = "https://runner.example"

	e := echo.New()
	e.Use(CORS(runner))
	e.POST("/code_runner", func(c echo.Context) error { return nil })

	req := httptest.NewRequest(http.MethodOptions, "/code_runner", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, runner)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowMethods); got == "" {
		t.Error("expected Access-Control-Allow-Methods on preflight")
	}
}
