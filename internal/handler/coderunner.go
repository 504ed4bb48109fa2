package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"bookie-server/internal/model"
	"bookie-server/internal/service"
)

// CodeRunnerHandler forwards code run submissions from book pages to the code runner.
type CodeRunnerHandler struct {
	service *service.CodeRunnerService
	logger  *slog.Logger
}

// NewCodeRunnerHandler creates a CodeRunnerHandler.
func NewCodeRunnerHandler(svc *service.CodeRunnerService, logger *slog.Logger) *CodeRunnerHandler {
	return &CodeRunnerHandler{
		service: svc,
		logger:  logger.With("component", "code_runner_handler"),
	}
}

// Handle forwards the form body to the code runner and returns its JSON reply.
func (h *CodeRunnerHandler) Handle(c echo.Context) error {
	req := c.Request()
	res, err := h.service.Run(&model.RunRequest{
		Ctx:         req.Context(),
		ContentType: req.Header.Get(echo.HeaderContentType),
		Body:        req.Body,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	for key, vals := range res.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	return c.JSONBlob(http.StatusOK, res.Body)
}

// mapError turns a forwarding failure into a JSON error response. Every
// upstream failure is a 5xx so the page script never sees an empty success.
func (h *CodeRunnerHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("code runner error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		// Body limit exceeded while reading the submission.
		return he
	}
	if errors.Is(err, service.ErrEmptyForm) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "empty code run submission",
		})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "code runner timed out",
		})
	}
	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}
	if errors.Is(err, service.ErrUpstreamStatus) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "code runner returned an error status",
		})
	}
	if errors.Is(err, service.ErrInvalidJSON) || errors.Is(err, service.ErrResponseTooLarge) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "code runner returned an invalid response",
		})
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "code runner timed out",
		})
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "code runner host unreachable",
		})
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "code runner connection failed",
		})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "code runner request failed",
	})
}
