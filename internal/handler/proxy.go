package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/model"
	"vectorgate/internal/service"
)

// ProxyHandler forwards every request the gateway does not intercept to the
// datastore.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the datastore and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	pr := proxyRequest(c)

	resp, err := h.service.Forward(pr)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is sent a copy failure can only truncate the body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", pr.Path,
		)
	}

	return nil
}

// proxyRequest builds the service view of the inbound request. Its context is
// detached from the client connection so an issued backend call runs to
// completion or timeout.
func proxyRequest(c echo.Context) *model.ProxyRequest {
	req := c.Request()
	return &model.ProxyRequest{
		Ctx:           context.WithoutCancel(req.Context()),
		Method:        req.Method,
		Path:          req.URL.Path,
		RawPath:       req.URL.EscapedPath(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}
}
