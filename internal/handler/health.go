package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/client"
	"vectorgate/internal/config"
	"vectorgate/internal/querycontext"
)

// Version is a string type for dependency injection of the build version.
type Version string

// readyTimeout bounds the datastore health check behind /readyz.
const readyTimeout = 3 * time.Second

type healthChecker interface {
	Check(ctx context.Context) (string, error)
}

// HealthHandler serves the gateway's own health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	probe   healthChecker
	slot    *querycontext.Slot
}

// NewHealthHandler creates a HealthHandler. probe may be nil, in which case
// readiness does not depend on the datastore.
func NewHealthHandler(cfg *config.Config, v Version, probe *client.DatastoreProbe, slot *querycontext.Slot) *HealthHandler {
	h := &HealthHandler{cfg: cfg, version: v, slot: slot}
	if probe != nil {
		h.probe = probe
	}
	return h
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readyz reports whether the datastore answers its gRPC health check.
func (h *HealthHandler) Readyz(c echo.Context) error {
	if h.probe == nil {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"datastore": "skipped",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
	defer cancel()

	version, err := h.probe.Check(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":    "unavailable",
			"datastore": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":            "ok",
		"datastore":         "ok",
		"datastore_version": version,
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	_, hasQuery := h.slot.Load()
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       string(h.version),
		"inference_url": h.cfg.Inference.BaseURL,
		"rerank_url":    h.cfg.Inference.RerankURL,
		"datastore_url": h.cfg.Datastore.BaseURL,
		"rerank":        !h.cfg.Rerank.Disabled,
		"query_context": hasQuery,
	})
}
