package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/service"
)

// writeError maps a service error to its HTTP status and a JSON body of the
// form {"error": ..., "detail": ...}.
func writeError(c echo.Context, logger *slog.Logger, err error) error {
	kind := service.KindOf(err)
	path := c.Request().URL.Path

	switch kind {
	case 0:
		logger.Error("unclassified error", "err", err, "path", path)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	case service.KindBadRequest:
		logger.Debug("rejected request", "err", err, "path", path)
	default:
		logger.Error("request failed", "err", err, "kind", kind.String(), "path", path)
	}

	return c.JSON(kind.Status(), map[string]string{
		"error":  kind.String(),
		"detail": err.Error(),
	})
}
