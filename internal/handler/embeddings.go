package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/service"
)

// EmbeddingsHandler serves POST /v1/embeddings.
type EmbeddingsHandler struct {
	service *service.EmbeddingsService
	logger  *slog.Logger
}

// NewEmbeddingsHandler creates an EmbeddingsHandler.
func NewEmbeddingsHandler(svc *service.EmbeddingsService, logger *slog.Logger) *EmbeddingsHandler {
	return &EmbeddingsHandler{
		service: svc,
		logger:  logger.With("component", "embeddings_handler"),
	}
}

// Handle embeds the request input and answers in the OpenAI response shape.
func (h *EmbeddingsHandler) Handle(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":  "bad request",
			"detail": err.Error(),
		})
	}

	resp, err := h.service.Create(context.WithoutCancel(req.Context()), body)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, resp)
}
