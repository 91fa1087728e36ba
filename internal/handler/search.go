package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/service"
)

// SearchHandler serves POST /collections/:name/points/search.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger.With("component", "search_handler"),
	}
}

// Handle runs an augmented search. Rerank failures fall back to the
// datastore's order and never fail the request.
func (h *SearchHandler) Handle(c echo.Context) error {
	body, err := h.service.Search(proxyRequest(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSONBlob(http.StatusOK, body)
}
