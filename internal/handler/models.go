package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/config"
	"vectorgate/internal/model"
)

// ModelsHandler serves GET /v1/models from configuration.
type ModelsHandler struct {
	list model.ModelList
}

// NewModelsHandler creates a ModelsHandler listing the embedding and rerank models.
func NewModelsHandler(cfg *config.Config) *ModelsHandler {
	created := time.Now().Unix()
	info := func(id string) model.ModelInfo {
		return model.ModelInfo{ID: id, Object: "model", Created: created, OwnedBy: "vectorgate"}
	}
	return &ModelsHandler{list: model.ModelList{
		Object: "list",
		Data:   []model.ModelInfo{info(cfg.Models.EmbeddingID), info(cfg.Models.RerankID)},
	}}
}

// Handle returns the model list.
func (h *ModelsHandler) Handle(c echo.Context) error {
	return c.JSON(http.StatusOK, h.list)
}
