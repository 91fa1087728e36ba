package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"unicode/utf8"

	"vectorgate/internal/client"
	"vectorgate/internal/config"
	"vectorgate/internal/metrics"
	"vectorgate/internal/model"
	"vectorgate/internal/querycontext"
	"vectorgate/internal/textrole"
)

// EmbeddingsService prefixes embedding input by role and forwards it to the
// inference engine.
type EmbeddingsService struct {
	inference *client.InferenceClient
	slot      *querycontext.Slot
	prefixes  textrole.Prefixes
	modelID   string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewEmbeddingsService creates an EmbeddingsService. The metrics parameter is optional.
func NewEmbeddingsService(ic *client.InferenceClient, slot *querycontext.Slot, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *EmbeddingsService {
	return &EmbeddingsService{
		inference: ic,
		slot:      slot,
		prefixes: textrole.Prefixes{
			Query:   cfg.Models.QueryPrefix,
			Passage: cfg.Models.PassagePrefix,
		},
		modelID: cfg.Models.EmbeddingID,
		logger:  logger.With("component", "embeddings_service"),
		metrics: m,
	}
}

// Create embeds the inputs of an OpenAI-style embeddings request body.
//
// A single short input is treated as a search query: it gets the query prefix
// and its raw text becomes the current query context. Anything else is
// embedded as passages.
func (s *EmbeddingsService) Create(ctx context.Context, body []byte) (*model.EmbeddingsResponse, error) {
	const op = "embeddings"

	var req model.EmbeddingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, badRequest(op, "invalid JSON body: %v", err)
	}
	inputs, err := parseInput(req.Input)
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}

	role, texts := textrole.Apply(inputs, s.prefixes)
	if role == textrole.Query {
		s.slot.Store(inputs[0])
		if s.metrics != nil {
			s.metrics.ContextSlotWrites.Inc()
		}
	}
	s.logger.Debug("embedding inputs", "role", role, "count", len(texts))

	vectors, err := s.inference.Embed(ctx, s.modelID, texts)
	if err != nil {
		return nil, newError(KindUpstreamUnavailable, op, err)
	}

	data := make([]model.EmbeddingData, len(vectors))
	for i, v := range vectors {
		data[i] = model.EmbeddingData{Object: "embedding", Embedding: v, Index: i}
	}

	modelID := req.Model
	if modelID == "" {
		modelID = s.modelID
	}
	tokens := approxTokens(inputs)

	return &model.EmbeddingsResponse{
		Object: "list",
		Data:   data,
		Model:  modelID,
		Usage:  model.Usage{PromptTokens: tokens, TotalTokens: tokens},
	}, nil
}

// parseInput accepts a string or a non-empty array of strings.
func parseInput(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("missing input")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.New("input must be a string or an array of strings")
		}
		if s == "" {
			return nil, errors.New("input must not be empty")
		}
		return []string{s}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, errors.New("input must be a string or an array of strings")
		}
		if len(elems) == 0 {
			return nil, errors.New("input must not be empty")
		}
		out := make([]string, len(elems))
		for i, e := range elems {
			if err := json.Unmarshal(e, &out[i]); err != nil || bytes.Equal(bytes.TrimSpace(e), []byte("null")) {
				return nil, errors.New("input array must contain only strings")
			}
		}
		return out, nil
	}
	return nil, errors.New("input must be a string or an array of strings")
}

// approxTokens estimates usage as one token per four characters.
func approxTokens(inputs []string) int {
	n := 0
	for _, s := range inputs {
		n += utf8.RuneCountInString(s)
	}
	return (n + 3) / 4
}
