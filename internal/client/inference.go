package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"

	"vectorgate/internal/config"
	"vectorgate/internal/metrics"
)

// RerankRequest is the body of POST /v1/rerank on the inference engine.
type RerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

// RerankResult is one scored document. Index refers to the position in
// RerankRequest.Documents; results may come back in any order.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RerankResponse is the body returned by /v1/rerank.
type RerankResponse struct {
	Results []RerankResult `json:"results"`
}

// InferenceClient calls the embedding and rerank capabilities of the
// inference engine. Embeddings go through the OpenAI-compatible API.
type InferenceClient struct {
	backend    *Backend
	openai     *openai.Client
	rerankURL  string
	rerankID   string
	apiKey     string
	rerankable bool
	logger     *slog.Logger
}

// NewInferenceClient creates the pooled inference engine client.
func NewInferenceClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*InferenceClient, error) {
	b, err := NewBackend(metrics.BackendInference, cfg.Inference.BackendConfig, logger, m)
	if err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.Inference.APIKey)
	oc.BaseURL = b.URL("/v1", "")
	oc.HTTPClient = &instrumentedDoer{backend: b}

	rerankBase := cfg.Inference.RerankURL
	if rerankBase == "" {
		rerankBase = cfg.Inference.BaseURL
	}
	rerankURL, err := url.JoinPath(rerankBase, "/v1/rerank")
	if err != nil {
		return nil, fmt.Errorf("build rerank url: %w", err)
	}

	return &InferenceClient{
		backend:    b,
		openai:     openai.NewClientWithConfig(oc),
		rerankURL:  rerankURL,
		rerankID:   cfg.Models.RerankID,
		apiKey:     cfg.Inference.APIKey,
		rerankable: !cfg.Rerank.Disabled,
		logger:     logger.With("component", "inference_client"),
	}, nil
}

// Embed returns one vector per text, in input order.
func (c *InferenceClient) Embed(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	resp, err := c.openai.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(modelID),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("create embeddings: invalid or duplicate index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Rerank scores every document against query. It asks for all documents back
// (top_n = len(documents)) so each input gets a score.
func (c *InferenceClient) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	var header http.Header
	if c.apiKey != "" {
		header = http.Header{"Authorization": {"Bearer " + c.apiKey}}
	}

	var resp RerankResponse
	err := c.backend.PostJSON(ctx, c.rerankURL, header, RerankRequest{
		Model:     c.rerankID,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return resp.Results, nil
}

// Available reports whether reranking is configured.
func (c *InferenceClient) Available() bool {
	return c.rerankable && c.rerankURL != ""
}

// instrumentedDoer routes SDK requests through the backend so they share its
// pool, timeout and metrics.
type instrumentedDoer struct {
	backend *Backend
}

func (d *instrumentedDoer) Do(req *http.Request) (*http.Response, error) {
	pr, err := d.backend.Do(req)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", pr.StatusCode, http.StatusText(pr.StatusCode)),
		StatusCode: pr.StatusCode,
		Header:     pr.Header,
		Body:       pr.Body,
		Request:    req,
	}, nil
}
