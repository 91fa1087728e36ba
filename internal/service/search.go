package service

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vectorgate/internal/client"
	"vectorgate/internal/config"
	"vectorgate/internal/metrics"
	"vectorgate/internal/model"
	"vectorgate/internal/querycontext"
	"vectorgate/internal/rerank"
)

// QueryHeader carries the query text for a single search request. When set it
// takes precedence over the shared query context.
const QueryHeader = "X-Gateway-Query"

// candidateKeys are the payload keys searched, in order, for rerankable text.
var candidateKeys = []string{"text", "content", "page_content", "document", "code", "chunk", "body"}

// maxBackendError caps the datastore error body echoed in error details.
const maxBackendError = 4 << 10

var tracer = otel.Tracer("vectorgate/service")

// SearchService widens datastore searches, reranks the candidates against the
// current query and returns the client's requested number of hits.
type SearchService struct {
	datastore      *client.DatastoreClient
	pipeline       *rerank.Pipeline
	slot           *querycontext.Slot
	defaultLimit   int
	candidateLimit int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewSearchService creates a SearchService. The metrics parameter is optional.
func NewSearchService(ds *client.DatastoreClient, p *rerank.Pipeline, slot *querycontext.Slot, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *SearchService {
	return &SearchService{
		datastore:      ds,
		pipeline:       p,
		slot:           slot,
		defaultLimit:   cfg.Search.DefaultLimit,
		candidateLimit: cfg.Search.CandidateLimit,
		logger:         logger.With("component", "search_service"),
		metrics:        m,
	}
}

// candidate is a hit with its position in the backend response.
type candidate struct {
	hit      *model.Hit
	pos      int
	reranked bool
}

// Search runs a datastore search with an inflated limit and returns the
// response body to send to the client.
//
// Augmentation never fails the request: when it is skipped or fails the hits
// keep the datastore's order and are truncated to the requested limit.
func (s *SearchService) Search(pr *model.ProxyRequest) ([]byte, error) {
	const op = "search"

	body, err := io.ReadAll(pr.Body)
	if err != nil {
		return nil, badRequest(op, "read body: %v", err)
	}
	outbound, limit, err := s.inflate(body)
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}

	top, hits, err := s.query(pr, outbound)
	if err != nil {
		return nil, newError(KindBackendUnavailable, op, err)
	}

	ranked := make([]candidate, len(hits))
	for i, h := range hits {
		ranked[i] = candidate{hit: h, pos: i}
	}
	s.augment(pr.Ctx, queryFor(pr.Header, s.slot), ranked)

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*model.Hit, len(ranked))
	for i, c := range ranked {
		out[i] = c.hit
	}
	result, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%s: encode hits: %w", op, err)
	}
	top["result"] = result

	resp, err := json.Marshal(top)
	if err != nil {
		return nil, fmt.Errorf("%s: encode response: %w", op, err)
	}
	return resp, nil
}

// inflate returns the outbound body and the client's limit. Only limit and
// with_payload are rewritten; every other field is passed through verbatim.
func (s *SearchService) inflate(body []byte) ([]byte, int, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, 0, fmt.Errorf("invalid JSON body: %w", err)
	}
	if fields == nil {
		return nil, 0, errors.New("body must be a JSON object")
	}

	limit := s.defaultLimit
	if raw, ok := fields["limit"]; ok && string(bytes.TrimSpace(raw)) != "null" {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil || f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
			return nil, 0, fmt.Errorf("limit must be a positive integer, got %s", raw)
		}
		limit = int(f)
	}

	fields["limit"] = json.RawMessage(fmt.Sprintf("%d", max(limit, s.candidateLimit)))
	fields["with_payload"] = json.RawMessage("true")

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, 0, fmt.Errorf("encode search body: %w", err)
	}
	return out, limit, nil
}

// query sends the search to the datastore and splits the answer into its
// top-level fields and parsed hits.
func (s *SearchService) query(pr *model.ProxyRequest, body []byte) (map[string]json.RawMessage, []*model.Hit, error) {
	header := sanitizeRequestHeaders(pr.Header)
	header.Set("Content-Type", "application/json")
	if key := s.datastore.APIKey(); key != "" && header.Get("Api-Key") == "" {
		header.Set("Api-Key", key)
	}

	url := s.datastore.ForwardURL(pr.Path, pr.RawPath, pr.RawQuery)
	resp, err := s.datastore.DoStream(pr.Ctx, http.MethodPost, url, header, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBackendError))
		return nil, nil, &client.StatusError{
			Backend:    s.datastore.Name(),
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var top map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&top); err != nil {
		return nil, nil, fmt.Errorf("decode search response: %w", err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(top["result"], &raws); err != nil {
		return nil, nil, fmt.Errorf("decode search result: %w", err)
	}

	hits := make([]*model.Hit, len(raws))
	for i, raw := range raws {
		h, err := model.ParseHit(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("hit %d: %w", i, err)
		}
		hits[i] = h
	}
	return top, hits, nil
}

// augment reranks ranked in place. It leaves ranked untouched unless every
// candidate was scored.
func (s *SearchService) augment(ctx context.Context, query string, ranked []candidate) {
	var texts []string
	var idx []int
	for i, c := range ranked {
		if text, ok := candidateText(c.hit.Payload); ok {
			texts = append(texts, text)
			idx = append(idx, i)
		}
	}

	switch {
	case query == "":
		s.outcome(metrics.OutcomeSkipped, "no query context")
		return
	case len(texts) == 0:
		s.outcome(metrics.OutcomeSkipped, "no candidate text")
		return
	case !s.pipeline.Available():
		s.outcome(metrics.OutcomeSkipped, "reranker unavailable")
		return
	}

	ctx, span := tracer.Start(ctx, "search.augment")
	defer span.End()
	span.SetAttributes(attribute.Int("search.hits", len(ranked)), attribute.Int("search.candidates", len(texts)))

	scores, err := s.pipeline.Score(ctx, query, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		aerr := newError(KindAugmentationFailed, "rerank", err)
		s.logger.Warn("augmentation failed, returning datastore order", "err", aerr, "candidates", len(texts))
		if s.metrics != nil {
			s.metrics.Augmentations.WithLabelValues(metrics.OutcomeFailed).Inc()
		}
		return
	}

	for j, i := range idx {
		ranked[i].hit.SetScore(scores[j])
		ranked[i].reranked = true
	}
	sortRanked(ranked)
	s.outcome(metrics.OutcomeApplied, "")
}

func (s *SearchService) outcome(outcome, reason string) {
	if reason != "" {
		s.logger.Debug("augmentation skipped", "reason", reason)
	}
	if s.metrics != nil {
		s.metrics.Augmentations.WithLabelValues(outcome).Inc()
	}
}

// sortRanked puts reranked hits first by new score, then the rest by their
// datastore score. Ties keep datastore order.
func sortRanked(ranked []candidate) {
	slices.SortStableFunc(ranked, func(a, b candidate) int {
		if a.reranked != b.reranked {
			if a.reranked {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.hit.Score, a.hit.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})
}

// candidateText returns the first non-empty string under candidateKeys.
func candidateText(payload map[string]any) (string, bool) {
	for _, k := range candidateKeys {
		if s, ok := payload[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func queryFor(h http.Header, slot *querycontext.Slot) string {
	if q := strings.TrimSpace(h.Get(QueryHeader)); q != "" {
		return q
	}
	q, _ := slot.Load()
	return q
}
