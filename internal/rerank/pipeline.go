// Package rerank scores search candidates against a query using the inference
// engine's reranker, in fixed-size batches on a bounded worker pool.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"vectorgate/internal/client"
	"vectorgate/internal/config"
	"vectorgate/internal/metrics"
)

// ErrInvalidScores is returned when the reranker's answer does not contain
// exactly one score per submitted text.
var ErrInvalidScores = errors.New("rerank: invalid scores")

var tracer = otel.Tracer("vectorgate/rerank")

// Scorer is the reranking capability of the inference engine.
type Scorer interface {
	Rerank(ctx context.Context, query string, documents []string) ([]client.RerankResult, error)
	Available() bool
}

// Pipeline batches candidates and scores them. The worker pool is shared by
// all requests and caps simultaneous rerank calls to the inference engine.
type Pipeline struct {
	scorer    Scorer
	batchSize int
	workers   int
	pool      *semaphore.Weighted
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewPipeline creates a Pipeline. The metrics parameter is optional.
func NewPipeline(scorer Scorer, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	workers := max(cfg.Rerank.Workers, 1)
	return &Pipeline{
		scorer:    scorer,
		batchSize: cfg.Rerank.BatchSize,
		workers:   workers,
		pool:      semaphore.NewWeighted(int64(workers)),
		logger:    logger.With("component", "rerank_pipeline"),
		metrics:   m,
	}
}

// Available reports whether the reranker can be used at all.
func (p *Pipeline) Available() bool {
	return p.scorer != nil && p.scorer.Available()
}

// Score returns one relevance score per text, aligned with texts.
//
// Batches are issued in order and each result is written at its batch offset,
// so the output never depends on completion order. The call is all-or-nothing:
// the first failing batch cancels the rest and its error is returned alone.
func (p *Pipeline) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	batches := Split(texts, p.batchSize)
	if len(batches) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, b := range batches {
		g.Go(func() error {
			s, err := p.scoreBatch(gctx, query, b)
			if err != nil {
				return fmt.Errorf("batch %d (offset %d): %w", i, b.Offset, err)
			}
			copy(scores[b.Offset:], s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (p *Pipeline) scoreBatch(ctx context.Context, query string, b Batch) ([]float64, error) {
	ctx, span := tracer.Start(ctx, "rerank.batch", trace.WithAttributes(
		attribute.Int("rerank.offset", b.Offset),
		attribute.Int("rerank.size", len(b.Texts)),
	))
	defer span.End()

	start := time.Now()
	scores, err := p.runBatch(ctx, query, b)
	if p.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.metrics.RerankBatches.WithLabelValues(result).Inc()
		p.metrics.RerankBatchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return scores, nil
}

func (p *Pipeline) runBatch(ctx context.Context, query string, b Batch) ([]float64, error) {
	if err := p.pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for rerank worker: %w", err)
	}
	defer p.pool.Release(1)

	results, err := p.scorer.Rerank(ctx, query, b.Texts)
	if err != nil {
		return nil, err
	}
	return alignScores(results, len(b.Texts))
}

// alignScores maps index-tagged results back to input order.
func alignScores(results []client.RerankResult, n int) ([]float64, error) {
	if len(results) != n {
		return nil, fmt.Errorf("%w: got %d results for %d documents", ErrInvalidScores, len(results), n)
	}
	scores := make([]float64, n)
	seen := make([]bool, n)
	for _, r := range results {
		if r.Index < 0 || r.Index >= n || seen[r.Index] {
			return nil, fmt.Errorf("%w: out of range or duplicate index %d", ErrInvalidScores, r.Index)
		}
		if math.IsNaN(r.RelevanceScore) || math.IsInf(r.RelevanceScore, 0) {
			return nil, fmt.Errorf("%w: non-finite score at index %d", ErrInvalidScores, r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
