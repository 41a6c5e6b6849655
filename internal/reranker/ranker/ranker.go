// Package ranker fans MaxSim scoring out across a bounded worker pool and
// produces a deterministic ranking from the completed score set.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rerankd/rerankd/internal/reranker/embedding"
	"github.com/rerankd/rerankd/internal/reranker/pruner"
	"github.com/rerankd/rerankd/internal/reranker/scorer"
)

// Document is one candidate to score, tagged with its original position in
// the request. Weights are the per-token salience inputs, present only when
// the request uses salience-based pruning.
type Document struct {
	Index   int
	Tokens  embedding.Matrix
	Weights []float32
}

// ScoredDoc is the immutable scoring outcome for a single document.
type ScoredDoc struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Ranker owns the process-wide scoring pool. The pool is sized once at
// startup and shared by all requests; it is the only cross-request resource
// in the service.
type Ranker struct {
	pool    *semaphore.Weighted
	workers int
	logger  *slog.Logger
}

// New creates a Ranker with the given worker count. Zero or negative sizes
// the pool to the available hardware concurrency.
func New(workers int) *Ranker {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Ranker{
		pool:    semaphore.NewWeighted(int64(workers)),
		workers: workers,
		logger:  slog.Default().With("component", "batch-ranker"),
	}
}

// Workers returns the pool size.
func (r *Ranker) Workers() int {
	return r.workers
}

// Rank prunes and scores every document against the already-pruned query,
// then orders the results by score descending with ties broken by ascending
// original index, truncated to topk entries. topk == 0 reports no documents
// while still scoring all of them (a perf-only request); a negative topk or
// one beyond the document count reports all. The second return value is
// the per-document scoring latency sample set in milliseconds, measured
// around the MaxSim call only; its length always equals the document count.
//
// Workers complete out of order, so each result is written to its arrival
// slot and the final order comes from the explicit comparator, never from
// completion order. Cancelling ctx stops queued documents from acquiring
// pool capacity; any error fails the whole batch rather than dropping the
// document silently.
func (r *Ranker) Rank(ctx context.Context, q embedding.Matrix, docs []Document, cfg pruner.Config, topk int) ([]ScoredDoc, []float64, error) {
	scored := make([]ScoredDoc, len(docs))
	samples := make([]float64, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := r.pool.Acquire(gctx, 1); err != nil {
				return err
			}
			defer r.pool.Release(1)

			pruned, err := pruner.Prune(doc.Tokens, doc.Weights, cfg.DMax, cfg.Method)
			if err != nil {
				return fmt.Errorf("pruning document %d: %w", doc.Index, err)
			}

			start := time.Now()
			score, err := scorer.Score(q, pruned)
			elapsed := time.Since(start)
			if err != nil {
				return fmt.Errorf("scoring document %d: %w", doc.Index, err)
			}

			scored[i] = ScoredDoc{Index: doc.Index, Score: score}
			samples[i] = float64(elapsed.Nanoseconds()) / 1e6
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Index < scored[j].Index
	})

	r.logger.Debug("batch scored",
		"docs", len(docs),
		"topk", topk,
		"workers", r.workers,
	)

	switch {
	case topk == 0:
		scored = scored[:0]
	case topk > 0 && topk < len(scored):
		scored = scored[:topk]
	}
	return scored, samples, nil
}
