// Package service is the request/response boundary of the reranking engine.
// It validates input shape once, drives pruning, batch scoring, and latency
// aggregation, and assembles the response. Validation failures reject the
// whole request before any computation; partial results are never returned.
package service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rerankd/rerankd/internal/reranker/perf"
	"github.com/rerankd/rerankd/internal/reranker/pruner"
	"github.com/rerankd/rerankd/internal/reranker/ranker"
	"github.com/rerankd/rerankd/pkg/errors"
)

// Request is the rerank operation input. QWeights and DWeights are the
// externally computed per-token salience signals (e.g. inverse document
// frequency); they are required input fields when prune.method is
// "idf_norm" and ignored otherwise.
type Request struct {
	QTokens  [][]float32   `json:"q_tokens"`
	QWeights []float32     `json:"q_weights,omitempty"`
	DTokens  [][][]float32 `json:"d_tokens"`
	DWeights [][]float32   `json:"d_weights,omitempty"`
	TopK     int           `json:"topk"`
	Prune    pruner.Config `json:"prune"`
}

// Result is the rerank operation output. Order is a permutation of a subset
// of original document indices, Scores is parallel to Order, and both hold
// at most topk entries.
type Result struct {
	Order  []int      `json:"order"`
	Scores []float32  `json:"scores"`
	Perf   perf.Stats `json:"perf"`
}

// Limits are serving-layer request caps, applied before any computation.
// Zero values disable the corresponding cap.
type Limits struct {
	MaxDocs        int
	MaxQueryTokens int
}

// Service orchestrates the rerank pipeline. It holds no per-request state;
// the ranker's worker pool is the only shared resource.
type Service struct {
	ranker *ranker.Ranker
	limits Limits
	logger *slog.Logger
}

func New(r *ranker.Ranker, limits Limits) *Service {
	return &Service{
		ranker: r,
		limits: limits,
		logger: slog.Default().With("component", "rerank-service"),
	}
}

// Rerank validates the request, prunes the query once, scores every
// document in parallel, and returns the deterministic ranking with latency
// percentiles. An empty document list is valid and yields an empty result
// with zeroed percentiles.
func (s *Service) Rerank(ctx context.Context, req *Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	prunedQ, err := pruner.Prune(req.QTokens, req.QWeights, req.Prune.QMax, req.Prune.Method)
	if err != nil {
		return nil, err
	}

	docs := make([]ranker.Document, len(req.DTokens))
	for i, tokens := range req.DTokens {
		docs[i] = ranker.Document{Index: i, Tokens: tokens}
		if req.Prune.Method != pruner.MethodNone {
			docs[i].Weights = req.DWeights[i]
		}
	}

	scored, samples, err := s.ranker.Rank(ctx, prunedQ, docs, req.Prune, req.TopK)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Order:  make([]int, len(scored)),
		Scores: make([]float32, len(scored)),
		Perf:   perf.Summarize(samples),
	}
	for i, sd := range scored {
		result.Order[i] = sd.Index
		result.Scores[i] = sd.Score
	}

	s.logger.Info("rerank completed",
		"q_tokens_in", len(req.QTokens),
		"q_tokens_kept", len(prunedQ),
		"docs_scored", len(req.DTokens),
		"returned", len(result.Order),
		"topk", req.TopK,
		"prune_method", req.Prune.Method,
		"per_doc_ms_p50", result.Perf.PerDocMsP50,
		"per_doc_ms_p95", result.Perf.PerDocMsP95,
	)
	return result, nil
}

// validate checks pruning parameters, serving limits, dimensional
// consistency across every token in the request, and salience weight
// presence. Each failure names the violated constraint.
func (s *Service) validate(req *Request) error {
	if err := req.Prune.Validate(); err != nil {
		return err
	}
	if s.limits.MaxDocs > 0 && len(req.DTokens) > s.limits.MaxDocs {
		return errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"request has %d documents, limit is %d", len(req.DTokens), s.limits.MaxDocs)
	}
	if s.limits.MaxQueryTokens > 0 && len(req.QTokens) > s.limits.MaxQueryTokens {
		return errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"query has %d tokens, limit is %d", len(req.QTokens), s.limits.MaxQueryTokens)
	}

	if len(req.QTokens) == 0 {
		return errors.New(errors.ErrShape, http.StatusBadRequest,
			"q_tokens must contain at least one token vector")
	}
	dim := len(req.QTokens[0])
	if dim == 0 {
		return errors.New(errors.ErrShape, http.StatusBadRequest,
			"q_tokens[0] has dimension 0")
	}
	for i, tok := range req.QTokens {
		if len(tok) != dim {
			return errors.Newf(errors.ErrShape, http.StatusBadRequest,
				"q_tokens[%d] has dimension %d, expected %d", i, len(tok), dim)
		}
	}
	for di, doc := range req.DTokens {
		for ti, tok := range doc {
			if len(tok) != dim {
				return errors.Newf(errors.ErrShape, http.StatusBadRequest,
					"d_tokens[%d][%d] has dimension %d, expected %d", di, ti, len(tok), dim)
			}
		}
	}

	if req.Prune.Method == pruner.MethodNone {
		return nil
	}
	if req.QWeights == nil {
		return errors.New(errors.ErrConfig, http.StatusBadRequest,
			"q_weights is required when prune.method is "+pruner.MethodIDFNorm)
	}
	if len(req.QWeights) != len(req.QTokens) {
		return errors.Newf(errors.ErrShape, http.StatusBadRequest,
			"q_weights has length %d, expected %d", len(req.QWeights), len(req.QTokens))
	}
	if req.DWeights == nil && len(req.DTokens) > 0 {
		return errors.New(errors.ErrConfig, http.StatusBadRequest,
			"d_weights is required when prune.method is "+pruner.MethodIDFNorm)
	}
	if len(req.DWeights) != len(req.DTokens) {
		return errors.Newf(errors.ErrShape, http.StatusBadRequest,
			"d_weights has length %d, expected %d", len(req.DWeights), len(req.DTokens))
	}
	for i, w := range req.DWeights {
		if len(w) != len(req.DTokens[i]) {
			return errors.Newf(errors.ErrShape, http.StatusBadRequest,
				"d_weights[%d] has length %d, expected %d", i, len(w), len(req.DTokens[i]))
		}
	}
	for i, w := range req.QWeights {
		if w < 0 {
			return errors.Newf(errors.ErrConfig, http.StatusBadRequest,
				"q_weights[%d] is negative (%g); salience weights must be non-negative", i, w)
		}
	}
	for di, ws := range req.DWeights {
		for ti, w := range ws {
			if w < 0 {
				return errors.Newf(errors.ErrConfig, http.StatusBadRequest,
					"d_weights[%d][%d] is negative (%g); salience weights must be non-negative", di, ti, w)
			}
		}
	}
	return nil
}
