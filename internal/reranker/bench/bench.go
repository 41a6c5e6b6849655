// Package bench generates synthetic token matrices of configurable shape
// and runs them through the regular rerank pipeline, so the scoring path
// can be performance-tested without the external search and embedding
// collaborators.
package bench

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rerankd/rerankd/internal/reranker/perf"
	"github.com/rerankd/rerankd/internal/reranker/pruner"
	"github.com/rerankd/rerankd/internal/reranker/service"
	"github.com/rerankd/rerankd/pkg/errors"
)

// Params describes the synthetic workload shape. Seed makes the generated
// matrices reproducible; the same seed always produces the same request.
type Params struct {
	NDocs        int           `json:"n_docs"`
	TokensPerDoc int           `json:"tokens_per_doc"`
	Dim          int           `json:"dim"`
	Prune        pruner.Config `json:"prune"`
	Seed         int64         `json:"seed"`
}

// Result reports the workload shape, the pipeline perf stats, and the
// matrix generation cost separately so generation time is never mistaken
// for scoring time.
type Result struct {
	NDocs        int        `json:"n_docs"`
	TokensPerDoc int        `json:"tokens_per_doc"`
	Dim          int        `json:"dim"`
	Perf         perf.Stats `json:"perf"`
	GenMs        float64    `json:"gen_ms"`
	Workers      int        `json:"workers"`
}

// Harness drives the service with generated workloads.
type Harness struct {
	svc     *service.Service
	workers int
	logger  *slog.Logger
}

func New(svc *service.Service, workers int) *Harness {
	return &Harness{
		svc:     svc,
		workers: workers,
		logger:  slog.Default().With("component", "bench-harness"),
	}
}

// Run generates a workload and pushes it through the rerank pipeline.
func (h *Harness) Run(ctx context.Context, p Params) (*Result, error) {
	if p.NDocs <= 0 || p.TokensPerDoc <= 0 || p.Dim <= 0 {
		return nil, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"bench shape must be positive: n_docs=%d tokens_per_doc=%d dim=%d",
			p.NDocs, p.TokensPerDoc, p.Dim)
	}
	if err := p.Prune.Validate(); err != nil {
		return nil, err
	}

	genStart := time.Now()
	req := h.generate(p)
	genMs := float64(time.Since(genStart).Nanoseconds()) / 1e6

	res, err := h.svc.Rerank(ctx, req)
	if err != nil {
		return nil, err
	}

	h.logger.Info("bench completed",
		"n_docs", p.NDocs,
		"tokens_per_doc", p.TokensPerDoc,
		"dim", p.Dim,
		"prune_method", p.Prune.Method,
		"seed", p.Seed,
		"gen_ms", genMs,
		"per_doc_ms_p50", res.Perf.PerDocMsP50,
		"per_doc_ms_p95", res.Perf.PerDocMsP95,
	)

	return &Result{
		NDocs:        p.NDocs,
		TokensPerDoc: p.TokensPerDoc,
		Dim:          p.Dim,
		Perf:         res.Perf,
		GenMs:        genMs,
		Workers:      h.workers,
	}, nil
}

// generate builds a seeded request of unit-norm token vectors. Salience
// weights are uniform in [0,1) and only attached when the prune method
// needs them.
func (h *Harness) generate(p Params) *service.Request {
	rng := rand.New(rand.NewSource(p.Seed))
	salience := p.Prune.Method != pruner.MethodNone

	req := &service.Request{
		QTokens: unitMatrix(rng, p.TokensPerDoc, p.Dim),
		DTokens: make([][][]float32, p.NDocs),
		TopK:    p.NDocs,
		Prune:   p.Prune,
	}
	if salience {
		req.QWeights = weightVector(rng, p.TokensPerDoc)
		req.DWeights = make([][]float32, p.NDocs)
	}
	for i := range req.DTokens {
		req.DTokens[i] = unitMatrix(rng, p.TokensPerDoc, p.Dim)
		if salience {
			req.DWeights[i] = weightVector(rng, p.TokensPerDoc)
		}
	}
	return req
}

func unitMatrix(rng *rand.Rand, rows, dim int) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		v := make([]float32, dim)
		var sumSq float64
		for j := range v {
			v[j] = rng.Float32()*2 - 1
			sumSq += float64(v[j]) * float64(v[j])
		}
		if sumSq > 0 {
			inv := float32(1 / math.Sqrt(sumSq))
			for j := range v {
				v[j] *= inv
			}
		}
		m[i] = v
	}
	return m
}

func weightVector(rng *rand.Rand, n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = rng.Float32()
	}
	return w
}
