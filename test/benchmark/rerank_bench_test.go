// Package benchmark contains Go benchmarks for the scoring kernel, token
// pruning, and the full rerank pipeline, measuring throughput and allocation
// behaviour across workload shapes.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/rerankd/rerankd/internal/reranker/pruner"
	"github.com/rerankd/rerankd/internal/reranker/ranker"
	"github.com/rerankd/rerankd/internal/reranker/scorer"
	"github.com/rerankd/rerankd/internal/reranker/service"
)

func randomMatrix(rng *rand.Rand, rows, dim int) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		m[i] = v
	}
	return m
}

func randomWeights(rng *rand.Rand, n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = rng.Float32()
	}
	return w
}

// BenchmarkScore measures the late-interaction kernel at various document
// lengths with a 32-token, 128-dim query.
func BenchmarkScore(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	q := randomMatrix(rng, 32, 128)
	for _, docTokens := range []int{16, 64, 256} {
		b.Run(fmt.Sprintf("doc_tokens_%d", docTokens), func(b *testing.B) {
			d := randomMatrix(rng, docTokens, 128)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := scorer.Score(q, d); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkPrune measures salience pruning at various keep ratios over a
// 256-token matrix.
func BenchmarkPrune(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	tokens := randomMatrix(rng, 256, 128)
	weights := randomWeights(rng, 256)
	for _, keep := range []int{16, 64, 128} {
		b.Run(fmt.Sprintf("keep_%d", keep), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := pruner.Prune(tokens, weights, keep, pruner.MethodIDFNorm); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRank measures parallel batch ranking throughput at various batch
// sizes.
func BenchmarkRank(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	q := randomMatrix(rng, 32, 128)
	noPrune := pruner.Config{Method: pruner.MethodNone}
	for _, nDocs := range []int{10, 100, 500} {
		b.Run(fmt.Sprintf("docs_%d", nDocs), func(b *testing.B) {
			docs := make([]ranker.Document, nDocs)
			for i := range docs {
				docs[i] = ranker.Document{Index: i, Tokens: randomMatrix(rng, 64, 128)}
			}
			r := ranker.New(0)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := r.Rank(context.Background(), q, docs, noPrune, nDocs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRerankPipeline measures the full request path including
// validation, query pruning, and percentile aggregation, with and without
// document pruning.
func BenchmarkRerankPipeline(b *testing.B) {
	rng := rand.New(rand.NewSource(4))
	nDocs, docTokens, dim := 100, 64, 128

	dTokens := make([][][]float32, nDocs)
	dWeights := make([][]float32, nDocs)
	for i := range dTokens {
		dTokens[i] = randomMatrix(rng, docTokens, dim)
		dWeights[i] = randomWeights(rng, docTokens)
	}
	svc := service.New(ranker.New(0), service.Limits{})

	cases := []struct {
		name  string
		prune pruner.Config
	}{
		{"prune_none", pruner.Config{Method: pruner.MethodNone}},
		{"prune_16_32", pruner.Config{QMax: 16, DMax: 32, Method: pruner.MethodIDFNorm}},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			req := &service.Request{
				QTokens: randomMatrix(rng, 32, dim),
				DTokens: dTokens,
				TopK:    10,
				Prune:   tc.prune,
			}
			if tc.prune.Method != pruner.MethodNone {
				req.QWeights = randomWeights(rng, 32)
				req.DWeights = dWeights
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := svc.Rerank(context.Background(), req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
