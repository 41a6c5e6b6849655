package ranker

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rerankd/rerankd/internal/reranker/embedding"
	"github.com/rerankd/rerankd/internal/reranker/pruner"
	pkgerrors "github.com/rerankd/rerankd/pkg/errors"
)

var noPrune = pruner.Config{Method: pruner.MethodNone}

// docsFromMatrices builds index-tagged documents in request order.
func docsFromMatrices(matrices ...embedding.Matrix) []Document {
	docs := make([]Document, len(matrices))
	for i, m := range matrices {
		docs[i] = Document{Index: i, Tokens: m}
	}
	return docs
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	q := embedding.Matrix{{1, 0}}
	docs := docsFromMatrices(
		embedding.Matrix{{0.2, 0}},
		embedding.Matrix{{0.9, 0}},
		embedding.Matrix{{0.5, 0}},
	)

	scored, samples, err := New(2).Rank(context.Background(), q, docs, noPrune, -1)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d perf samples, want 3", len(samples))
	}

	wantOrder := []int{1, 2, 0}
	for i, want := range wantOrder {
		if scored[i].Index != want {
			t.Fatalf("position %d has index %d, want %d (scored: %v)", i, scored[i].Index, want, scored)
		}
	}
	for i := 1; i < len(scored); i++ {
		if scored[i].Score > scored[i-1].Score {
			t.Fatalf("scores are not non-increasing: %v", scored)
		}
	}
}

func TestRankEqualScoresTieBreakByIndex(t *testing.T) {
	q := embedding.Matrix{{1, 0}}
	same := embedding.Matrix{{0.5, 0}}
	docs := docsFromMatrices(same, same, same, same)

	// Repeat to give out-of-order worker completion a chance to show up.
	for run := 0; run < 20; run++ {
		scored, _, err := New(4).Rank(context.Background(), q, docs, noPrune, -1)
		if err != nil {
			t.Fatalf("Rank() error: %v", err)
		}
		for i, sd := range scored {
			if sd.Index != i {
				t.Fatalf("run %d: identical docs ranked %v, want ascending index order", run, scored)
			}
		}
	}
}

func TestRankIsPermutationOfSubset(t *testing.T) {
	q := embedding.Matrix{{1, 0}}
	docs := docsFromMatrices(
		embedding.Matrix{{0.1, 0}},
		embedding.Matrix{{0.7, 0}},
		embedding.Matrix{{0.3, 0}},
		embedding.Matrix{{0.5, 0}},
		embedding.Matrix{{0.2, 0}},
	)

	tests := []struct {
		name    string
		topk    int
		wantLen int
	}{
		{"topk negative reports all", -1, 5},
		{"topk zero reports none", 0, 0},
		{"topk below count truncates", 3, 3},
		{"topk equals count", 5, 5},
		{"topk above count reports all", 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scored, samples, err := New(0).Rank(context.Background(), q, docs, noPrune, tt.topk)
			if err != nil {
				t.Fatalf("Rank() error: %v", err)
			}
			if len(scored) != tt.wantLen {
				t.Fatalf("got %d results, want %d", len(scored), tt.wantLen)
			}
			// Every document is scored regardless of truncation.
			if len(samples) != len(docs) {
				t.Fatalf("got %d perf samples, want %d", len(samples), len(docs))
			}
			seen := make(map[int]bool)
			for _, sd := range scored {
				if sd.Index < 0 || sd.Index >= len(docs) {
					t.Fatalf("index %d out of range", sd.Index)
				}
				if seen[sd.Index] {
					t.Fatalf("index %d appears twice in %v", sd.Index, scored)
				}
				seen[sd.Index] = true
			}
		})
	}
}

func TestRankEmptyBatch(t *testing.T) {
	q := embedding.Matrix{{1, 0}}

	scored, samples, err := New(2).Rank(context.Background(), q, nil, noPrune, 10)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}
	if len(scored) != 0 || len(samples) != 0 {
		t.Fatalf("empty batch produced scored=%v samples=%v", scored, samples)
	}
}

func TestRankEmptyDocumentRanksLast(t *testing.T) {
	q := embedding.Matrix{{1, 0}}
	docs := docsFromMatrices(
		embedding.Matrix{},
		embedding.Matrix{{-5, 0}},
	)

	scored, _, err := New(2).Rank(context.Background(), q, docs, noPrune, -1)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}
	if scored[0].Index != 1 || scored[1].Index != 0 {
		t.Fatalf("empty document was not ranked last: %v", scored)
	}
	if !math.IsInf(float64(scored[1].Score), -1) {
		t.Fatalf("empty document score = %v, want -Inf sentinel", scored[1].Score)
	}
}

func TestRankAppliesDocumentPruning(t *testing.T) {
	q := embedding.Matrix{{1, 0}}
	// Token 0 scores 0.9 but has tiny salience; with d_max=1 only token 1
	// (salience 10*1) survives, so the score drops to 0.1.
	doc := Document{
		Index:   0,
		Tokens:  embedding.Matrix{{0.9, 0}, {0.1, 0}},
		Weights: []float32{0.001, 10},
	}
	cfg := pruner.Config{QMax: 10, DMax: 1, Method: pruner.MethodIDFNorm}

	scored, _, err := New(1).Rank(context.Background(), q, []Document{doc}, cfg, -1)
	if err != nil {
		t.Fatalf("Rank() error: %v", err)
	}
	if diff := math.Abs(float64(scored[0].Score) - 0.1); diff > 1e-6 {
		t.Fatalf("pruned score = %v, want 0.1", scored[0].Score)
	}
}

func TestRankComputeFaultFailsBatch(t *testing.T) {
	q := embedding.Matrix{{float32(math.NaN()), 0}}
	docs := docsFromMatrices(
		embedding.Matrix{{1, 0}},
		embedding.Matrix{{0.5, 0}},
	)

	_, _, err := New(2).Rank(context.Background(), q, docs, noPrune, -1)
	if !errors.Is(err, pkgerrors.ErrCompute) {
		t.Fatalf("Rank() err = %v, want %v", err, pkgerrors.ErrCompute)
	}
}

func TestRankCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := embedding.Matrix{{1, 0}}
	docs := docsFromMatrices(
		embedding.Matrix{{1, 0}},
		embedding.Matrix{{0.5, 0}},
	)

	_, _, err := New(1).Rank(ctx, q, docs, noPrune, -1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Rank() on cancelled ctx err = %v, want context.Canceled", err)
	}
}

func TestNewDefaultsToHardwareConcurrency(t *testing.T) {
	if got := New(0).Workers(); got < 1 {
		t.Fatalf("Workers() = %d, want >= 1", got)
	}
	if got := New(3).Workers(); got != 3 {
		t.Fatalf("Workers() = %d, want 3", got)
	}
}
