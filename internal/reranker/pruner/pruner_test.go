package pruner

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rerankd/rerankd/internal/reranker/embedding"
	pkgerrors "github.com/rerankd/rerankd/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		sentinel error
	}{
		{"none ignores budgets", Config{Method: MethodNone}, nil},
		{"none with negative budgets", Config{QMax: -1, DMax: 0, Method: MethodNone}, nil},
		{"idf_norm valid", Config{QMax: 16, DMax: 64, Method: MethodIDFNorm}, nil},
		{"idf_norm zero q_max", Config{QMax: 0, DMax: 64, Method: MethodIDFNorm}, pkgerrors.ErrConfig},
		{"idf_norm negative d_max", Config{QMax: 16, DMax: -1, Method: MethodIDFNorm}, pkgerrors.ErrConfig},
		{"unknown method", Config{QMax: 16, DMax: 64, Method: "tfidf"}, pkgerrors.ErrConfig},
		{"empty method", Config{QMax: 16, DMax: 64, Method: ""}, pkgerrors.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.sentinel == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("Validate() = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestPruneSelectsHighestSalience(t *testing.T) {
	// Salience = weight * norm: row0 = 1*1 = 1, row1 = 3*2 = 6, row2 = 2*2 = 4.
	tokens := embedding.Matrix{
		{1, 0},
		{0, 2},
		{2, 0},
	}
	weights := []float32{1, 3, 2}

	pruned, err := Prune(tokens, weights, 2, MethodIDFNorm)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	// Rows 1 and 2 survive, in original relative order.
	want := embedding.Matrix{{0, 2}, {2, 0}}
	if !reflect.DeepEqual(pruned, want) {
		t.Fatalf("Prune() = %v, want %v", pruned, want)
	}
}

func TestPruneTieBreaksByIndex(t *testing.T) {
	// All rows have identical salience; the lowest indices must win.
	tokens := embedding.Matrix{
		{1, 0},
		{0, 1},
		{1, 0},
		{0, 1},
	}
	weights := []float32{1, 1, 1, 1}

	pruned, err := Prune(tokens, weights, 2, MethodIDFNorm)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	want := embedding.Matrix{{1, 0}, {0, 1}}
	if !reflect.DeepEqual(pruned, want) {
		t.Fatalf("Prune() = %v, want first two rows %v", pruned, want)
	}
}

func TestPruneBudgetAtOrAboveSizeIsIdentity(t *testing.T) {
	tokens := embedding.Matrix{{3, 0}, {1, 0}, {2, 0}}
	weights := []float32{1, 1, 1}

	for _, max := range []int{3, 4, 100} {
		pruned, err := Prune(tokens, weights, max, MethodIDFNorm)
		if err != nil {
			t.Fatalf("Prune(max=%d) error: %v", max, err)
		}
		if !reflect.DeepEqual(pruned, tokens) {
			t.Fatalf("Prune(max=%d) = %v, want input unchanged", max, pruned)
		}
	}
}

func TestPruneIdempotent(t *testing.T) {
	tokens := embedding.Matrix{{5, 0}, {1, 0}, {4, 0}, {2, 0}}
	weights := []float32{1, 1, 1, 1}

	once, err := Prune(tokens, weights, 2, MethodIDFNorm)
	if err != nil {
		t.Fatalf("first Prune() error: %v", err)
	}
	// Weights parallel to the surviving rows.
	twice, err := Prune(once, []float32{1, 1}, 2, MethodIDFNorm)
	if err != nil {
		t.Fatalf("second Prune() error: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("pruning a pruned matrix changed it: %v -> %v", once, twice)
	}

	larger, err := Prune(once, []float32{1, 1}, 10, MethodIDFNorm)
	if err != nil {
		t.Fatalf("larger-budget Prune() error: %v", err)
	}
	if !reflect.DeepEqual(once, larger) {
		t.Fatalf("larger budget changed a pruned matrix: %v -> %v", once, larger)
	}
}

func TestPruneMethodNoneIsIdentity(t *testing.T) {
	tokens := embedding.Matrix{{1, 2}, {3, 4}, {5, 6}}

	pruned, err := Prune(tokens, nil, 1, MethodNone)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if !reflect.DeepEqual(pruned, tokens) {
		t.Fatalf("method none modified the matrix: %v", pruned)
	}
}

func TestPruneWeightErrors(t *testing.T) {
	tokens := embedding.Matrix{{1, 0}, {0, 1}, {1, 1}}

	if _, err := Prune(tokens, nil, 2, MethodIDFNorm); !errors.Is(err, pkgerrors.ErrConfig) {
		t.Fatalf("missing weights: err = %v, want %v", err, pkgerrors.ErrConfig)
	}
	if _, err := Prune(tokens, []float32{1, 2}, 2, MethodIDFNorm); !errors.Is(err, pkgerrors.ErrShape) {
		t.Fatalf("mismatched weights: err = %v, want %v", err, pkgerrors.ErrShape)
	}
}

func TestPruneEmptyMatrix(t *testing.T) {
	pruned, err := Prune(embedding.Matrix{}, nil, 4, MethodIDFNorm)
	if err != nil {
		t.Fatalf("Prune() on empty matrix error: %v", err)
	}
	if len(pruned) != 0 {
		t.Fatalf("Prune() on empty matrix = %v, want empty", pruned)
	}
}
