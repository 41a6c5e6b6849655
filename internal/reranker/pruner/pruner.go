// Package pruner reduces a token matrix to its highest-salience rows under a
// size budget, so the quadratic MaxSim stage runs on fewer tokens.
package pruner

import (
	"net/http"
	"sort"

	"github.com/rerankd/rerankd/internal/reranker/embedding"
	"github.com/rerankd/rerankd/pkg/errors"
)

// Pruning methods accepted in a request.
const (
	MethodIDFNorm = "idf_norm"
	MethodNone    = "none"
)

// Config governs how many query and document tokens survive pruning.
type Config struct {
	QMax   int    `json:"q_max" yaml:"qMax"`
	DMax   int    `json:"d_max" yaml:"dMax"`
	Method string `json:"method" yaml:"method"`
}

// Validate checks the pruning parameters. Budgets are only constrained when
// a salience method is selected; method "none" ignores them entirely.
func (c Config) Validate() error {
	switch c.Method {
	case MethodNone:
		return nil
	case MethodIDFNorm:
		if c.QMax <= 0 {
			return errors.Newf(errors.ErrConfig, http.StatusBadRequest,
				"prune.q_max must be positive when method is %q, got %d", c.Method, c.QMax)
		}
		if c.DMax <= 0 {
			return errors.Newf(errors.ErrConfig, http.StatusBadRequest,
				"prune.d_max must be positive when method is %q, got %d", c.Method, c.DMax)
		}
		return nil
	default:
		return errors.Newf(errors.ErrConfig, http.StatusBadRequest,
			"unknown prune method %q (want %q or %q)", c.Method, MethodIDFNorm, MethodNone)
	}
}

// Prune returns the max highest-salience rows of tokens, in their original
// relative order. Salience for MethodIDFNorm is weight[i] * ||token[i]||;
// ties break toward the lower original index. MethodNone and budgets at or
// above the row count return the input unchanged.
func Prune(tokens embedding.Matrix, weights []float32, max int, method string) (embedding.Matrix, error) {
	if method == MethodNone {
		return tokens, nil
	}
	if len(weights) != len(tokens) {
		if weights == nil {
			return nil, errors.New(errors.ErrConfig, http.StatusBadRequest,
				"salience weights are required when prune method is "+MethodIDFNorm)
		}
		return nil, errors.Newf(errors.ErrShape, http.StatusBadRequest,
			"salience weights length %d does not match token count %d", len(weights), len(tokens))
	}
	if max >= len(tokens) {
		return tokens, nil
	}

	type rowSalience struct {
		index    int
		salience float32
	}
	rows := make([]rowSalience, len(tokens))
	for i, tok := range tokens {
		rows[i] = rowSalience{index: i, salience: weights[i] * embedding.Norm(tok)}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].salience != rows[j].salience {
			return rows[i].salience > rows[j].salience
		}
		return rows[i].index < rows[j].index
	})

	keep := make([]bool, len(tokens))
	for _, r := range rows[:max] {
		keep[r.index] = true
	}
	pruned := make(embedding.Matrix, 0, max)
	for i, tok := range tokens {
		if keep[i] {
			pruned = append(pruned, tok)
		}
	}
	return pruned, nil
}
