// Package scorer implements late-interaction MaxSim scoring: per query
// token, the maximum dot product against any document token, summed over
// the query. This is the dominant cost of the service, O(tq*td*d) per
// document.
package scorer

import (
	"math"
	"net/http"

	"github.com/rerankd/rerankd/internal/reranker/embedding"
	"github.com/rerankd/rerankd/pkg/errors"
)

// EmptyDocScore is the sentinel for a document with no tokens after
// pruning. It compares below every finite score, so an empty document is
// never ranked ahead of a non-empty one.
var EmptyDocScore = float32(math.Inf(-1))

// Score computes the MaxSim relevance of document tokens d against query
// tokens q. Both matrices must share the same embedding dimension; the
// service boundary validates that before scoring. The row maxima are folded
// incrementally, so the tq x td similarity matrix is never materialized,
// and every intermediate stays float32 for reproducibility.
//
// An empty document yields EmptyDocScore. A NaN result is surfaced as a
// compute fault rather than silently corrupting the ranking.
func Score(q, d embedding.Matrix) (float32, error) {
	if d.Rows() == 0 {
		return EmptyDocScore, nil
	}

	var total float32
	for _, qTok := range q {
		// Seeding the running max from the first dot product (rather than
		// -Inf) lets a NaN propagate into the total instead of being
		// discarded by the comparison below.
		maxDot := embedding.Dot(qTok, d[0])
		for _, dTok := range d[1:] {
			if dot := embedding.Dot(qTok, dTok); dot > maxDot {
				maxDot = dot
			}
		}
		total += maxDot
	}

	if t := float64(total); math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, errors.Newf(errors.ErrCompute, http.StatusInternalServerError,
			"maxsim score is not finite (%g); input embeddings contain non-finite or overflowing values", total)
	}
	return total, nil
}
