// Package perf reduces per-document scoring latency samples to the p50/p95
// stats reported with every rerank response.
package perf

import (
	"math"
	"sort"
)

// Stats is the latency summary included in rerank and bench responses.
// Samples is the number of scoring operations measured, which also serves
// as a contract check that every document was scored regardless of topk.
type Stats struct {
	PerDocMsP50 float64 `json:"per_doc_ms_p50"`
	PerDocMsP95 float64 `json:"per_doc_ms_p95"`
	Samples     int     `json:"samples"`
}

// Summarize computes nearest-rank percentiles over the sample set, in
// milliseconds. Zero samples yields zero percentiles rather than NaN.
// Nearest-rank is used instead of interpolation so outputs stay comparable
// across implementations for regression testing.
func Summarize(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return Stats{
		PerDocMsP50: percentile(sorted, 50),
		PerDocMsP95: percentile(sorted, 95),
		Samples:     len(sorted),
	}
}

// percentile returns the nearest-rank percentile of an ascending-sorted,
// non-empty sample set: the value at rank ceil(p/100 * n).
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
