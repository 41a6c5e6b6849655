// Package embedding defines the token matrix representation shared by the
// pruning and scoring stages, plus the float32 vector primitives they use.
package embedding

import "math"

// Matrix is an ordered sequence of token embedding vectors. Row order is
// token order; every row in a valid matrix has the same dimension.
type Matrix [][]float32

// Rows returns the number of token vectors in the matrix.
func (m Matrix) Rows() int {
	return len(m)
}

// Dim returns the embedding dimension, or 0 for an empty matrix.
func (m Matrix) Dim() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Dot computes the inner product of two vectors of equal length. The
// accumulator stays in float32 so a score computed from float32 inputs is
// reproducible across runs.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm computes the L2 norm of a vector.
func Norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}
