package embedding

import (
	"math"
	"testing"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"aligned", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"negative", []float32{1, -1}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dot(tt.a, tt.b); got != tt.want {
				t.Fatalf("Dot() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNorm(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
		want float32
	}{
		{"unit", []float32{1, 0, 0}, 1},
		{"pythagorean", []float32{3, 4}, 5},
		{"zero", []float32{0, 0}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Norm(tt.v)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Fatalf("Norm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatrixShape(t *testing.T) {
	m := Matrix{{1, 2, 3}, {4, 5, 6}}
	if m.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", m.Rows())
	}
	if m.Dim() != 3 {
		t.Fatalf("Dim() = %d, want 3", m.Dim())
	}

	var empty Matrix
	if empty.Rows() != 0 || empty.Dim() != 0 {
		t.Fatalf("empty matrix shape = %d x %d, want 0 x 0", empty.Rows(), empty.Dim())
	}
}
