// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package embedding holds the dense description vectors and the encoder
// port used to embed query text.
//
// The Store is row-aligned with the catalog: row i of the matrix is the
// embedding of catalog row i. The alignment is verified once at startup;
// a mismatch is fatal, never a per-request condition.
package embedding

import (
	"fmt"
	"math"
)

// Store is the immutable embedding matrix. Vectors are stored unit-
// normalized so inner product equals cosine similarity. Safe for
// concurrent reads.
type Store struct {
	dim  int
	data []float32 // rows*dim, row-major
}

// Matrix is the gob-serializable form of a Store, persisted by the dense
// builder and loaded at startup.
type Matrix struct {
	Dim  int
	Data []float32
}

// NewStore builds a store from row vectors, normalizing each row.
// All rows must share the same dimension.
func NewStore(rows [][]float32) (*Store, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty embedding matrix")
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("zero-dimension embedding")
	}

	data := make([]float32, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has dimension %d, want %d", i, len(row), dim)
		}
		v := make([]float32, dim)
		copy(v, row)
		Normalize(v)
		data = append(data, v...)
	}

	return &Store{dim: dim, data: data}, nil
}

// FromMatrix wraps a persisted matrix without copying. The matrix rows are
// assumed already normalized by the builder.
func FromMatrix(m Matrix) (*Store, error) {
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid matrix dimension %d", m.Dim)
	}
	if len(m.Data)%m.Dim != 0 {
		return nil, fmt.Errorf("matrix data length %d not divisible by dimension %d", len(m.Data), m.Dim)
	}
	return &Store{dim: m.Dim, data: m.Data}, nil
}

// ToMatrix returns the serializable form of the store.
func (s *Store) ToMatrix() Matrix {
	return Matrix{Dim: s.dim, Data: s.data}
}

// Rows returns the number of vectors.
func (s *Store) Rows() int {
	return len(s.data) / s.dim
}

// Dim returns the embedding dimension.
func (s *Store) Dim() int {
	return s.dim
}

// Vector returns the vector at row. The caller must not mutate it.
func (s *Store) Vector(row int) []float32 {
	return s.data[row*s.dim : (row+1)*s.dim]
}

// CheckAlignment verifies the store covers exactly rows catalog rows.
// Called once at startup; failure means the process must not serve.
func (s *Store) CheckAlignment(rows int) error {
	if s.Rows() != rows {
		return fmt.Errorf("embedding rows %d do not match catalog rows %d", s.Rows(), rows)
	}
	return nil
}

// Normalize scales v to unit length in place. The zero vector is left
// unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
