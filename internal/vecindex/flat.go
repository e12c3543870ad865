// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package vecindex provides the similarity index structures: an exact flat
// inner-product index (global and per-request subset flavors) and a sparse
// IVF approximate index used by the TF-IDF builder.
//
// All vectors are expected unit-normalized, so inner product equals cosine
// similarity. Search results are ordered by descending score with row
// order as the deterministic tie-break.
package vecindex

import (
	"fmt"
	"sort"

	"github.com/Lari2003/bachelors/internal/embedding"
)

// Hit is one search result: the index of the matched vector and its
// inner-product score.
type Hit struct {
	Row   int
	Score float32
}

// Flat is an exact inner-product index. Zero value is empty and usable.
// Immutable after the last Add; safe for concurrent Search.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat creates an empty flat index for vectors of the given dimension.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// FlatState is the gob-serializable form of a Flat index.
type FlatState struct {
	Dim  int
	Data []float32
}

// FromState restores a flat index from its persisted state.
func FromState(st FlatState) (*Flat, error) {
	if st.Dim <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", st.Dim)
	}
	if len(st.Data)%st.Dim != 0 {
		return nil, fmt.Errorf("index data length %d not divisible by dimension %d", len(st.Data), st.Dim)
	}
	return &Flat{dim: st.Dim, data: st.Data}, nil
}

// State returns the serializable form of the index.
func (f *Flat) State() FlatState {
	return FlatState{Dim: f.dim, Data: f.data}
}

// Add appends vectors to the index in order.
func (f *Flat) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector dimension %d, want %d", len(v), f.dim)
		}
		f.data = append(f.data, v...)
	}
	return nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int {
	return f.dim
}

// Search returns up to k hits ordered by descending inner-product score.
// Ties break by ascending row so identical inputs rank identically.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), f.dim)
	}
	n := f.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	hits := make([]Hit, n)
	for row := 0; row < n; row++ {
		vec := f.data[row*f.dim : (row+1)*f.dim]
		hits[row] = Hit{Row: row, Score: embedding.Dot(query, vec)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row < hits[j].Row
	})

	return hits[:k], nil
}

// NewFlatFromStore builds the global flat index over every row of the
// embedding store.
func NewFlatFromStore(store *embedding.Store) (*Flat, error) {
	f, err := NewFlat(store.Dim())
	if err != nil {
		return nil, err
	}
	for row := 0; row < store.Rows(); row++ {
		if err := f.Add(store.Vector(row)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Subset is an ephemeral flat index over a chosen set of store rows,
// built per request and discarded afterwards. Search results are mapped
// back to the original store rows. Build cost is proportional to the
// subset size.
type Subset struct {
	flat *Flat
	rows []int
}

// NewSubset builds an index containing exactly the given store rows, in
// order.
func NewSubset(store *embedding.Store, rows []int) (*Subset, error) {
	f, err := NewFlat(store.Dim())
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row < 0 || row >= store.Rows() {
			return nil, fmt.Errorf("row %d out of range (0..%d)", row, store.Rows()-1)
		}
		if err := f.Add(store.Vector(row)); err != nil {
			return nil, err
		}
	}
	kept := make([]int, len(rows))
	copy(kept, rows)
	return &Subset{flat: f, rows: kept}, nil
}

// Len returns the number of indexed rows.
func (s *Subset) Len() int {
	return s.flat.Len()
}

// Search returns up to k hits with Row set to the original store row.
func (s *Subset) Search(query []float32, k int) ([]Hit, error) {
	hits, err := s.flat.Search(query, k)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Row = s.rows[hits[i].Row]
	}
	return hits, nil
}
