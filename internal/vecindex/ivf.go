// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package vecindex

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/Lari2003/bachelors/internal/embedding"
)

// TermWeight is one nonzero component of a sparse vector, sorted by Term
// within a vector.
type TermWeight struct {
	Term   int
	Weight float32
}

// SparseVector is a sparse unit-normalized vector as sorted term/weight
// pairs. Memory is proportional to nonzeros, not dimension, which keeps
// the TF-IDF index bounded regardless of vocabulary size.
type SparseVector []TermWeight

// SparseDot returns the inner product of two sorted sparse vectors.
func SparseDot(a, b SparseVector) float32 {
	var sum float32
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Term == b[j].Term:
			sum += a[i].Weight * b[j].Weight
			i++
			j++
		case a[i].Term < b[j].Term:
			i++
		default:
			j++
		}
	}
	return sum
}

// IVF is an inverted-file approximate index over sparse vectors. Vectors
// are assigned to their nearest of nlist trained centroids; a query scans
// only the nprobe nearest cells. Training uses a bounded sample so memory
// stays independent of catalog size.
//
// Not safe for concurrent Add; safe for concurrent Search after the last
// Add.
type IVF struct {
	dim       int
	nlist     int
	centroids [][]float32 // dense, dim each
	cells     [][]int     // vector ids per centroid
	vectors   []SparseVector
	trained   bool
}

// NewIVF creates an untrained IVF index for sparse vectors of the given
// dense dimension, partitioned into nlist cells.
func NewIVF(dim, nlist int) (*IVF, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if nlist <= 0 {
		return nil, fmt.Errorf("nlist must be positive, got %d", nlist)
	}
	return &IVF{dim: dim, nlist: nlist}, nil
}

// Trained reports whether Train has completed.
func (x *IVF) Trained() bool {
	return x.trained
}

// Len returns the number of indexed vectors.
func (x *IVF) Len() int {
	return len(x.vectors)
}

// kmeansIterations bounds centroid refinement; assignments stabilize well
// before this on description-scale corpora.
const kmeansIterations = 10

// Train learns nlist centroids from the sample with spherical k-means.
// The sample should be bounded by the caller (train memory is proportional
// to sample size and nlist*dim). Deterministic: seeding uses a fixed
// source.
func (x *IVF) Train(sample []SparseVector) error {
	if len(sample) == 0 {
		return fmt.Errorf("empty training sample")
	}
	nlist := x.nlist
	if nlist > len(sample) {
		nlist = len(sample)
	}

	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic clustering, not cryptography
	perm := rng.Perm(len(sample))

	centroids := make([][]float32, nlist)
	for i := 0; i < nlist; i++ {
		centroids[i] = densify(sample[perm[i]], x.dim)
	}

	assign := make([]int, len(sample))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range sample {
			best := nearestCentroid(v, centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		// Recompute centroids as normalized member means.
		next := make([][]float32, nlist)
		counts := make([]int, nlist)
		for i := range next {
			next[i] = make([]float32, x.dim)
		}
		for i, v := range sample {
			c := assign[i]
			counts[c]++
			for _, tw := range v {
				next[c][tw.Term] += tw.Weight
			}
		}
		for i := range next {
			if counts[i] == 0 {
				// Re-seed empty cells from a random sample member.
				next[i] = densify(sample[perm[(i+1)%len(perm)]], x.dim)
				continue
			}
			embedding.Normalize(next[i])
		}
		centroids = next
	}

	x.centroids = centroids
	x.cells = make([][]int, len(centroids))
	x.trained = true
	return nil
}

// Add assigns vectors to their nearest cell, in order. The index must be
// trained first; insertion batching is the caller's concern.
func (x *IVF) Add(vectors ...SparseVector) error {
	if !x.trained {
		return fmt.Errorf("index not trained")
	}
	for _, v := range vectors {
		id := len(x.vectors)
		x.vectors = append(x.vectors, v)
		cell := nearestCentroid(v, x.centroids)
		x.cells[cell] = append(x.cells[cell], id)
	}
	return nil
}

// Search returns up to k hits from the nprobe cells nearest the query,
// ordered by descending score with insertion order as tie-break.
func (x *IVF) Search(query SparseVector, k, nprobe int) ([]Hit, error) {
	if !x.trained {
		return nil, fmt.Errorf("index not trained")
	}
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	if nprobe <= 0 {
		nprobe = 1
	}
	if nprobe > len(x.centroids) {
		nprobe = len(x.centroids)
	}

	// Rank cells by centroid affinity.
	type cellScore struct {
		cell  int
		score float32
	}
	ranked := make([]cellScore, len(x.centroids))
	for i, c := range x.centroids {
		ranked[i] = cellScore{cell: i, score: sparseDenseDot(query, c)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].cell < ranked[j].cell
	})

	var hits []Hit
	for _, cs := range ranked[:nprobe] {
		for _, id := range x.cells[cs.cell] {
			hits = append(hits, Hit{Row: id, Score: SparseDot(query, x.vectors[id])})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row < hits[j].Row
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// densify expands a sparse vector into dense form.
func densify(v SparseVector, dim int) []float32 {
	out := make([]float32, dim)
	for _, tw := range v {
		out[tw.Term] = tw.Weight
	}
	return out
}

// sparseDenseDot returns the inner product of a sparse and a dense vector.
func sparseDenseDot(a SparseVector, b []float32) float32 {
	var sum float32
	for _, tw := range a {
		sum += tw.Weight * b[tw.Term]
	}
	return sum
}

// nearestCentroid returns the centroid index with the highest affinity,
// lowest index winning ties.
func nearestCentroid(v SparseVector, centroids [][]float32) int {
	best := 0
	bestScore := sparseDenseDot(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if s := sparseDenseDot(v, centroids[i]); s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best
}
