// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package builder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/config"
)

// HybridBuilder fuses the TF-IDF and dense neighbor tables into one
// weighted table. Both input tables must exist.
type HybridBuilder struct {
	cfg    config.BuilderConfig
	store  *artifacts.Store
	logger zerolog.Logger
}

// NewHybridBuilder creates the builder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHybridBuilder(cfg config.BuilderConfig, store *artifacts.Store, logger zerolog.Logger) *HybridBuilder {
	return &HybridBuilder{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "builder_hybrid").Logger(),
	}
}

// Build loads both source tables and writes the fused table. For each
// movie, the candidate set is the union of both neighbor lists; a
// candidate missing from one table contributes zero from that side.
func (b *HybridBuilder) Build(ctx context.Context) error {
	if b.store.Exists(artifacts.NameHybridNeighbors) {
		b.logger.Info().Msg("hybrid neighbor table exists, skipping")
		return nil
	}
	start := time.Now()

	var tfidf, dense artifacts.NeighborTable
	if _, err := b.store.Load(artifacts.NameTFIDFNeighbors, 0, &tfidf); err != nil {
		return fmt.Errorf("load tfidf table: %w", err)
	}
	if _, err := b.store.Load(artifacts.NameDenseNeighbors, 0, &dense); err != nil {
		return fmt.Errorf("load dense table: %w", err)
	}

	ids := make(map[string]struct{}, len(tfidf.Neighbors))
	for id := range tfidf.Neighbors {
		ids[id] = struct{}{}
	}
	for id := range dense.Neighbors {
		ids[id] = struct{}{}
	}

	fused := artifacts.NeighborTable{
		Source:    "hybrid",
		Neighbors: make(map[string][]artifacts.Neighbor, len(ids)),
	}
	for id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		fused.Neighbors[id] = b.fuse(tfidf.Neighbors[id], dense.Neighbors[id])
	}

	_, err := b.store.Save(artifacts.NameHybridNeighbors, fused, artifacts.Metadata{
		BuiltAt:         start,
		RowCount:        len(fused.Neighbors),
		BuildDurationMS: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("save hybrid table: %w", err)
	}
	b.logger.Info().
		Int("movies", len(fused.Neighbors)).
		Dur("elapsed", time.Since(start)).
		Msg("hybrid build complete")
	return nil
}

// fuse combines two neighbor lists with the configured weights, sorts by
// fused score descending (movie ID as tie-break), and truncates to TopK.
func (b *HybridBuilder) fuse(tfidf, dense []artifacts.Neighbor) []artifacts.Neighbor {
	w1 := float32(b.cfg.Hybrid.TFIDFWeight)
	w2 := float32(b.cfg.Hybrid.DenseWeight)

	scores := make(map[string]float32, len(tfidf)+len(dense))
	for _, n := range tfidf {
		scores[n.MovieID] += w1 * n.Score
	}
	for _, n := range dense {
		scores[n.MovieID] += w2 * n.Score
	}

	out := make([]artifacts.Neighbor, 0, len(scores))
	for id, score := range scores {
		out = append(out, artifacts.Neighbor{MovieID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MovieID < out[j].MovieID
	})
	if len(out) > b.cfg.TopK {
		out = out[:b.cfg.TopK]
	}
	return out
}
