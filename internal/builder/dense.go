// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
	"github.com/Lari2003/bachelors/internal/embedding"
	"github.com/Lari2003/bachelors/internal/vecindex"
)

// DenseBuilder encodes catalog descriptions into the embedding matrix,
// builds the serving flat index, and writes the dense neighbor table.
type DenseBuilder struct {
	cfg     config.BuilderConfig
	store   *artifacts.Store
	encoder embedding.Encoder
	logger  zerolog.Logger
}

// NewDenseBuilder creates the builder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewDenseBuilder(cfg config.BuilderConfig, store *artifacts.Store, encoder embedding.Encoder, logger zerolog.Logger) *DenseBuilder {
	return &DenseBuilder{
		cfg:     cfg,
		store:   store,
		encoder: encoder,
		logger:  logger.With().Str("component", "builder_dense").Logger(),
	}
}

// Build produces the embeddings, flat index, and dense neighbor table
// artifacts. An existing embedding matrix is reused rather than
// re-encoded; an existing neighbor table skips the whole build.
func (b *DenseBuilder) Build(ctx context.Context, cat *catalog.Catalog) error {
	if b.store.Exists(artifacts.NameDenseNeighbors) {
		b.logger.Info().Msg("dense neighbor table exists, skipping")
		return nil
	}
	start := time.Now()

	store, err := b.embeddings(ctx, cat)
	if err != nil {
		return err
	}
	if err := store.CheckAlignment(cat.Len()); err != nil {
		return fmt.Errorf("embedding matrix misaligned with catalog: %w", err)
	}

	index, err := vecindex.NewFlatFromStore(store)
	if err != nil {
		return fmt.Errorf("build flat index: %w", err)
	}
	if !b.store.Exists(artifacts.NameFlatIndex) {
		if _, err := b.store.Save(artifacts.NameFlatIndex, index.State(), artifacts.Metadata{
			BuiltAt:  start,
			RowCount: index.Len(),
			Dim:      index.Dim(),
		}); err != nil {
			return fmt.Errorf("save flat index: %w", err)
		}
	}

	table := artifacts.NeighborTable{
		Source:    "dense",
		Neighbors: make(map[string][]artifacts.Neighbor, cat.Len()),
	}
	batches := 0
	for begin := 0; begin < cat.Len(); begin += b.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := begin + b.cfg.BatchSize
		if end > cat.Len() {
			end = cat.Len()
		}

		for row := begin; row < end; row++ {
			hits, err := index.Search(store.Vector(row), b.cfg.TopK+1)
			if err != nil {
				return fmt.Errorf("search row %d: %w", row, err)
			}
			table.Neighbors[cat.Record(row).MovieID] = toNeighbors(cat, hits, row, b.cfg.TopK)
		}

		batches++
		if b.cfg.CheckpointEvery > 0 && batches%b.cfg.CheckpointEvery == 0 {
			if err := saveCheckpoint(b.store, &table, end, cat.Len()); err != nil {
				return err
			}
			b.logger.Info().
				Int("rows_done", end).
				Int("rows_total", cat.Len()).
				Msg("checkpoint saved")
		}
	}

	_, err = b.store.Save(artifacts.NameDenseNeighbors, table, artifacts.Metadata{
		BuiltAt:         start,
		RowCount:        cat.Len(),
		Dim:             store.Dim(),
		BuildDurationMS: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("save neighbor table: %w", err)
	}
	b.logger.Info().Dur("elapsed", time.Since(start)).Msg("dense build complete")
	return nil
}

// embeddings loads the persisted matrix when present, otherwise encodes
// every catalog description in batches and persists the result.
func (b *DenseBuilder) embeddings(ctx context.Context, cat *catalog.Catalog) (*embedding.Store, error) {
	if b.store.Exists(artifacts.NameEmbeddings) {
		var matrix embedding.Matrix
		if _, err := b.store.Load(artifacts.NameEmbeddings, 0, &matrix); err != nil {
			return nil, fmt.Errorf("load embedding matrix: %w", err)
		}
		b.logger.Info().Msg("reusing persisted embedding matrix")
		return embedding.FromMatrix(matrix)
	}

	start := time.Now()
	docs := documents(cat)
	rows := make([][]float32, 0, len(docs))
	for begin := 0; begin < len(docs); begin += b.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := begin + b.cfg.BatchSize
		if end > len(docs) {
			end = len(docs)
		}

		vectors, err := b.encoder.EncodeBatch(ctx, docs[begin:end])
		if err != nil {
			return nil, fmt.Errorf("encode batch at %d: %w", begin, err)
		}
		rows = append(rows, vectors...)
		b.logger.Debug().Int("encoded", end).Int("total", len(docs)).Msg("encoding progress")
	}

	store, err := embedding.NewStore(rows)
	if err != nil {
		return nil, fmt.Errorf("assemble embedding matrix: %w", err)
	}
	if _, err := b.store.Save(artifacts.NameEmbeddings, store.ToMatrix(), artifacts.Metadata{
		BuiltAt:         start,
		RowCount:        store.Rows(),
		Dim:             store.Dim(),
		BuildDurationMS: time.Since(start).Milliseconds(),
	}); err != nil {
		return nil, fmt.Errorf("save embedding matrix: %w", err)
	}
	return store, nil
}
