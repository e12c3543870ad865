// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package main is the offline builder CLI. It produces the artifacts the
// server loads at startup:
//
//	builder -job dense     # embedding matrix, flat index, dense neighbors
//	builder -job tfidf     # TF-IDF neighbor table via the IVF index
//	builder -job hybrid    # weighted fusion of the two tables
//	builder -job metadata  # enrich the catalog from TMDb
//	builder -job all       # dense, tfidf, hybrid in order
//
// Every job is idempotent: existing artifacts are reused, not rebuilt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/builder"
	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
	"github.com/Lari2003/bachelors/internal/embedding"
	"github.com/Lari2003/bachelors/internal/logging"
	"github.com/Lari2003/bachelors/internal/metadata"
	"github.com/Lari2003/bachelors/internal/metrics"
)

func main() {
	job := flag.String("job", "all", "build job: dense, tfidf, hybrid, metadata, all")
	flag.Parse()

	if err := run(*job); err != nil {
		logging.Fatal().Err(err).Str("job", *job).Msg("build failed")
	}
}

func run(job string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	// Every run carries an id so checkpoint and completion lines from
	// concurrent runs can be told apart.
	logger := logging.With().Str("run_id", uuid.NewString()).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := artifacts.NewStore(cfg.Data.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	cat, err := catalog.Load(cfg.Data.MoviesPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info().Int("movies", cat.Len()).Str("job", job).Msg("builder starting")

	jobs := map[string]func() error{
		"dense":    func() error { return runDense(ctx, cfg, store, cat, logger) },
		"tfidf":    func() error { return builder.NewTFIDFBuilder(cfg.Builder, store, logger).Build(ctx, cat) },
		"hybrid":   func() error { return builder.NewHybridBuilder(cfg.Builder, store, logger).Build(ctx) },
		"metadata": func() error { return runMetadata(ctx, cfg, cat, logger) },
	}

	if job == "all" {
		for _, name := range []string{"dense", "tfidf", "hybrid"} {
			if err := timed(name, jobs[name]); err != nil {
				return err
			}
		}
		return nil
	}

	fn, ok := jobs[job]
	if !ok {
		return fmt.Errorf("unknown job %q (want dense, tfidf, hybrid, metadata, or all)", job)
	}
	return timed(job, fn)
}

// timed records the build duration metric around one job.
func timed(name string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return err
	}
	metrics.RecordBuild(name, time.Since(start))
	return nil
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func runDense(ctx context.Context, cfg *config.Config, store *artifacts.Store, cat *catalog.Catalog, logger zerolog.Logger) error {
	encoder, err := embedding.NewHTTPEncoder(embedding.HTTPEncoderConfig{
		URL:        cfg.Encoder.URL,
		Model:      cfg.Encoder.Model,
		Dimension:  cfg.Encoder.Dimension,
		Timeout:    cfg.Encoder.Timeout,
		MaxRetries: cfg.Encoder.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("create encoder client: %w", err)
	}
	return builder.NewDenseBuilder(cfg.Builder, store, encoder, logger).Build(ctx, cat)
}

// runMetadata fetches TMDb metadata for every catalog row that carries a
// TMDb ID and reports coverage. The fetched cache feeds the upstream
// data pipeline that regenerates the cleaned CSV.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func runMetadata(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, logger zerolog.Logger) error {
	cache, err := metadata.OpenCache(cfg.TMDb.CachePath)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }() //nolint:errcheck // close error on shutdown is not actionable

	fetcher, err := metadata.NewFetcher(cfg.TMDb, cache, logger)
	if err != nil {
		return err
	}

	var ids []int64
	for _, rec := range cat.Records() {
		if rec.TmdbID > 0 {
			ids = append(ids, rec.TmdbID)
		}
	}

	results, err := fetcher.FetchAll(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}
	logger.Info().
		Int("with_tmdb_id", len(ids)).
		Int("resolved", len(results)).
		Int("invalid", len(fetcher.InvalidIDs())).
		Msg("metadata job complete")
	return nil
}
