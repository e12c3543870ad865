// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package main is the entry point for the recommendation server.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 layered sources (defaults, YAML file,
//     BACHELORS_* environment variables)
//  2. Logging: zerolog, JSON or console format
//  3. Artifacts: the store holding the embedding matrix and indexes
//  4. Catalog: the cleaned movie CSV, loaded into memory
//  5. Embeddings: the persisted matrix, alignment-checked against the
//     catalog (a mismatch is startup-fatal)
//  6. Engine: the recommendation pipeline over the global flat index
//  7. HTTP server: chi router with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/api"
	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
	"github.com/Lari2003/bachelors/internal/embedding"
	"github.com/Lari2003/bachelors/internal/logging"
	"github.com/Lari2003/bachelors/internal/recommend"
	"github.com/Lari2003/bachelors/internal/vecindex"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server startup failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()
	logger.Info().
		Str("movies_path", cfg.Data.MoviesPath).
		Str("artifacts_dir", cfg.Data.ArtifactsDir).
		Msg("starting recommendation server")

	artStore, err := artifacts.NewStore(cfg.Data.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	cat, err := catalog.Load(cfg.Data.MoviesPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info().Int("movies", cat.Len()).Msg("catalog loaded")

	var matrix embedding.Matrix
	if _, err := artStore.Load(artifacts.NameEmbeddings, 0, &matrix); err != nil {
		return fmt.Errorf("load embedding matrix (run the dense builder first): %w", err)
	}
	store, err := embedding.FromMatrix(matrix)
	if err != nil {
		return fmt.Errorf("restore embedding matrix: %w", err)
	}
	if err := store.CheckAlignment(cat.Len()); err != nil {
		return fmt.Errorf("embedding matrix misaligned with catalog: %w", err)
	}

	global, err := loadGlobalIndex(artStore, store, logger)
	if err != nil {
		return fmt.Errorf("build global index: %w", err)
	}
	logger.Info().Int("rows", global.Len()).Int("dim", global.Dim()).Msg("global index ready")

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

	engine := recommend.NewEngine(cfg.Recommend, cat, store, global, encoder, logger)
	handler := api.NewHandler(engine, cat, artStore, cfg.Server.RequestTimeout, logger)
	router := api.NewRouter(cfg.Server, handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// loadGlobalIndex restores the flat index the dense builder persisted,
// falling back to building one from the embedding matrix when no index
// artifact exists. A persisted index whose shape disagrees with the
// matrix is startup-fatal.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func loadGlobalIndex(artStore *artifacts.Store, store *embedding.Store, logger zerolog.Logger) (*vecindex.Flat, error) {
	if !artStore.Exists(artifacts.NameFlatIndex) {
		return vecindex.NewFlatFromStore(store)
	}

	var state vecindex.FlatState
	if _, err := artStore.Load(artifacts.NameFlatIndex, 0, &state); err != nil {
		return nil, fmt.Errorf("load flat index: %w", err)
	}
	index, err := vecindex.FromState(state)
	if err != nil {
		return nil, fmt.Errorf("restore flat index: %w", err)
	}
	if index.Len() != store.Rows() || index.Dim() != store.Dim() {
		return nil, fmt.Errorf("flat index shape %dx%d does not match embedding matrix %dx%d",
			index.Len(), index.Dim(), store.Rows(), store.Dim())
	}
	logger.Info().Int("rows", index.Len()).Msg("loaded persisted flat index")
	return index, nil
}
