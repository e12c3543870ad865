// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the server and the offline builders.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `koanf:"server"`

	// Data contains paths to the catalog and persisted artifacts.
	Data DataConfig `koanf:"data"`

	// Recommend contains recommendation engine settings and filter policy.
	Recommend RecommendConfig `koanf:"recommend"`

	// Encoder contains sentence-embedding service settings.
	Encoder EncoderConfig `koanf:"encoder"`

	// Builder contains offline index builder settings.
	Builder BuilderConfig `koanf:"builder"`

	// TMDb contains metadata fetcher settings.
	TMDb TMDbConfig `koanf:"tmdb"`

	// Logging contains log level and format settings.
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// RequestTimeout bounds a single recommendation request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DataConfig contains paths to the catalog and persisted artifacts.
type DataConfig struct {
	// MoviesPath is the cleaned movie table CSV.
	MoviesPath string `koanf:"movies_path"`

	// ArtifactsDir holds the embedding matrix, indices, and neighbor tables.
	ArtifactsDir string `koanf:"artifacts_dir"`
}

// RecommendConfig contains engine settings and the filter policy tables.
type RecommendConfig struct {
	// TargetSize is the number of recommendations to return.
	TargetSize int `koanf:"target_size"`

	// MaxNeighbors caps the neighbors fetched from the per-request
	// subset index before skip rules are applied.
	MaxNeighbors int `koanf:"max_neighbors"`

	// FallbackMultiplier scales the global-index fetch during fallback:
	// needed*FallbackMultiplier neighbors are retrieved to absorb
	// exclusion, duplicate, and poster attrition.
	FallbackMultiplier int `koanf:"fallback_multiplier"`

	// ReferenceYear anchors the year-bucket thresholds. It is a fixed
	// policy constant rather than wall-clock derived so that identical
	// requests rank identically across days.
	ReferenceYear int `koanf:"reference_year"`

	// AgeRatings maps an age bucket label to its allow-list of
	// certification codes. A request with a label missing from this
	// table matches nothing.
	AgeRatings map[string][]string `koanf:"age_ratings"`
}

// EncoderConfig contains sentence-embedding service settings.
type EncoderConfig struct {
	// URL is the base URL of the embedding inference service.
	URL string `koanf:"url"`

	// Model is the sentence-embedding model name.
	Model string `koanf:"model"`

	// Dimension is the expected embedding dimension.
	Dimension int `koanf:"dimension"`

	// Timeout bounds a single encode call.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries caps backoff retries on transient encode failures.
	MaxRetries int `koanf:"max_retries"`
}

// BuilderConfig contains offline index builder settings.
type BuilderConfig struct {
	// TopK is the neighbor table depth per movie.
	TopK int `koanf:"top_k"`

	// BatchSize is the row batch size for index insertion and search.
	BatchSize int `koanf:"batch_size"`

	// CheckpointEvery persists partial neighbor tables every N batches.
	CheckpointEvery int `koanf:"checkpoint_every"`

	// TFIDF contains TF-IDF vectorizer and ANN index settings.
	TFIDF TFIDFConfig `koanf:"tfidf"`

	// Hybrid contains score fusion settings.
	Hybrid HybridConfig `koanf:"hybrid"`
}

// TFIDFConfig contains TF-IDF vectorizer and ANN index settings.
type TFIDFConfig struct {
	// MaxFeatures caps the vocabulary size by document frequency.
	MaxFeatures int `koanf:"max_features"`

	// TrainSample bounds the rows used to train the ANN index so
	// training memory is independent of catalog size.
	TrainSample int `koanf:"train_sample"`

	// Clusters is the number of coarse cells in the ANN index.
	Clusters int `koanf:"clusters"`

	// Probes is the number of cells scanned per query.
	Probes int `koanf:"probes"`
}

// HybridConfig contains score fusion settings.
type HybridConfig struct {
	// TFIDFWeight is the TF-IDF similarity weight.
	TFIDFWeight float64 `koanf:"tfidf_weight"`

	// DenseWeight is the dense similarity weight.
	DenseWeight float64 `koanf:"dense_weight"`
}

// TMDbConfig contains metadata fetcher settings.
type TMDbConfig struct {
	// APIKey authenticates against the TMDb API.
	APIKey string `koanf:"api_key"`

	// BaseURL is the TMDb API base URL.
	BaseURL string `koanf:"base_url"`

	// Workers bounds concurrent metadata fetches.
	Workers int `koanf:"workers"`

	// RequestsPerSecond caps outbound request rate.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// MaxRetries caps backoff retries before an ID is recorded invalid.
	MaxRetries int `koanf:"max_retries"`

	// CachePath is the badger directory for fetched metadata.
	CachePath string `koanf:"cache_path"`

	// InvalidLogPath records IDs that failed after all retries.
	InvalidLogPath string `koanf:"invalid_log_path"`
}

// LoggingConfig contains log level and format settings.
type LoggingConfig struct {
	// Level is the minimum log level.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller info in log lines.
	Caller bool `koanf:"caller"`
}

// YearBuckets returns the year-bucket policy resolved against the
// configured reference year. An empty or unknown bucket label means no
// year filtering.
//
// MinYear is inclusive; MaxYear is exclusive; zero means unbounded.
func (c RecommendConfig) YearBuckets() map[string]YearBucket {
	return map[string]YearBucket{
		"Last year":     {MinYear: c.ReferenceYear - 1},
		"Last 5 years":  {MinYear: c.ReferenceYear - 5},
		"Last 10 years": {MinYear: c.ReferenceYear - 10},
		"Older":         {MaxYear: c.ReferenceYear - 10},
	}
}

// YearBucket is a half-open year range. Zero fields are unbounded.
type YearBucket struct {
	MinYear int
	MaxYear int
}

// Contains reports whether year falls inside the bucket.
func (b YearBucket) Contains(year int) bool {
	if b.MinYear != 0 && year < b.MinYear {
		return false
	}
	if b.MaxYear != 0 && year >= b.MaxYear {
		return false
	}
	return true
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			RequestTimeout:  10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Data: DataConfig{
			MoviesPath:   "data/processed/clean_movies.csv",
			ArtifactsDir: "data/artifacts",
		},
		Recommend: RecommendConfig{
			TargetSize:         15,
			MaxNeighbors:       100,
			FallbackMultiplier: 5,
			ReferenceYear:      2025,
			AgeRatings: map[string][]string{
				"All ages":    {"G", "PG"},
				"Teens(13+)":  {"PG-13"},
				"Mature(16+)": {"R"},
				"Adults(18+)": {"NC-17", "18", "TV-MA"},
			},
		},
		Encoder: EncoderConfig{
			URL:        "http://127.0.0.1:8080",
			Model:      "all-MiniLM-L6-v2",
			Dimension:  384,
			Timeout:    15 * time.Second,
			MaxRetries: 3,
		},
		Builder: BuilderConfig{
			TopK:            20,
			BatchSize:       256,
			CheckpointEvery: 100,
			TFIDF: TFIDFConfig{
				MaxFeatures: 20000,
				TrainSample: 5000,
				Clusters:    100,
				Probes:      8,
			},
			Hybrid: HybridConfig{
				TFIDFWeight: 0.5,
				DenseWeight: 0.5,
			},
		},
		TMDb: TMDbConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			Workers:           10,
			RequestsPerSecond: 20,
			MaxRetries:        4,
			CachePath:         "data/processed/tmdb_cache",
			InvalidLogPath:    "data/processed/invalid_tmdb_ids.log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for values that would produce a
// misbehaving process. It is called once after loading.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Data.MoviesPath == "" {
		return fmt.Errorf("data.movies_path is required")
	}
	if c.Data.ArtifactsDir == "" {
		return fmt.Errorf("data.artifacts_dir is required")
	}
	if c.Recommend.TargetSize <= 0 {
		return fmt.Errorf("recommend.target_size must be positive, got %d", c.Recommend.TargetSize)
	}
	if c.Recommend.MaxNeighbors < c.Recommend.TargetSize {
		return fmt.Errorf("recommend.max_neighbors %d below target_size %d",
			c.Recommend.MaxNeighbors, c.Recommend.TargetSize)
	}
	if c.Recommend.FallbackMultiplier < 1 {
		return fmt.Errorf("recommend.fallback_multiplier must be >= 1, got %d", c.Recommend.FallbackMultiplier)
	}
	if c.Recommend.ReferenceYear < 1900 {
		return fmt.Errorf("recommend.reference_year %d implausible", c.Recommend.ReferenceYear)
	}
	if c.Encoder.Dimension <= 0 {
		return fmt.Errorf("encoder.dimension must be positive, got %d", c.Encoder.Dimension)
	}
	if c.Builder.TopK <= 0 {
		return fmt.Errorf("builder.top_k must be positive, got %d", c.Builder.TopK)
	}
	if c.Builder.BatchSize <= 0 {
		return fmt.Errorf("builder.batch_size must be positive, got %d", c.Builder.BatchSize)
	}
	if err := c.Builder.Hybrid.validate(); err != nil {
		return err
	}
	if c.Builder.TFIDF.Clusters <= 0 {
		return fmt.Errorf("builder.tfidf.clusters must be positive, got %d", c.Builder.TFIDF.Clusters)
	}
	if c.Builder.TFIDF.Probes <= 0 || c.Builder.TFIDF.Probes > c.Builder.TFIDF.Clusters {
		return fmt.Errorf("builder.tfidf.probes %d out of range (1..%d)",
			c.Builder.TFIDF.Probes, c.Builder.TFIDF.Clusters)
	}
	return nil
}

// validate ensures the fusion weighting is convex.
func (h HybridConfig) validate() error {
	if h.TFIDFWeight < 0 || h.DenseWeight < 0 {
		return fmt.Errorf("builder.hybrid weights must be non-negative")
	}
	sum := h.TFIDFWeight + h.DenseWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("builder.hybrid weights must sum to 1.0, got %g", sum)
	}
	return nil
}
