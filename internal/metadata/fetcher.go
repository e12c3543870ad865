// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package metadata enriches the catalog with plot descriptions, poster
// URLs, and US certifications fetched from TMDb.
//
// The fetcher runs a bounded worker pool behind a shared rate limiter
// and a circuit breaker, caches every successful response in badger, and
// records permanently invalid IDs to a log file so repeated runs skip
// them.
package metadata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Lari2003/bachelors/internal/config"
)

// posterBaseURL prefixes TMDb poster paths.
const posterBaseURL = "https://image.tmdb.org/t/p/w500"

// ErrNotFound marks a TMDb ID that does not exist. It is permanent and
// never retried.
var ErrNotFound = errors.New("tmdb id not found")

// Movie is the metadata fetched for one TMDb ID.
type Movie struct {
	TmdbID        int64  `json:"tmdb_id"`
	Overview      string `json:"overview"`
	PosterURL     string `json:"poster_url"`
	Certification string `json:"certification"`
}

// movieResponse is the TMDb /movie/{id} wire format, with release dates
// appended for the certification lookup.
type movieResponse struct {
	ID           int64  `json:"id"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	ReleaseDates struct {
		Results []struct {
			ISO3166_1    string `json:"iso_3166_1"`
			ReleaseDates []struct {
				Certification string `json:"certification"`
			} `json:"release_dates"`
		} `json:"results"`
	} `json:"release_dates"`
}

// Fetcher downloads movie metadata from TMDb.
type Fetcher struct {
	cfg     config.TMDbConfig
	client  *http.Client
	cache   *Cache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Movie]
	logger  zerolog.Logger

	mu         sync.Mutex
	invalidIDs []int64
}

// NewFetcher creates a fetcher over the given cache.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewFetcher(cfg config.TMDbConfig, cache *Cache, logger zerolog.Logger) (*Fetcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tmdb api key is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}

	log := logger.With().Str("component", "metadata").Logger()
	settings := gobreaker.Settings{
		Name:    "tmdb",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Workers),
		breaker: gobreaker.NewCircuitBreaker[*Movie](settings),
		logger:  log,
	}, nil
}

// FetchAll resolves metadata for every ID, serving from cache where
// possible and fetching the rest concurrently. Missing IDs and IDs that
// exhaust their retries are recorded and omitted from the result rather
// than failing the run; only context cancellation aborts the batch.
func (f *Fetcher) FetchAll(ctx context.Context, ids []int64) (map[int64]*Movie, error) {
	results := make(map[int64]*Movie, len(ids))
	var resultsMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	for _, id := range ids {
		g.Go(func() error {
			movie, err := f.fetchOne(ctx, id)
			switch {
			case err == nil:
				resultsMu.Lock()
				results[id] = movie
				resultsMu.Unlock()
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				f.recordInvalid(id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := f.writeInvalidLog(); err != nil {
		f.logger.Warn().Err(err).Msg("invalid-id log not written")
	}
	f.logger.Info().
		Int("requested", len(ids)).
		Int("resolved", len(results)).
		Int("invalid", len(f.invalidIDs)).
		Msg("metadata fetch complete")
	return results, nil
}

// fetchOne serves one ID from cache or the API.
func (f *Fetcher) fetchOne(ctx context.Context, id int64) (*Movie, error) {
	if movie, ok, err := f.cache.Get(id); err != nil {
		return nil, err
	} else if ok {
		return movie, nil
	}

	var movie *Movie
	operation := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		result, err := f.breaker.Execute(func() (*Movie, error) {
			return f.get(ctx, id)
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		movie = result
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	if err := f.cache.Put(id, movie); err != nil {
		f.logger.Warn().Err(err).Int64("tmdb_id", id).Msg("cache write failed")
	}
	return movie, nil
}

// get performs one API round trip.
func (f *Fetcher) get(ctx context.Context, id int64) (*Movie, error) {
	url := fmt.Sprintf("%s/movie/%d?api_key=%s&append_to_response=release_dates",
		f.cfg.BaseURL, id, f.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tmdb: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("tmdb returned status %d for id %d", resp.StatusCode, id)
	}

	var parsed movieResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode tmdb response: %w", err)
	}

	movie := &Movie{
		TmdbID:        id,
		Overview:      parsed.Overview,
		Certification: usCertification(&parsed),
	}
	if parsed.PosterPath != "" {
		movie.PosterURL = posterBaseURL + parsed.PosterPath
	}
	return movie, nil
}

// usCertification returns the first non-empty US certification.
func usCertification(resp *movieResponse) string {
	for _, country := range resp.ReleaseDates.Results {
		if country.ISO3166_1 != "US" {
			continue
		}
		for _, rd := range country.ReleaseDates {
			if rd.Certification != "" {
				return rd.Certification
			}
		}
	}
	return ""
}

func (f *Fetcher) recordInvalid(id int64, err error) {
	f.mu.Lock()
	f.invalidIDs = append(f.invalidIDs, id)
	f.mu.Unlock()
	f.logger.Warn().Err(err).Int64("tmdb_id", id).Msg("tmdb id skipped")
}

// InvalidIDs returns the IDs that failed permanently during FetchAll.
func (f *Fetcher) InvalidIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.invalidIDs))
	copy(out, f.invalidIDs)
	return out
}

// writeInvalidLog appends invalid IDs to the configured log file, one
// per line.
func (f *Fetcher) writeInvalidLog() error {
	f.mu.Lock()
	ids := f.invalidIDs
	f.mu.Unlock()
	if len(ids) == 0 || f.cfg.InvalidLogPath == "" {
		return nil
	}

	file, err := os.OpenFile(f.cfg.InvalidLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open invalid-id log: %w", err)
	}
	defer func() { _ = file.Close() }() //nolint:errcheck // flush errors surface via writer

	w := bufio.NewWriter(file)
	for _, id := range ids {
		if _, err := w.WriteString(strconv.FormatInt(id, 10) + "\n"); err != nil {
			return fmt.Errorf("write invalid-id log: %w", err)
		}
	}
	return w.Flush()
}
