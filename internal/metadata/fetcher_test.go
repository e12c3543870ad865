// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/config"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewCache(db)
}

const movie862 = `{
	"id": 862,
	"overview": "A cowboy doll is profoundly threatened.",
	"poster_path": "/toy.jpg",
	"release_dates": {
		"results": [
			{"iso_3166_1": "DE", "release_dates": [{"certification": "0"}]},
			{"iso_3166_1": "US", "release_dates": [{"certification": ""}, {"certification": "G"}]}
		]
	}
}`

func newTestFetcher(t *testing.T, handler http.HandlerFunc, invalidLog string) (*Fetcher, *Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cache := newTestCache(t)
	f, err := NewFetcher(config.TMDbConfig{
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		Workers:           4,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		InvalidLogPath:    invalidLog,
	}, cache, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f, cache
}

func TestFetchAllParsesMetadata(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "api_key=test-key") {
			t.Errorf("missing api key in query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(movie862)) //nolint:errcheck // test handler
	}, "")

	results, err := f.FetchAll(context.Background(), []int64{862})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	movie := results[862]
	if movie == nil {
		t.Fatal("movie 862 missing from results")
	}
	if movie.Overview != "A cowboy doll is profoundly threatened." {
		t.Errorf("overview = %q", movie.Overview)
	}
	if movie.PosterURL != posterBaseURL+"/toy.jpg" {
		t.Errorf("poster = %q", movie.PosterURL)
	}
	if movie.Certification != "G" {
		t.Errorf("certification = %q, want G (first non-empty US)", movie.Certification)
	}
}

func TestFetchAllServesSecondRunFromCache(t *testing.T) {
	var calls atomic.Int32
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(movie862)) //nolint:errcheck // test handler
	}, "")

	for i := 0; i < 2; i++ {
		if _, err := f.FetchAll(context.Background(), []int64{862}); err != nil {
			t.Fatalf("FetchAll run %d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("api calls = %d, want 1 (second run cached)", calls.Load())
	}
}

func TestFetchAllRecordsInvalidIDs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "invalid.log")
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/movie/999") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(movie862)) //nolint:errcheck // test handler
	}, logPath)

	results, err := f.FetchAll(context.Background(), []int64{862, 999})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if _, ok := results[999]; ok {
		t.Error("invalid id present in results")
	}
	if _, ok := results[862]; !ok {
		t.Error("valid id missing from results")
	}

	invalid := f.InvalidIDs()
	if len(invalid) != 1 || invalid[0] != 999 {
		t.Errorf("InvalidIDs = %v, want [999]", invalid)
	}

	data, err := os.ReadFile(logPath) //nolint:gosec // test-controlled path
	if err != nil {
		t.Fatalf("read invalid log: %v", err)
	}
	if strings.TrimSpace(string(data)) != "999" {
		t.Errorf("invalid log = %q, want 999", data)
	}
}

func TestFetchAllSkipsIDFailingAfterRetries(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "invalid.log")
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/movie/666") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(movie862)) //nolint:errcheck // test handler
	}, logPath)

	results, err := f.FetchAll(context.Background(), []int64{862, 666})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if _, ok := results[862]; !ok {
		t.Error("healthy id missing from results")
	}
	if _, ok := results[666]; ok {
		t.Error("id that exhausted retries present in results")
	}
	invalid := f.InvalidIDs()
	if len(invalid) != 1 || invalid[0] != 666 {
		t.Errorf("InvalidIDs = %v, want [666]", invalid)
	}

	data, err := os.ReadFile(logPath) //nolint:gosec // test-controlled path
	if err != nil {
		t.Fatalf("read invalid log: %v", err)
	}
	if !strings.Contains(string(data), "666") {
		t.Errorf("invalid log = %q, want it to contain 666", data)
	}
}

func TestFetchAllRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(movie862)) //nolint:errcheck // test handler
	}, "")

	results, err := f.FetchAll(context.Background(), []int64{862})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if _, ok := results[862]; !ok {
		t.Error("movie missing after retry")
	}
	if calls.Load() != 2 {
		t.Errorf("api calls = %d, want 2", calls.Load())
	}
}

func TestNewFetcherRequiresAPIKey(t *testing.T) {
	if _, err := NewFetcher(config.TMDbConfig{}, newTestCache(t), zerolog.Nop()); err == nil {
		t.Error("NewFetcher accepted empty api key")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)

	if _, ok, err := cache.Get(1); err != nil || ok {
		t.Fatalf("Get on empty cache = ok=%v err=%v", ok, err)
	}

	want := &Movie{TmdbID: 1, Overview: "x", PosterURL: "https://img/x.jpg", Certification: "PG"}
	if err := cache.Put(1, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := cache.Get(1)
	if err != nil || !ok {
		t.Fatalf("Get = ok=%v err=%v", ok, err)
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
