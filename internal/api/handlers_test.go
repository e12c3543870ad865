// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
	"github.com/Lari2003/bachelors/internal/embedding"
	"github.com/Lari2003/bachelors/internal/recommend"
	"github.com/Lari2003/bachelors/internal/vecindex"
)

// fixedEncoder returns one vector for every text, or a fixed error.
type fixedEncoder struct {
	vector []float32
	err    error
}

func (f *fixedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.vector))
	copy(out, f.vector)
	embedding.Normalize(out)
	return out, nil
}

func (f *fixedEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Encode(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEncoder) Dim() int { return len(f.vector) }

func newTestHandler(t *testing.T, enc embedding.Encoder) *Handler {
	t.Helper()

	cat := catalog.New([]catalog.MovieRecord{
		{TmdbID: 1, Title: "Alpha", Genres: "Sci-Fi", Year: 2024, PosterURL: "https://img/1.jpg", AgeRestriction: "PG"},
		{TmdbID: 2, Title: "Beta", Genres: "Sci-Fi", Year: 2022, PosterURL: "https://img/2.jpg", AgeRestriction: "PG"},
		{TmdbID: 3, Title: "Gamma", Genres: "Drama", Year: 2020, PosterURL: "https://img/3.jpg", AgeRestriction: "R"},
	})

	store, err := embedding.NewStore([][]float32{
		{1, 0},
		{0.9, 0.3},
		{0.3, 0.9},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	global, err := vecindex.NewFlatFromStore(store)
	if err != nil {
		t.Fatalf("NewFlatFromStore: %v", err)
	}

	cfg := config.RecommendConfig{
		TargetSize:         2,
		MaxNeighbors:       10,
		FallbackMultiplier: 5,
		ReferenceYear:      2025,
		AgeRatings:         map[string][]string{"All ages": {"G", "PG"}},
	}
	engine := recommend.NewEngine(cfg, cat, store, global, enc, zerolog.Nop())

	artStore, err := artifacts.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifacts.NewStore: %v", err)
	}
	return NewHandler(engine, cat, artStore, 5*time.Second, zerolog.Nop())
}

func postRecommend(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/recommend-by-plot", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.RecommendByPlot(rec, req)

	var envelope APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return rec, envelope
}

func TestRecommendByPlot(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})

	rec, envelope := postRecommend(t, h, `{"plot":"a robot story","genres":["sci-fi"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !envelope.Success {
		t.Fatalf("success = false: %+v", envelope.Error)
	}

	data, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var resp recommend.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].MovieID != "tmdb_1" {
		t.Errorf("top result = %s, want tmdb_1", resp.Results[0].MovieID)
	}
}

func TestRecommendByPlotBlankPlot(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})

	rec, envelope := postRecommend(t, h, `{"plot":"  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !envelope.Success {
		t.Fatalf("success = false: %+v", envelope.Error)
	}
}

func TestRecommendByPlotInvalidJSON(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})

	rec, envelope := postRecommend(t, h, `{"plot":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeBadRequest {
		t.Errorf("error = %+v, want BAD_REQUEST", envelope.Error)
	}
}

func TestRecommendByPlotValidation(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})

	long := strings.Repeat("x", 6000)
	rec, envelope := postRecommend(t, h, `{"plot":"`+long+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want VALIDATION_FAILED", envelope.Error)
	}
}

func TestRecommendByPlotEncoderDown(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}, err: errors.New("refused")})

	rec, envelope := postRecommend(t, h, `{"plot":"anything"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v, want SERVICE_UNAVAILABLE", envelope.Error)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var envelope APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	data, _ := json.Marshal(envelope.Data)
	var status statusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Movies != 3 {
		t.Errorf("movies = %d, want 3", status.Movies)
	}
}

func TestRouterServesRecommendRoute(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})
	router := NewRouter(config.ServerConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   100,
		RateLimitWindow: time.Minute,
	}, h)

	req := httptest.NewRequest(http.MethodPost, "/api/recommend-by-plot",
		bytes.NewReader([]byte(`{"plot":"a robot story"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("content type = %s", rec.Header().Get("Content-Type"))
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &fixedEncoder{vector: []float32{1, 0}})
	router := NewRouter(config.ServerConfig{CORSOrigins: []string{"*"}}, h)

	req := httptest.NewRequest(http.MethodGet, "/api/recommend-by-plot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
