// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/metrics"
	"github.com/Lari2003/bachelors/internal/recommend"
)

// maxRequestBody caps the recommendation request body.
const maxRequestBody = 64 * 1024

// recommendRequest is the wire form of a recommendation query.
type recommendRequest struct {
	Plot      string   `json:"plot" validate:"max=5000"`
	Genres    []string `json:"genres" validate:"max=20,dive,max=64"`
	Years     []string `json:"years" validate:"max=10,dive,max=32"`
	AgeRating string   `json:"age_rating" validate:"max=32"`
	Exclude   struct {
		Liked    []string `json:"liked" validate:"max=1000,dive,max=64"`
		Disliked []string `json:"disliked" validate:"max=1000,dive,max=64"`
	} `json:"exclude"`
}

// Handler serves the HTTP endpoints.
type Handler struct {
	engine    *recommend.Engine
	catalog   *catalog.Catalog
	artifacts *artifacts.Store
	validate  *validator.Validate
	timeout   time.Duration
	startedAt time.Time
	logger    zerolog.Logger
}

// NewHandler creates the handler.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(
	engine *recommend.Engine,
	cat *catalog.Catalog,
	store *artifacts.Store,
	timeout time.Duration,
	logger zerolog.Logger,
) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{
		engine:    engine,
		catalog:   cat,
		artifacts: store,
		validate:  validator.New(),
		timeout:   timeout,
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// RecommendByPlot handles POST /api/recommend-by-plot.
func (h *Handler) RecommendByPlot(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req recommendRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			rw.ValidationError("request validation failed", details)
			return
		}
		rw.BadRequest("invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.engine.Recommend(ctx, &recommend.Request{
		Plot:      req.Plot,
		Genres:    req.Genres,
		Years:     req.Years,
		AgeRating: req.AgeRating,
		Exclude: recommend.Exclusions{
			Liked:    req.Exclude.Liked,
			Disliked: req.Exclude.Disliked,
		},
	})
	switch {
	case errors.Is(err, recommend.ErrEncoderUnavailable):
		metrics.RecommendRequests.WithLabelValues("encoder_error").Inc()
		rw.ServiceUnavailable("embedding service unavailable")
		return
	case err != nil:
		metrics.RecommendRequests.WithLabelValues("internal_error").Inc()
		h.logger.Error().Err(err).Msg("recommendation failed")
		rw.InternalError("recommendation failed")
		return
	}

	if len(resp.Results) == 0 {
		metrics.RecommendRequests.WithLabelValues("empty_plot").Inc()
	} else {
		metrics.RecommendRequests.WithLabelValues("ok").Inc()
	}
	if resp.Fallback {
		metrics.RecommendFallbacks.Inc()
	}
	metrics.RecommendResultCount.Observe(float64(len(resp.Results)))

	rw.Success(resp)
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// statusResponse is the GET /api/status payload.
type statusResponse struct {
	Movies    int                  `json:"movies"`
	UptimeS   int64                `json:"uptime_seconds"`
	Artifacts []artifacts.Metadata `json:"artifacts"`
}

// Status handles GET /api/status: catalog size, uptime, and the latest
// version of every stored artifact.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	metas, err := h.artifacts.List()
	if err != nil {
		h.logger.Error().Err(err).Msg("artifact listing failed")
		rw.InternalError("artifact listing failed")
		return
	}

	rw.Success(statusResponse{
		Movies:    h.catalog.Len(),
		UptimeS:   int64(time.Since(h.startedAt).Seconds()),
		Artifacts: metas,
	})
}
