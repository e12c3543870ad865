// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
	"github.com/Lari2003/bachelors/internal/embedding"
	"github.com/Lari2003/bachelors/internal/vecindex"
)

// Engine orchestrates one recommendation request: embed the plot, filter
// the catalog, search a per-request subset index, and fall back to the
// global index when the filtered pool comes up short.
//
// Safe for concurrent use; all mutable state is per-request.
type Engine struct {
	cfg     config.RecommendConfig
	policy  Policy
	catalog *catalog.Catalog
	store   *embedding.Store
	global  *vecindex.Flat
	encoder embedding.Encoder
	logger  zerolog.Logger
}

// NewEngine wires the engine from its pre-built components. The store
// must already be alignment-checked against the catalog.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(
	cfg config.RecommendConfig,
	cat *catalog.Catalog,
	store *embedding.Store,
	global *vecindex.Flat,
	encoder embedding.Encoder,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:     cfg,
		policy:  NewPolicy(cfg),
		catalog: cat,
		store:   store,
		global:  global,
		encoder: encoder,
		logger:  logger.With().Str("component", "recommend").Logger(),
	}
}

// Recommend produces up to TargetSize movies for the request. A blank
// plot returns an empty response. Panics in the pipeline are recovered
// and reported as ErrRecommendationFailed so one bad request cannot take
// the process down.
func (e *Engine) Recommend(ctx context.Context, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("recommendation pipeline panicked")
			resp = nil
			err = ErrRecommendationFailed
		}
	}()

	if strings.TrimSpace(req.Plot) == "" {
		return &Response{Results: []Result{}}, nil
	}

	query, err := e.encoder.Encode(ctx, req.Plot)
	if err != nil {
		e.logger.Error().Err(err).Msg("plot encoding failed")
		return nil, ErrEncoderUnavailable
	}

	candidates := Filter(e.catalog, req, e.policy)
	candidates = e.catalog.DedupRows(candidates)

	excluded := req.excludedIDs()
	picker := newPicker(e.catalog, excluded, e.cfg.TargetSize)

	if len(candidates) > 0 {
		sub, err := vecindex.NewSubset(e.store, candidates)
		if err != nil {
			e.logger.Error().Err(err).Msg("subset index build failed")
			return nil, ErrRecommendationFailed
		}

		k := e.cfg.MaxNeighbors
		if k > len(candidates) {
			k = len(candidates)
		}
		hits, err := sub.Search(query, k)
		if err != nil {
			return nil, ErrRecommendationFailed
		}
		picker.take(hits)
	}

	fallback := false
	if picker.short() {
		fallback = true
		needed := e.cfg.TargetSize - picker.len()
		// Over-fetch to absorb exclusion, duplicate, and poster attrition.
		hits, err := e.global.Search(query, needed*e.cfg.FallbackMultiplier)
		if err != nil {
			return nil, ErrRecommendationFailed
		}
		e.logger.Debug().
			Int("needed", needed).
			Int("fetched", len(hits)).
			Msg("filtered pool short, filling from global index")
		picker.take(hits)
	}

	if err := picker.verify(); err != nil {
		e.logger.Error().Err(err).Msg("response invariant violated")
		return nil, ErrRecommendationFailed
	}
	return &Response{Results: picker.results, Fallback: fallback}, nil
}

// picker accumulates results while enforcing the response invariants:
// no excluded movies, no duplicates, every entry has a valid poster, and
// at most target entries.
type picker struct {
	catalog  *catalog.Catalog
	excluded map[string]struct{}
	seen     map[string]struct{}
	target   int
	results  []Result
}

func newPicker(c *catalog.Catalog, excluded map[string]struct{}, target int) *picker {
	return &picker{
		catalog:  c,
		excluded: excluded,
		seen:     make(map[string]struct{}, target),
		target:   target,
		results:  make([]Result, 0, target),
	}
}

func (p *picker) len() int    { return len(p.results) }
func (p *picker) short() bool { return len(p.results) < p.target }

// take appends hits in score order, skipping excluded, already-picked,
// and posterless records, until the target is reached. Both the derived
// movie id and the duplicate key are tracked: two rows can share an id
// (same IMDb entry, differing title or year) while their duplicate keys
// differ, and neither form may repeat in the response.
func (p *picker) take(hits []vecindex.Hit) {
	for _, h := range hits {
		if len(p.results) >= p.target {
			return
		}
		rec := p.catalog.Record(h.Row)
		if _, skip := p.excluded[rec.MovieID]; skip {
			continue
		}
		key := rec.DedupKey()
		if _, dup := p.seen[rec.MovieID]; dup {
			continue
		}
		if _, dup := p.seen[key]; dup {
			continue
		}
		if !rec.HasValidPoster() {
			continue
		}
		p.seen[rec.MovieID] = struct{}{}
		p.seen[key] = struct{}{}
		p.results = append(p.results, Result{
			MovieID:        rec.MovieID,
			Title:          rec.Title,
			Genres:         rec.Genres,
			Year:           rec.Year,
			Description:    rec.Description,
			PosterURL:      rec.PosterURL,
			AgeRestriction: rec.AgeRestriction,
			Score:          h.Score,
		})
	}
}

// verify re-checks the response invariants before results leave the
// engine, so a violation surfaces as an internal error instead of a bad
// response.
func (p *picker) verify() error {
	if len(p.results) > p.target {
		return fmt.Errorf("result count %d exceeds target %d", len(p.results), p.target)
	}
	ids := make(map[string]struct{}, len(p.results))
	for _, res := range p.results {
		if _, dup := ids[res.MovieID]; dup {
			return fmt.Errorf("duplicate movie %s in results", res.MovieID)
		}
		ids[res.MovieID] = struct{}{}
		if _, bad := p.excluded[res.MovieID]; bad {
			return fmt.Errorf("excluded movie %s in results", res.MovieID)
		}
	}
	return nil
}
