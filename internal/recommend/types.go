// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package recommend

import "errors"

// ErrRecommendationFailed is returned when the engine cannot produce a
// response for an internal reason. The handler maps it to a 500 without
// leaking internals.
var ErrRecommendationFailed = errors.New("recommendation failed")

// ErrEncoderUnavailable is returned when the plot cannot be embedded.
var ErrEncoderUnavailable = errors.New("encoder unavailable")

// Exclusions lists movies the user has already rated, by stable movie
// identifier. Both lists are excluded from results equally.
type Exclusions struct {
	Liked    []string `json:"liked"`
	Disliked []string `json:"disliked"`
}

// Request is one recommendation query.
type Request struct {
	// Plot is the free-text plot description. A blank plot yields an
	// empty result set rather than an error.
	Plot string `json:"plot"`

	// Genres filters candidates to those matching ANY listed genre,
	// case-insensitive substring. Empty means no genre filtering.
	Genres []string `json:"genres"`

	// Years lists year-bucket labels; a candidate matches if it falls in
	// ANY listed bucket. Empty means no year filtering.
	Years []string `json:"years"`

	// AgeRating is an age-bucket label resolved against the configured
	// certification allow-lists. Empty means no age filtering; an
	// unknown label matches nothing.
	AgeRating string `json:"age_rating"`

	// Exclude lists already-seen movies to keep out of results.
	Exclude Exclusions `json:"exclude"`
}

// excludedIDs collects both exclusion lists into a set.
func (r *Request) excludedIDs() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Exclude.Liked)+len(r.Exclude.Disliked))
	for _, id := range r.Exclude.Liked {
		set[id] = struct{}{}
	}
	for _, id := range r.Exclude.Disliked {
		set[id] = struct{}{}
	}
	return set
}

// Result is one recommended movie.
type Result struct {
	// MovieID is the stable movie identifier.
	MovieID string `json:"movie_id"`

	Title          string  `json:"title"`
	Genres         string  `json:"genres"`
	Year           int     `json:"year,omitempty"`
	Description    string  `json:"description,omitempty"`
	PosterURL      string  `json:"poster_url"`
	AgeRestriction string  `json:"age_restriction,omitempty"`
	Score          float32 `json:"score"`
}

// Response is the engine's answer to one request.
type Response struct {
	// Results is ordered by descending similarity. Filtered matches
	// always precede fallback fills, so scores are descending within
	// each portion but not necessarily across the boundary.
	Results []Result `json:"results"`

	// Fallback reports whether the filtered candidate pool came up short
	// and the global index filled the remainder.
	Fallback bool `json:"fallback"`
}
