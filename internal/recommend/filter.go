// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package recommend

import (
	"strings"

	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
)

// Policy holds the resolved filter tables: year buckets anchored to the
// reference year and certification allow-lists per age label.
type Policy struct {
	yearBuckets map[string]config.YearBucket
	ageRatings  map[string][]string
}

// NewPolicy resolves the filter policy from configuration.
func NewPolicy(cfg config.RecommendConfig) Policy {
	return Policy{
		yearBuckets: cfg.YearBuckets(),
		ageRatings:  cfg.AgeRatings,
	}
}

// Filter returns the row indices of catalog records matching the request,
// in row order. It applies genre, year-bucket, age-rating, and exclusion
// criteria; it is pure and does not consider similarity.
func Filter(c *catalog.Catalog, req *Request, policy Policy) []int {
	excluded := req.excludedIDs()

	genres := make([]string, 0, len(req.Genres))
	for _, g := range req.Genres {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, strings.ToLower(g))
		}
	}

	// Labels that do not resolve to a bucket are ignored; if none
	// resolve, year filtering stays inactive.
	buckets := make([]config.YearBucket, 0, len(req.Years))
	for _, label := range req.Years {
		if b, ok := policy.yearBuckets[label]; ok {
			buckets = append(buckets, b)
		}
	}

	var allowedCerts map[string]struct{}
	if req.AgeRating != "" {
		allowedCerts = make(map[string]struct{})
		for _, cert := range policy.ageRatings[req.AgeRating] {
			allowedCerts[cert] = struct{}{}
		}
		// An unknown age label resolves to an empty allow-list and
		// matches nothing. This asymmetry is deliberate: age filtering
		// is a safety rail, so a label we cannot resolve fails closed.
	}

	var rows []int
	for _, rec := range c.Records() {
		if _, skip := excluded[rec.MovieID]; skip {
			continue
		}
		if !matchGenres(rec.Genres, genres) {
			continue
		}
		if !matchYear(rec.Year, buckets) {
			continue
		}
		if !matchAge(rec.AgeRestriction, allowedCerts) {
			continue
		}
		rows = append(rows, rec.RowIndex)
	}
	return rows
}

// matchGenres reports whether the record's genre field contains ANY of
// the requested genres, case-insensitive.
func matchGenres(recordGenres string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	haystack := strings.ToLower(recordGenres)
	for _, g := range wanted {
		if strings.Contains(haystack, g) {
			return true
		}
	}
	return false
}

// matchYear reports whether the year falls in ANY requested bucket.
// Records without a year never match an active year filter.
func matchYear(year int, buckets []config.YearBucket) bool {
	if len(buckets) == 0 {
		return true
	}
	if year == 0 {
		return false
	}
	for _, b := range buckets {
		if b.Contains(year) {
			return true
		}
	}
	return false
}

// matchAge reports whether the certification is on the allow-list. A nil
// allow-list means no age filtering; records without a certification
// never match an active age filter.
func matchAge(cert string, allowed map[string]struct{}) bool {
	if allowed == nil {
		return true
	}
	if cert == "" {
		return false
	}
	_, ok := allowed[cert]
	return ok
}
