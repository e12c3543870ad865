// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package recommend

import (
	"testing"

	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
)

func testPolicy() Policy {
	return NewPolicy(config.RecommendConfig{
		ReferenceYear: 2025,
		AgeRatings: map[string][]string{
			"All ages":    {"G", "PG"},
			"Teens(13+)":  {"PG-13"},
			"Mature(16+)": {"R"},
			"Adults(18+)": {"NC-17", "18", "TV-MA"},
		},
	})
}

func filterCatalog() *catalog.Catalog {
	return catalog.New([]catalog.MovieRecord{
		{TmdbID: 1, Title: "Space Saga", Genres: "Sci-Fi|Adventure", Year: 2024, AgeRestriction: "PG-13"},
		{TmdbID: 2, Title: "Quiet Drama", Genres: "Drama", Year: 2018, AgeRestriction: "R"},
		{TmdbID: 3, Title: "Old Comedy", Genres: "Comedy|Romance", Year: 1999, AgeRestriction: "PG"},
		{TmdbID: 4, Title: "Unrated Indie", Genres: "Drama|Thriller", Year: 2021, AgeRestriction: ""},
		{TmdbID: 5, Title: "Timeless Doc", Genres: "Documentary", Year: 0, AgeRestriction: "G"},
	})
}

func rowsToIDs(c *catalog.Catalog, rows []int) []string {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = c.Record(row).MovieID
	}
	return ids
}

func TestFilterNoCriteriaReturnsAll(t *testing.T) {
	c := filterCatalog()
	rows := Filter(c, &Request{Plot: "x"}, testPolicy())
	if len(rows) != c.Len() {
		t.Errorf("got %d rows, want %d", len(rows), c.Len())
	}
}

func TestFilterGenreSubstringAnyMatch(t *testing.T) {
	c := filterCatalog()

	rows := Filter(c, &Request{Genres: []string{"sci-fi", "comedy"}}, testPolicy())
	ids := rowsToIDs(c, rows)
	if len(ids) != 2 || ids[0] != "tmdb_1" || ids[1] != "tmdb_3" {
		t.Errorf("genre filter returned %v, want [tmdb_1 tmdb_3]", ids)
	}

	// Case-insensitive substring: "rom" matches "Romance".
	rows = Filter(c, &Request{Genres: []string{"ROM"}}, testPolicy())
	if len(rows) != 1 || c.Record(rows[0]).MovieID != "tmdb_3" {
		t.Errorf("substring genre filter returned %v", rowsToIDs(c, rows))
	}
}

func TestFilterYearBuckets(t *testing.T) {
	c := filterCatalog()
	tests := []struct {
		name  string
		years []string
		want  []string
	}{
		{"last year", []string{"Last year"}, []string{"tmdb_1"}},
		{"last 10 years", []string{"Last 10 years"}, []string{"tmdb_1", "tmdb_2", "tmdb_4"}},
		{"older", []string{"Older"}, []string{"tmdb_3"}},
		{"union of buckets", []string{"Last year", "Older"}, []string{"tmdb_1", "tmdb_3"}},
		{"unknown label leaves year filter inactive", []string{"Last century"}, []string{"tmdb_1", "tmdb_2", "tmdb_3", "tmdb_4", "tmdb_5"}},
		{"unknown label alongside known is ignored", []string{"Last century", "Older"}, []string{"tmdb_3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Filter(c, &Request{Years: tt.years}, testPolicy())
			ids := rowsToIDs(c, rows)
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("got %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestFilterUnknownYearLabelKeepsOtherCriteria(t *testing.T) {
	c := filterCatalog()
	rows := Filter(c, &Request{Genres: []string{"drama"}, Years: []string{"Last century"}}, testPolicy())
	ids := rowsToIDs(c, rows)
	if len(ids) != 2 || ids[0] != "tmdb_2" || ids[1] != "tmdb_4" {
		t.Errorf("got %v, want [tmdb_2 tmdb_4] (genre filter active, year filter inactive)", ids)
	}
}

func TestFilterYearlessRecordExcludedByYearFilter(t *testing.T) {
	c := filterCatalog()
	rows := Filter(c, &Request{Years: []string{"Last 10 years"}}, testPolicy())
	for _, row := range rows {
		if c.Record(row).MovieID == "tmdb_5" {
			t.Error("record without a year matched an active year filter")
		}
	}
}

func TestFilterAgeRating(t *testing.T) {
	c := filterCatalog()

	rows := Filter(c, &Request{AgeRating: "All ages"}, testPolicy())
	ids := rowsToIDs(c, rows)
	if len(ids) != 2 || ids[0] != "tmdb_3" || ids[1] != "tmdb_5" {
		t.Errorf("All ages returned %v, want [tmdb_3 tmdb_5]", ids)
	}

	// Unknown label fails closed.
	if rows := Filter(c, &Request{AgeRating: "Everyone"}, testPolicy()); len(rows) != 0 {
		t.Errorf("unknown age label matched %v", rowsToIDs(c, rows))
	}

	// Uncertified records never match an active age filter.
	rows = Filter(c, &Request{AgeRating: "Mature(16+)"}, testPolicy())
	for _, row := range rows {
		if c.Record(row).AgeRestriction == "" {
			t.Error("uncertified record matched an active age filter")
		}
	}
}

func TestFilterExclusions(t *testing.T) {
	c := filterCatalog()
	req := &Request{
		Exclude: Exclusions{
			Liked:    []string{"tmdb_1"},
			Disliked: []string{"tmdb_2"},
		},
	}
	rows := Filter(c, req, testPolicy())
	for _, row := range rows {
		id := c.Record(row).MovieID
		if id == "tmdb_1" || id == "tmdb_2" {
			t.Errorf("excluded movie %s in filtered rows", id)
		}
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows, want 3", len(rows))
	}
}

func TestFilterCombinedCriteria(t *testing.T) {
	c := filterCatalog()
	req := &Request{
		Genres:    []string{"drama"},
		Years:     []string{"Last 10 years"},
		AgeRating: "Mature(16+)",
	}
	rows := Filter(c, req, testPolicy())
	ids := rowsToIDs(c, rows)
	if len(ids) != 1 || ids[0] != "tmdb_2" {
		t.Errorf("combined filter returned %v, want [tmdb_2]", ids)
	}
}
