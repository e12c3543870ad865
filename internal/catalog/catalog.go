// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package catalog holds the immutable in-memory movie table.
//
// The catalog is loaded once at startup from the cleaned movie CSV and is
// read-only for the lifetime of the process. Every record carries two
// identities: RowIndex, its position in this loaded instance (used to align
// with the embedding matrix, never stable across reloads), and MovieID, a
// derived string that is stable across reloads and catalog rebuilds.
// Filtering, exclusion, and deduplication always use MovieID.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MovieRecord is one row of the catalog.
type MovieRecord struct {
	// RowIndex is the position in the loaded catalog, aligned with the
	// embedding matrix row. Not stable across reloads.
	RowIndex int

	// MovieID is the derived stable identity (tmdb_* > imdb_* > ml_*).
	MovieID string

	// TmdbID is the TMDb numeric ID, 0 when absent.
	TmdbID int64

	// ImdbID is the IMDb identifier, "" when absent.
	ImdbID string

	// MovieLensID is the source-catalog numeric ID.
	MovieLensID int64

	// Title is the movie title.
	Title string

	// Genres is the free-text genre field, matched by substring.
	Genres string

	// Year is the release year, 0 when missing.
	Year int

	// Description is the plot description, "" when missing.
	Description string

	// PosterURL is the poster image URL, "" when missing.
	PosterURL string

	// AgeRestriction is the certification code (PG, R, ...), "" when missing.
	AgeRestriction string
}

// DeriveID computes the stable movie identity with tmdb > imdb > source-id
// precedence. The same inputs always produce the same identity.
func DeriveID(tmdbID int64, imdbID string, movieLensID int64) string {
	if tmdbID > 0 {
		return "tmdb_" + strconv.FormatInt(tmdbID, 10)
	}
	if imdbID != "" {
		return "imdb_" + imdbID
	}
	return "ml_" + strconv.FormatInt(movieLensID, 10)
}

// DedupKey returns the key used to collapse duplicate catalog rows before
// search: the TMDb ID when available, otherwise title and year.
func (m *MovieRecord) DedupKey() string {
	if m.TmdbID > 0 {
		return "tmdb_" + strconv.FormatInt(m.TmdbID, 10)
	}
	return m.Title + "|" + strconv.Itoa(m.Year)
}

// HasValidPoster reports whether the record carries a displayable poster.
// Records without one are never recommended.
func (m *MovieRecord) HasValidPoster() bool {
	return strings.HasPrefix(m.PosterURL, "http://") ||
		strings.HasPrefix(m.PosterURL, "https://")
}

// Catalog is the immutable movie table. Safe for concurrent reads.
type Catalog struct {
	records []MovieRecord
}

// New builds a catalog from pre-assembled records, assigning row indices
// and deriving identities. Used by tests and by the builders after
// metadata enrichment.
func New(records []MovieRecord) *Catalog {
	out := make([]MovieRecord, len(records))
	copy(out, records)
	for i := range out {
		out[i].RowIndex = i
		out[i].MovieID = DeriveID(out[i].TmdbID, out[i].ImdbID, out[i].MovieLensID)
	}
	return &Catalog{records: out}
}

// Load reads the cleaned movie CSV produced by the data pipeline.
// Expected columns: movieId, title, genres, year, description, poster_url,
// age_restriction, tmdbId, imdbId (header order is free; extra columns are
// ignored). A missing file is a startup-fatal error.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open movie table: %w", err)
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read movie table %s: %w", path, err)
	}
	return c, nil
}

// Read parses the movie table from r. Exposed separately from Load so the
// parser can be tested without touching the filesystem.
func Read(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"movieId", "title", "genres"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	records := make([]MovieRecord, 0, 1024)
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := MovieRecord{
			MovieLensID:    parseInt64(field(row, col, "movieId")),
			Title:          field(row, col, "title"),
			Genres:         field(row, col, "genres"),
			Year:           int(parseInt64(field(row, col, "year"))),
			Description:    field(row, col, "description"),
			PosterURL:      field(row, col, "poster_url"),
			AgeRestriction: field(row, col, "age_restriction"),
			TmdbID:         parseInt64(field(row, col, "tmdbId")),
			ImdbID:         field(row, col, "imdbId"),
		}
		records = append(records, rec)
	}

	return New(records), nil
}

// field returns the named column of row, or "" when the column is absent.
func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseInt64 parses a lenient integer field: "862", "862.0" (float-typed
// IDs survive the upstream CSV round trip), or "" for missing.
func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Record returns the record at row. The caller must not mutate it.
func (c *Catalog) Record(row int) *MovieRecord {
	return &c.records[row]
}

// Records returns all records in row order. The caller must not mutate
// the returned slice.
func (c *Catalog) Records() []MovieRecord {
	return c.records
}

// DedupRows collapses the given rows by DedupKey, preserving the first
// occurrence of each key in the supplied order.
func (c *Catalog) DedupRows(rows []int) []int {
	seen := make(map[string]struct{}, len(rows))
	out := make([]int, 0, len(rows))
	for _, row := range rows {
		key := c.records[row].DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}
