// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package builder implements the offline index builders: TF-IDF and dense
// neighbor tables, and their hybrid fusion.
//
// Each builder is idempotent: it skips work when its output artifact
// already exists, and persists checkpoints while iterating so long runs
// can be monitored and resumed cheaply. All neighbor tables are keyed by
// the stable derived movie ID, never by row index, so they remain valid
// across catalog reorderings.
package builder

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lari2003/bachelors/internal/artifacts"
	"github.com/Lari2003/bachelors/internal/catalog"
	"github.com/Lari2003/bachelors/internal/config"
	"github.com/Lari2003/bachelors/internal/vecindex"
)

// englishStopwords are dropped during tokenization. The list is the
// common short function words; anything rarer is handled by IDF damping.
var englishStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"her": {}, "his": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "she": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"who": {}, "will": {}, "with": {},
}

// tokenize lowercases text and splits on non-alphanumeric runs, dropping
// stopwords and single-character tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := fields[:0]
	for _, tok := range fields {
		if len(tok) < 2 {
			continue
		}
		if _, stop := englishStopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Vectorizer converts documents into L2-normalized sparse TF-IDF vectors
// over a bounded vocabulary.
type Vectorizer struct {
	maxFeatures int

	// vocab maps term to column after Fit.
	vocab map[string]int
	idf   []float32
}

// NewVectorizer creates a vectorizer with a document-frequency-capped
// vocabulary of at most maxFeatures terms.
func NewVectorizer(maxFeatures int) (*Vectorizer, error) {
	if maxFeatures <= 0 {
		return nil, fmt.Errorf("max features must be positive, got %d", maxFeatures)
	}
	return &Vectorizer{maxFeatures: maxFeatures}, nil
}

// Dim returns the fitted vocabulary size.
func (v *Vectorizer) Dim() int {
	return len(v.idf)
}

// Fit builds the vocabulary from the corpus: the maxFeatures terms with
// the highest document frequency, ties broken alphabetically so fitting
// is deterministic.
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return fmt.Errorf("empty corpus")
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return fmt.Errorf("corpus produced no terms")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > v.maxFeatures {
		terms = terms[:v.maxFeatures]
	}

	// Columns in alphabetical order for stable vector layouts.
	sort.Strings(terms)
	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float32, len(terms))
	n := float64(len(docs))
	for col, term := range terms {
		v.vocab[term] = col
		// Smoothed IDF keeps ubiquitous terms from zeroing out.
		v.idf[col] = float32(math.Log((1+n)/(1+float64(df[term]))) + 1)
	}
	return nil
}

// Transform converts one document into an L2-normalized sparse vector.
// Out-of-vocabulary terms are dropped; a document with no known terms
// yields an empty vector.
func (v *Vectorizer) Transform(doc string) vecindex.SparseVector {
	counts := make(map[int]int)
	for _, tok := range tokenize(doc) {
		if col, ok := v.vocab[tok]; ok {
			counts[col]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	vec := make(vecindex.SparseVector, 0, len(counts))
	for col, count := range counts {
		vec = append(vec, vecindex.TermWeight{
			Term:   col,
			Weight: float32(count) * v.idf[col],
		})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].Term < vec[j].Term })

	var norm float64
	for _, tw := range vec {
		norm += float64(tw.Weight) * float64(tw.Weight)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i].Weight *= inv
		}
	}
	return vec
}

// TFIDFBuilder produces the TF-IDF neighbor table artifact.
type TFIDFBuilder struct {
	cfg    config.BuilderConfig
	store  *artifacts.Store
	logger zerolog.Logger
}

// NewTFIDFBuilder creates the builder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTFIDFBuilder(cfg config.BuilderConfig, store *artifacts.Store, logger zerolog.Logger) *TFIDFBuilder {
	return &TFIDFBuilder{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "builder_tfidf").Logger(),
	}
}

// Build vectorizes the catalog descriptions, trains the IVF index on a
// bounded sample, inserts rows in batches, and writes the top-K neighbor
// table. Skips entirely when the output artifact already exists.
func (b *TFIDFBuilder) Build(ctx context.Context, cat *catalog.Catalog) error {
	if b.store.Exists(artifacts.NameTFIDFNeighbors) {
		b.logger.Info().Msg("tfidf neighbor table exists, skipping")
		return nil
	}
	start := time.Now()

	docs := documents(cat)
	vectorizer, err := NewVectorizer(b.cfg.TFIDF.MaxFeatures)
	if err != nil {
		return err
	}
	if err := vectorizer.Fit(docs); err != nil {
		return fmt.Errorf("fit vectorizer: %w", err)
	}
	b.logger.Info().
		Int("vocabulary", vectorizer.Dim()).
		Int("documents", len(docs)).
		Msg("vectorizer fitted")

	vectors := make([]vecindex.SparseVector, len(docs))
	for i, doc := range docs {
		vectors[i] = vectorizer.Transform(doc)
	}

	index, err := vecindex.NewIVF(vectorizer.Dim(), b.cfg.TFIDF.Clusters)
	if err != nil {
		return err
	}
	if err := index.Train(trainingSample(vectors, b.cfg.TFIDF.TrainSample)); err != nil {
		return fmt.Errorf("train index: %w", err)
	}
	for begin := 0; begin < len(vectors); begin += b.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := begin + b.cfg.BatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := index.Add(vectors[begin:end]...); err != nil {
			return fmt.Errorf("insert batch at %d: %w", begin, err)
		}
	}
	b.logger.Info().Int("indexed", index.Len()).Msg("index populated")

	table := artifacts.NeighborTable{
		Source:    "tfidf",
		Neighbors: make(map[string][]artifacts.Neighbor, cat.Len()),
	}
	search := func(row int) ([]vecindex.Hit, error) {
		return index.Search(vectors[row], b.cfg.TopK+1, b.cfg.TFIDF.Probes)
	}
	if err := b.fillTable(ctx, cat, &table, search); err != nil {
		return err
	}

	_, err = b.store.Save(artifacts.NameTFIDFNeighbors, table, artifacts.Metadata{
		BuiltAt:         start,
		RowCount:        cat.Len(),
		Dim:             vectorizer.Dim(),
		BuildDurationMS: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("save neighbor table: %w", err)
	}
	b.logger.Info().Dur("elapsed", time.Since(start)).Msg("tfidf build complete")
	return nil
}

// fillTable runs the per-row neighbor search in batches, excluding each
// movie from its own neighbor list and checkpointing periodically.
func (b *TFIDFBuilder) fillTable(
	ctx context.Context,
	cat *catalog.Catalog,
	table *artifacts.NeighborTable,
	search func(row int) ([]vecindex.Hit, error),
) error {
	batches := 0
	for begin := 0; begin < cat.Len(); begin += b.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := begin + b.cfg.BatchSize
		if end > cat.Len() {
			end = cat.Len()
		}

		for row := begin; row < end; row++ {
			hits, err := search(row)
			if err != nil {
				return fmt.Errorf("search row %d: %w", row, err)
			}
			table.Neighbors[cat.Record(row).MovieID] = toNeighbors(cat, hits, row, b.cfg.TopK)
		}

		batches++
		if b.cfg.CheckpointEvery > 0 && batches%b.cfg.CheckpointEvery == 0 {
			if err := saveCheckpoint(b.store, table, end, cat.Len()); err != nil {
				return err
			}
			b.logger.Info().
				Int("rows_done", end).
				Int("rows_total", cat.Len()).
				Msg("checkpoint saved")
		}
	}
	return nil
}

// documents returns the text indexed per row: the description, or the
// title when the description is missing so every row stays searchable.
func documents(cat *catalog.Catalog) []string {
	docs := make([]string, cat.Len())
	for i, rec := range cat.Records() {
		if rec.Description != "" {
			docs[i] = rec.Description
		} else {
			docs[i] = rec.Title
		}
	}
	return docs
}

// trainingSample returns up to limit vectors drawn with a fixed seed so
// training is reproducible and memory-bounded.
func trainingSample(vectors []vecindex.SparseVector, limit int) []vecindex.SparseVector {
	if limit <= 0 || limit >= len(vectors) {
		return vectors
	}
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic sampling, not cryptography
	perm := rng.Perm(len(vectors))
	sample := make([]vecindex.SparseVector, limit)
	for i := 0; i < limit; i++ {
		sample[i] = vectors[perm[i]]
	}
	return sample
}

// toNeighbors converts hits to identity-keyed neighbors, dropping the
// query row itself and truncating to topK.
func toNeighbors(cat *catalog.Catalog, hits []vecindex.Hit, selfRow, topK int) []artifacts.Neighbor {
	out := make([]artifacts.Neighbor, 0, topK)
	for _, h := range hits {
		if h.Row == selfRow {
			continue
		}
		out = append(out, artifacts.Neighbor{
			MovieID: cat.Record(h.Row).MovieID,
			Score:   h.Score,
		})
		if len(out) == topK {
			break
		}
	}
	return out
}

// saveCheckpoint persists a partial table under a checkpoint name.
func saveCheckpoint(store *artifacts.Store, table *artifacts.NeighborTable, rowsDone, rowsTotal int) error {
	_, err := store.Save(table.Source+"_checkpoint", *table, artifacts.Metadata{
		BuiltAt:  time.Now(),
		RowCount: rowsDone,
	})
	if err != nil {
		return fmt.Errorf("save checkpoint at %d/%d: %w", rowsDone, rowsTotal, err)
	}
	return nil
}
