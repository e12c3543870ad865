// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package recommend implements the plot-based recommendation pipeline.
//
// # Architecture
//
// A request flows through four stages:
//
//   - Encode: the plot text is embedded by the sentence-encoder service
//   - Filter: genre, year-bucket, age-rating, and exclusion criteria
//     select candidate catalog rows (pure, no similarity involved)
//   - Search: an ephemeral flat index over the candidate subset returns
//     the nearest neighbors by inner product
//   - Fallback: when the filtered pool cannot fill the target size, the
//     remainder comes from the global index with over-fetch to absorb
//     skip attrition
//
// # Invariants
//
// Responses never contain excluded movies, duplicates (by TMDb ID or
// title+year), or records without a displayable poster, and hold at most
// the configured target size. All identity checks use the stable derived
// movie ID, never the row index.
//
// # Thread Safety
//
// The engine is immutable after construction and safe for concurrent
// use; every request builds its own subset index.
package recommend
