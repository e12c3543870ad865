// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package metadata

import (
	"errors"
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// cacheKeyPrefix namespaces metadata entries in the badger store.
const cacheKeyPrefix = "tmdb:"

// Cache persists fetched movie metadata in badger so re-runs of the
// fetcher only hit the API for unseen IDs.
type Cache struct {
	db *badger.DB
}

// NewCache wraps an open badger database.
func NewCache(db *badger.DB) *Cache {
	return &Cache{db: db}
}

// OpenCache opens (or creates) a badger database at path.
func OpenCache(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open metadata cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(tmdbID int64) []byte {
	return []byte(cacheKeyPrefix + strconv.FormatInt(tmdbID, 10))
}

// Get returns the cached metadata for an ID, or ok=false on a miss.
func (c *Cache) Get(tmdbID int64) (*Movie, bool, error) {
	var movie Movie
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(tmdbID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &movie)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry %d: %w", tmdbID, err)
	}
	return &movie, true, nil
}

// Put stores metadata for an ID.
func (c *Cache) Put(tmdbID int64, movie *Movie) error {
	data, err := json.Marshal(movie)
	if err != nil {
		return fmt.Errorf("marshal cache entry %d: %w", tmdbID, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(tmdbID), data)
	})
	if err != nil {
		return fmt.Errorf("write cache entry %d: %w", tmdbID, err)
	}
	return nil
}
