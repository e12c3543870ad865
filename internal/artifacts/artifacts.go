// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

// Package artifacts provides persistence for offline build outputs: the
// embedding matrix, serialized indexes, and precomputed neighbor tables.
//
// Artifacts are serialized with gob, gzip-compressed, and stored with
// metadata (version, timestamp, checksum) so builders can detect existing
// outputs and skip rebuilds, and so corrupted files fail loudly at load.
//
// # Storage Format
//
// Each artifact is one file named {name}_v{version}.gob.gz containing a
// gob-encoded envelope of metadata plus compressed payload. Versions are
// monotonically increasing per artifact name.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package artifacts

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Well-known artifact names produced by the builders.
const (
	NameEmbeddings      = "embeddings"
	NameFlatIndex       = "flat_index"
	NameTFIDFNeighbors  = "tfidf_neighbors"
	NameDenseNeighbors  = "dense_neighbors"
	NameHybridNeighbors = "hybrid_neighbors"
)

// Metadata describes a stored artifact.
type Metadata struct {
	// Name is the artifact name (e.g. "embeddings").
	Name string `json:"name"`

	// Version is the artifact version (monotonically increasing).
	Version int `json:"version"`

	// BuiltAt is when the builder produced the artifact.
	BuiltAt time.Time `json:"built_at"`

	// SavedAt is when the artifact was written.
	SavedAt time.Time `json:"saved_at"`

	// RowCount is the number of catalog rows the artifact covers.
	RowCount int `json:"row_count"`

	// Dim is the vector dimension, where applicable.
	Dim int `json:"dim,omitempty"`

	// Checksum is the SHA-256 checksum of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`

	// BuildDurationMS is how long the build took.
	BuildDurationMS int64 `json:"build_duration_ms"`
}

// storedFile is the on-disk envelope for artifact files.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Store manages artifact persistence under a base directory.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	// Latest version per artifact name.
	versions map[string]int
}

// NewStore creates an artifact store at the given directory, scanning for
// existing artifacts.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for artifact storage
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}

	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan existing artifacts: %w", err)
	}
	return s, nil
}

// scan walks the base directory and records the latest version per name.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		if current, exists := s.versions[name]; !exists || version > current {
			s.versions[name] = version
		}
	}
	return nil
}

// parseFilename splits "{name}_v{version}.gob.gz" into its parts.
func parseFilename(filename string) (name string, version int, ok bool) {
	base, found := strings.CutSuffix(filename, ".gob.gz")
	if !found {
		return "", 0, false
	}

	idx := strings.LastIndex(base, "_v")
	if idx < 1 {
		return "", 0, false
	}

	if _, err := fmt.Sscanf(base[idx+2:], "%d", &version); err != nil || version < 1 {
		return "", 0, false
	}
	return base[:idx], version, true
}

// Save serializes and stores an artifact, assigning the next version.
// Returns the metadata of the written artifact.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *Store) Save(name string, data interface{}, meta Metadata) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", name, err)
	}
	rawData := buf.Bytes()

	hash := sha256.Sum256(rawData)
	meta.Checksum = hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(rawData); err != nil {
		return nil, fmt.Errorf("compress artifact %s: %w", name, err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	version := s.versions[name] + 1
	meta.Name = name
	meta.Version = version
	meta.SavedAt = time.Now()
	meta.SizeBytes = int64(compressed.Len())

	path := s.artifactPath(name, version)
	f, err := os.Create(path) //nolint:gosec // path is constructed from trusted name parameter
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after write surfaces via Encode

	sf := storedFile{Metadata: meta, CompressedData: compressed.Bytes()}
	if err := gob.NewEncoder(f).Encode(sf); err != nil {
		return nil, fmt.Errorf("write artifact file: %w", err)
	}

	s.versions[name] = version
	return &meta, nil
}

// Load reads an artifact by name into target. Version 0 loads the latest.
// The payload checksum is verified before decoding.
func (s *Store) Load(name string, version int, target interface{}) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		var ok bool
		version, ok = s.versions[name]
		if !ok {
			return nil, fmt.Errorf("no artifact found for %s", name)
		}
	}

	path := s.artifactPath(name, version)
	f, err := os.Open(path) //nolint:gosec // path is constructed from trusted name parameter
	if err != nil {
		return nil, fmt.Errorf("open artifact file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read artifact file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress artifact %s: %w", name, err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	rawData, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(rawData)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s v%d: expected %s, got %s",
			name, version, sf.Metadata.Checksum, checksum)
	}

	if err := gob.NewDecoder(bytes.NewReader(rawData)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return &sf.Metadata, nil
}

// Exists reports whether any version of the named artifact is stored.
// Builders use this for idempotent skip-if-present behavior.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.versions[name]
	return ok
}

// LatestVersion returns the latest stored version for an artifact.
func (s *Store) LatestVersion(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	version, ok := s.versions[name]
	return version, ok
}

// List returns metadata for the latest version of every stored artifact.
func (s *Store) List() ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metas []Metadata
	for name, version := range s.versions {
		f, err := os.Open(s.artifactPath(name, version)) //nolint:gosec // path from tracked names
		if err != nil {
			continue
		}

		var sf storedFile
		err = gob.NewDecoder(f).Decode(&sf)
		_ = f.Close() //nolint:errcheck // error on close after read is not actionable
		if err != nil {
			continue
		}
		metas = append(metas, sf.Metadata)
	}
	return metas, nil
}

// Delete removes a specific artifact version and recomputes the latest.
func (s *Store) Delete(name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.artifactPath(name, version)); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}

	if s.versions[name] != version {
		return nil
	}

	// The deleted version was the latest; rescan for the new latest.
	delete(s.versions, name)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName, v, ok := parseFilename(entry.Name())
		if !ok || entryName != name {
			continue
		}
		if current, exists := s.versions[name]; !exists || v > current {
			s.versions[name] = v
		}
	}
	return nil
}

// Prune removes old versions of an artifact, keeping the latest N.
func (s *Store) Prune(name string, keepVersions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepVersions < 1 {
		keepVersions = 1
	}
	if _, ok := s.versions[name]; !ok {
		return nil
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName, v, ok := parseFilename(entry.Name())
		if !ok || entryName != name {
			continue
		}
		versions = append(versions, v)
	}

	// Sort descending, keep the newest.
	for i := 0; i < len(versions)-1; i++ {
		for j := i + 1; j < len(versions); j++ {
			if versions[j] > versions[i] {
				versions[i], versions[j] = versions[j], versions[i]
			}
		}
	}
	for i := keepVersions; i < len(versions); i++ {
		_ = os.Remove(s.artifactPath(name, versions[i])) //nolint:errcheck // best-effort cleanup
	}
	return nil
}

// artifactPath returns the file path for an artifact version.
func (s *Store) artifactPath(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d.gob.gz", name, version))
}

// Neighbor is one precomputed similar movie: the stable movie identifier
// and its similarity score.
type Neighbor struct {
	MovieID string
	Score   float32
}

// NeighborTable maps a stable movie identifier to its precomputed nearest
// neighbors, ordered by descending score. Tables are keyed by derived
// movie id, never by row index, so they survive catalog reordering.
type NeighborTable struct {
	// Source names the builder that produced the table (tfidf, dense,
	// hybrid).
	Source string

	Neighbors map[string][]Neighbor
}

// Register gob types for serialization.
//
//nolint:gochecknoinits // gob.Register must be called in init for type registration
func init() {
	gob.Register(Metadata{})
	gob.Register(storedFile{})
	gob.Register(NeighborTable{})
	gob.Register(Neighbor{})
}
