// Bachelors - Plot-Based Movie Recommendation Backend
// Copyright 2026 Lari2003
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Lari2003/bachelors

package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	table := NeighborTable{
		Source: "tfidf",
		Neighbors: map[string][]Neighbor{
			"tmdb_862": {{MovieID: "tmdb_863", Score: 0.91}},
		},
	}
	meta, err := s.Save(NameTFIDFNeighbors, table, Metadata{
		BuiltAt:  time.Now(),
		RowCount: 1,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.Version != 1 {
		t.Errorf("version = %d, want 1", meta.Version)
	}
	if meta.Checksum == "" {
		t.Error("checksum not set")
	}

	var loaded NeighborTable
	loadedMeta, err := s.Load(NameTFIDFNeighbors, 0, &loaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loadedMeta.Checksum != meta.Checksum {
		t.Errorf("checksum = %s, want %s", loadedMeta.Checksum, meta.Checksum)
	}
	if loaded.Source != "tfidf" {
		t.Errorf("source = %s, want tfidf", loaded.Source)
	}
	got := loaded.Neighbors["tmdb_862"]
	if len(got) != 1 || got[0].MovieID != "tmdb_863" {
		t.Errorf("neighbors = %v", got)
	}
}

func TestSaveIncrementsVersion(t *testing.T) {
	s := newTestStore(t)

	for want := 1; want <= 3; want++ {
		meta, err := s.Save("embeddings", []float32{1, 2}, Metadata{})
		if err != nil {
			t.Fatalf("Save %d: %v", want, err)
		}
		if meta.Version != want {
			t.Errorf("version = %d, want %d", meta.Version, want)
		}
	}

	v, ok := s.LatestVersion("embeddings")
	if !ok || v != 3 {
		t.Errorf("LatestVersion = %d/%v, want 3/true", v, ok)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)

	if s.Exists("embeddings") {
		t.Error("Exists true before any save")
	}
	if _, err := s.Save("embeddings", []float32{1}, Metadata{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists("embeddings") {
		t.Error("Exists false after save")
	}
}

func TestScanPicksUpExistingArtifacts(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := first.Save("flat_index", []float32{1}, Metadata{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := first.Save("flat_index", []float32{2}, Metadata{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store over the same directory sees version 2.
	second, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reopen: %v", err)
	}
	v, ok := second.LatestVersion("flat_index")
	if !ok || v != 2 {
		t.Errorf("LatestVersion after rescan = %d/%v, want 2/true", v, ok)
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Save("embeddings", []float32{1, 2, 3}, Metadata{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "embeddings_v1.gob.gz")
	data, err := os.ReadFile(path) //nolint:gosec // test-controlled path
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write corrupted artifact: %v", err)
	}

	var target []float32
	if _, err := s.Load("embeddings", 1, &target); err == nil {
		t.Error("Load succeeded on corrupted artifact")
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	s := newTestStore(t)
	var target []float32
	if _, err := s.Load("nothing", 0, &target); err == nil {
		t.Error("Load succeeded for missing artifact")
	}
}

func TestDeleteRecomputesLatest(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Save("embeddings", []float32{float32(i)}, Metadata{}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if err := s.Delete("embeddings", 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	v, ok := s.LatestVersion("embeddings")
	if !ok || v != 2 {
		t.Errorf("LatestVersion after delete = %d/%v, want 2/true", v, ok)
	}
}

func TestPruneKeepsLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Save("embeddings", []float32{float32(i)}, Metadata{}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if err := s.Prune("embeddings", 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d files after prune, want 2", len(entries))
	}

	var target []float32
	if _, err := s.Load("embeddings", 4, &target); err != nil {
		t.Errorf("latest version pruned: %v", err)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		name     string
		version  int
		ok       bool
	}{
		{"embeddings_v1.gob.gz", "embeddings", 1, true},
		{"tfidf_neighbors_v12.gob.gz", "tfidf_neighbors", 12, true},
		{"embeddings.gob.gz", "", 0, false},
		{"embeddings_v1.gob", "", 0, false},
		{"readme.txt", "", 0, false},
		{"_v1.gob.gz", "", 0, false},
	}
	for _, tt := range tests {
		name, version, ok := parseFilename(tt.filename)
		if name != tt.name || version != tt.version || ok != tt.ok {
			t.Errorf("parseFilename(%q) = %q/%d/%v, want %q/%d/%v",
				tt.filename, name, version, ok, tt.name, tt.version, tt.ok)
		}
	}
}
