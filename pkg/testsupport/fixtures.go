package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Track is the entity shared by package tests.
type Track struct {
	ID         string `json:"id" msgpack:"id"`
	Title      string `json:"title" msgpack:"title"`
	Artist     string `json:"artist" msgpack:"artist"`
	Album      string `json:"album" msgpack:"album"`
	DurationMS int    `json:"duration_ms" msgpack:"duration_ms"`
	Version    int    `json:"version" msgpack:"version"`
}

// Catalog splits tracks between what the local cache and the remote know.
type Catalog struct {
	Cached []Track  `json:"cached"`
	Remote []Track  `json:"remote"`
	Saved  []string `json:"saved"`
}

// CachedMap returns the cached tracks keyed by id.
func (c Catalog) CachedMap() map[string]Track {
	return byID(c.Cached)
}

// RemoteMap returns the remote tracks keyed by id.
func (c Catalog) RemoteMap() map[string]Track {
	return byID(c.Remote)
}

func byID(tracks []Track) map[string]Track {
	out := make(map[string]Track, len(tracks))
	for _, t := range tracks {
		out[t.ID] = t
	}
	return out
}

// LoadCatalog loads a Catalog fixture.
func LoadCatalog(t *testing.T, path string) Catalog {
	t.Helper()

	var c Catalog
	LoadFixtureJSON(t, path, &c)
	return c
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// WriteFile writes content to name inside a fresh temporary directory and
// returns the full path. The directory is removed when the test ends.
func WriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}

	return path
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
