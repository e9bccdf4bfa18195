package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	path := WriteFile(t, "test.txt", []byte("test fixture content"))

	result := LoadFixture(t, path)
	if string(result) != "test fixture content" {
		t.Errorf("expected %q, got %q", "test fixture content", result)
	}
}

func TestLoadFixture_NonExistentFile(t *testing.T) {
	// LoadFixture calls t.Fatalf, so check the underlying behavior
	_, err := os.ReadFile("non-existent-file.txt")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := WriteFile(t, "test.json", []byte(`{"name":"test","value":42}`))

	var result map[string]any
	LoadFixtureJSON(t, path, &result)

	if result["name"] != "test" {
		t.Errorf("expected name=test, got %v", result["name"])
	}
	if result["value"] != float64(42) { // JSON unmarshals numbers as float64
		t.Errorf("expected value=42, got %v", result["value"])
	}
}

func TestLoadCatalog(t *testing.T) {
	c := LoadCatalog(t, FixturePath("catalog.json"))

	cached := c.CachedMap()
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached tracks, got %d", len(cached))
	}
	if cached["a"].Title != "Windowlicker" {
		t.Errorf("expected Windowlicker, got %q", cached["a"].Title)
	}
	if got := c.RemoteMap()["d"].Version; got != 2 {
		t.Errorf("expected remote version 2, got %d", got)
	}
	if len(c.Saved) != 2 {
		t.Errorf("expected 2 saved ids, got %v", c.Saved)
	}
}

func TestFixturePath(t *testing.T) {
	want := filepath.Join("testdata", "catalog.json")
	if got := FixturePath("catalog.json"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
