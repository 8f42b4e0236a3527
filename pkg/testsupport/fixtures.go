package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture reads a fixture file. The path is relative to the test package
// directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON reads a JSON fixture file into dest.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadRecords reads a JSON fixture holding a list of records, keyed by entity:
//
//	{"user": [{"id": "u1", "email": "a@x"}], "order": [...]}
func LoadRecords(t *testing.T, path string) map[string][]map[string]any {
	t.Helper()

	var records map[string][]map[string]any
	LoadFixtureJSON(t, path, &records)
	return records
}

// WriteFile writes content to name inside a directory removed when the test
// ends, and returns the file path.
func WriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// FixturePath returns the path of a file in the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
