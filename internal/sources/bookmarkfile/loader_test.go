package bookmarkfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeImportFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write import file: %v", err)
	}
	return path
}

func TestLoaderParsesFile(t *testing.T) {
	path := writeImportFile(t, `
links:
  - url: https://example.com/a
    title: First
    space: reading
  - url: https://example.com/b
`)

	file, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(file.Links) != 2 {
		t.Fatalf("links = %d, want 2", len(file.Links))
	}
	if file.Links[0].Title != "First" || file.Links[0].Space != "reading" {
		t.Errorf("first entry = %+v", file.Links[0])
	}
	if file.Links[1].Title != "" {
		t.Errorf("second entry title = %q, want empty", file.Links[1].Title)
	}
}

func TestLoaderMissingFile(t *testing.T) {
	if _, err := NewLoader("/does/not/exist.yaml").Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoaderEmptyFile(t *testing.T) {
	path := writeImportFile(t, `links: []`)
	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected error for empty import file")
	}
}

func TestLoaderMalformedYAML(t *testing.T) {
	path := writeImportFile(t, `links: [`)
	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
