// Package testutil loads the source fixtures under testdata/ for tests that
// need a realistic multi-file repository.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FixtureContext holds information about a loaded fixture.
type FixtureContext struct {
	// Language is the fixture language (e.g., "go")
	Language string

	// Root is a private copy of the fixture, safe to index in place.
	Root string

	// Source is the pristine fixture directory under testdata/.
	Source string
}

// LoadFixture copies testdata/fixtures/<lang> into a temporary directory,
// failing the test on error.
func LoadFixture(t *testing.T, lang string) *FixtureContext {
	t.Helper()
	return loadFrom(t, "fixtures", lang)
}

// LoadIncremental copies testdata/incremental/<lang>, the small fixture used
// to exercise edit-and-reindex cycles.
func LoadIncremental(t *testing.T, lang string) *FixtureContext {
	t.Helper()
	return loadFrom(t, "incremental", lang)
}

func loadFrom(t *testing.T, set, lang string) *FixtureContext {
	t.Helper()

	src := filepath.Join(getTestdataRoot(t), set, lang)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		t.Fatalf("Fixture directory not found: %s", src)
	}

	dst := t.TempDir()
	if err := copyTree(src, dst); err != nil {
		t.Fatalf("Failed to copy fixture %s: %v", src, err)
	}

	return &FixtureContext{
		Language: lang,
		Root:     dst,
		Source:   src,
	}
}

// Path returns the absolute path of a repo-relative file in the copy.
func (f *FixtureContext) Path(rel string) string {
	return filepath.Join(f.Root, filepath.FromSlash(rel))
}

// WriteFile replaces a file in the copy, creating parent directories.
func (f *FixtureContext) WriteFile(t *testing.T, rel string, content string) {
	t.Helper()
	p := f.Path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", p, err)
	}
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if rel != "." && isHiddenDir(d.Name()) {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// getTestdataRoot returns the absolute path to testdata/.
func getTestdataRoot(t *testing.T) string {
	t.Helper()

	// Get the directory of this source file
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get caller information")
	}

	// Navigate from internal/testutil to project root
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	root := filepath.Join(projectRoot, "testdata")

	if _, err := os.Stat(root); os.IsNotExist(err) {
		t.Fatalf("Testdata root not found: %s", root)
	}

	return root
}

// AvailableLanguages returns the fixture languages present under
// testdata/fixtures/.
func AvailableLanguages(t *testing.T) []string {
	t.Helper()

	root := filepath.Join(getTestdataRoot(t), "fixtures")
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("Failed to read fixtures directory: %v", err)
	}

	var langs []string
	for _, entry := range entries {
		if entry.IsDir() && !isHiddenDir(entry.Name()) {
			langs = append(langs, entry.Name())
		}
	}

	return langs
}

func isHiddenDir(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
