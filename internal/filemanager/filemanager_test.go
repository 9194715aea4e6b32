package filemanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestScanTracksSourceAndHeaderFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.c", "int x;")
	writeFile(t, root, "sub/b.hpp", "class B {};")
	writeFile(t, root, "README.md", "docs")
	writeFile(t, root, "build/generated.c", "int y;")

	fm, err := New(root, Options{})
	require.NoError(t, err)

	files := fm.Files()
	assert.Contains(t, files, "a.c")
	assert.Contains(t, files, "sub/b.hpp")
	assert.NotContains(t, files, "README.md")
	assert.NotContains(t, files, "build/generated.c")
}

func TestAddRemoveUpdateTrackedSet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.c", "int x;")

	fm, err := New(root, Options{})
	require.NoError(t, err)

	fm.Add("b.c")
	assert.True(t, fm.Contains("b.c"))

	fm.Add("notes.txt")
	assert.False(t, fm.Contains("notes.txt"))

	fm.Remove("a.c")
	assert.False(t, fm.Contains("a.c"))
}

func TestExcludeGlobsOverrideInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/lib.c", "int z;")

	fm, err := New(root, Options{ExcludeGlobs: []string{"vendor/**"}})
	require.NoError(t, err)

	assert.False(t, fm.Contains("vendor/lib.c"))
}

func TestShouldWatchResolvesRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.c", "int x;")

	fm, err := New(root, Options{})
	require.NoError(t, err)

	assert.True(t, fm.ShouldWatch(filepath.Join(root, "a.c")))
	assert.False(t, fm.ShouldWatch(filepath.Join(root, "a.md")))
	assert.False(t, fm.ShouldWatch(filepath.Join(root, "..", "outside.c")))
}
