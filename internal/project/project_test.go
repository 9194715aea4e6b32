package project

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxindex/internal/frontend"
	"cxindex/internal/indexerjob"
)

func newTestProject(t *testing.T, srcRoot string, onJobsComplete func()) *Project {
	t.Helper()
	fe := frontend.NewTextScanFrontEnd(map[string]string{
		filepath.Join(srcRoot, "a.c"): "int foo(void) {\n  return 0;\n}\n",
	})
	p, err := New(Config{
		SrcRoot:            srcRoot,
		DataDir:            t.TempDir(),
		FrontEnd:           fe,
		IndexerEnabled:     true,
		FileManagerEnabled: true,
		ThreadCount:        2,
		OnJobsComplete:     onJobsComplete,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if p.Valid() {
			_ = p.Unload()
		}
	})
	return p
}

func TestNewProjectIsValidAndResolvesRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.c"), []byte("int x;"), 0o644))

	p := newTestProject(t, root, nil)
	assert.True(t, p.Valid())
	assert.Equal(t, root, p.SrcRoot())

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = root
	}
	assert.Equal(t, filepath.Clean(resolved), p.ResolvedSrcRoot())
}

func TestIsIndexedReflectsIndexerState(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.c"), []byte("int foo(void) { return 0; }"), 0o644))

	done := make(chan struct{}, 1)
	p := newTestProject(t, root, func() { done <- struct{}{} })

	aPath := filepath.Join(root, "a.c")
	aID := p.Interner().InsertFile(aPath)
	assert.False(t, p.IsIndexed(aID))

	p.Indexer().Index(aPath, nil, indexerjob.Makefile)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs_complete")
	}
	require.NoError(t, p.syncer.Flush())

	assert.True(t, p.IsIndexed(aID))
}

func TestUnloadInvalidatesAndPersistsState(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.c"), []byte("int foo(void) { return 0; }"), 0o644))

	dataDir := t.TempDir()
	fe := frontend.NewTextScanFrontEnd(map[string]string{
		filepath.Join(root, "a.c"): "int foo(void) { return 0; }",
	})
	done := make(chan struct{}, 1)
	p, err := New(Config{
		SrcRoot:            root,
		DataDir:            dataDir,
		FrontEnd:           fe,
		IndexerEnabled:     true,
		FileManagerEnabled: true,
		ThreadCount:        2,
		OnJobsComplete:     func() { done <- struct{}{} },
	})
	require.NoError(t, err)

	aPath := filepath.Join(root, "a.c")
	p.Indexer().Index(aPath, nil, indexerjob.Makefile)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs_complete")
	}

	require.NoError(t, p.Unload())
	assert.False(t, p.Valid())

	assert.FileExists(t, filepath.Join(dataDir, interningFileName))
	assert.FileExists(t, filepath.Join(dataDir, indexerFileName))

	assert.ErrorIs(t, p.Unload(), ErrNotValid)
}
