// Package filemanager tracks the set of source files under a project's
// root that the indexer considers part of the tree. Matching is
// glob-based, using doublestar so include/exclude patterns can use "**"
// the way a real project's .gitignore-style rules usually do.
package filemanager

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultSourceGlobs matches the C/C++ translation-unit and header
// extensions a project's build normally compiles or includes.
var defaultSourceGlobs = []string{
	"**/*.c", "**/*.h", "**/*.cc", "**/*.cpp", "**/*.cxx",
	"**/*.hh", "**/*.hpp", "**/*.hxx",
}

var defaultSkippedDirs = map[string]struct{}{
	".git": {}, "build": {}, "out": {}, "cmake-build-debug": {},
}

// Options configures which files under a root are tracked.
type Options struct {
	// IncludeGlobs restricts tracking to files matching at least one
	// pattern. Empty means defaultSourceGlobs.
	IncludeGlobs []string
	// ExcludeGlobs drops files that would otherwise be tracked.
	ExcludeGlobs []string
}

// FileManager is the tree of known files under one project's source
// root.
type FileManager struct {
	root    string
	include []string
	exclude []string

	mu     sync.RWMutex
	tracked map[string]struct{}
}

// New scans root and builds a FileManager over every matching file found
// at construction time. Scan can be called again later to pick up
// additions the watcher did not itself report (e.g. after a branch
// switch).
func New(root string, opts Options) (*FileManager, error) {
	include := opts.IncludeGlobs
	if len(include) == 0 {
		include = defaultSourceGlobs
	}
	fm := &FileManager{
		root:    filepath.Clean(root),
		include: include,
		exclude: opts.ExcludeGlobs,
		tracked: make(map[string]struct{}),
	}
	if err := fm.Scan(); err != nil {
		return nil, err
	}
	return fm, nil
}

// Scan re-walks the source root and rebuilds the tracked-file set.
func (fm *FileManager) Scan() error {
	tracked := make(map[string]struct{})

	err := filepath.WalkDir(fm.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == fm.root {
			return nil
		}
		rel, relErr := filepath.Rel(fm.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := defaultSkippedDirs[d.Name()]; skip || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if fm.shouldTrack(rel) {
			tracked[rel] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fm.mu.Lock()
	fm.tracked = tracked
	fm.mu.Unlock()
	return nil
}

func (fm *FileManager) shouldTrack(rel string) bool {
	if anyMatch(fm.exclude, rel) {
		return false
	}
	return anyMatch(fm.include, rel)
}

func anyMatch(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// Add records rel (relative to root) as tracked, e.g. when the watcher
// reports a brand-new file that matches the project's source globs.
func (fm *FileManager) Add(rel string) {
	rel = filepath.ToSlash(rel)
	if !fm.shouldTrack(rel) {
		return
	}
	fm.mu.Lock()
	fm.tracked[rel] = struct{}{}
	fm.mu.Unlock()
}

// Remove drops rel from the tracked set, e.g. on a file deletion event.
func (fm *FileManager) Remove(rel string) {
	fm.mu.Lock()
	delete(fm.tracked, filepath.ToSlash(rel))
	fm.mu.Unlock()
}

// Contains reports whether rel is currently tracked.
func (fm *FileManager) Contains(rel string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	_, ok := fm.tracked[filepath.ToSlash(rel)]
	return ok
}

// Files returns every tracked path, sorted, relative to root.
func (fm *FileManager) Files() []string {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	out := make([]string, 0, len(fm.tracked))
	for rel := range fm.tracked {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Root returns the project's source root.
func (fm *FileManager) Root() string {
	return fm.root
}

// ShouldWatch adapts Contains to the watch.ShouldWatch signature, which
// takes an absolute path rather than a root-relative one.
func (fm *FileManager) ShouldWatch(absPath string) bool {
	rel, err := filepath.Rel(fm.root, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "..") {
		return false
	}
	return fm.shouldTrack(rel)
}
