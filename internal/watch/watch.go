// Package watch adapts fsnotify into a ChangeNotifier role: something
// outside the daemon's core that calls Indexer.OnFileChanged when a
// tracked file is written. Directories are watched recursively, events
// are filtered and debounced, then a single callback fires.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ShouldWatch reports whether path should be tracked. Projects supply
// this from their FileManager so the watcher only pays attention to
// files that are actually part of the indexed source tree.
type ShouldWatch func(path string) bool

// Notifier watches a project's source root and calls OnChange for every
// tracked file that is created or written, debounced so a burst of
// writes to the same file collapses into one call.
type Notifier struct {
	rootAbs string
	include ShouldWatch
	onChange func(path string)

	debounce *debouncer
	fsw      *fsnotify.Watcher

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts watching root. onChange is called (on an internal goroutine,
// one call per debounced path) whenever a tracked file changes; callers
// normally wire this straight to Indexer.OnFileChanged.
func New(root string, include ShouldWatch, onChange func(path string)) (*Notifier, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	rootAbs = filepath.Clean(rootAbs)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	n := &Notifier{
		rootAbs:  rootAbs,
		include:  include,
		onChange: onChange,
		debounce: newDebouncer(200 * time.Millisecond),
		fsw:      fsw,
		closed:   make(chan struct{}),
	}
	n.debounce.onFire = func(paths []string) {
		for _, p := range paths {
			n.onChange(p)
		}
	}

	if err := n.addExistingDirs(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return n, nil
}

// Run processes filesystem events until ctx is cancelled or Close is
// called.
func (n *Notifier) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.closed:
			return nil
		case ev, ok := <-n.fsw.Events:
			if !ok {
				return nil
			}
			n.handleEvent(ev)
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Close stops the watcher.
func (n *Notifier) Close() error {
	n.closeOnce.Do(func() { close(n.closed) })
	return n.fsw.Close()
}

func (n *Notifier) addExistingDirs() error {
	return filepath.WalkDir(n.rootAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return n.fsw.Add(p)
	})
}

func (n *Notifier) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			_ = n.addDirRecursive(ev.Name)
			return
		}
	}

	if n.include != nil && !n.include(ev.Name) {
		return
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
		n.debounce.push(ev.Name)
	}
}

func (n *Notifier) addDirRecursive(absDir string) error {
	absDir = filepath.Clean(absDir)
	return filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return n.fsw.Add(p)
	})
}
