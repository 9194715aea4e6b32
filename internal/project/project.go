// Package project implements a thin composition: one Project per source
// root, owning an Indexer, a FileManager, and the Syncer that drains
// into its own Store.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"cxindex/internal/filemanager"
	"cxindex/internal/frontend"
	"cxindex/internal/indexer"
	"cxindex/internal/location"
	"cxindex/internal/logging"
	"cxindex/internal/store"
	"cxindex/internal/syncer"
	"cxindex/internal/watch"
)

// interningFileName and indexerFileName are the two restore blobs a
// Project persists under its DataDir: a LocationInterner snapshot and
// an Indexer restore blob.
const (
	interningFileName = "fileids"
	indexerFileName   = "indexer.json"
)

// ErrNotValid is returned by Unload on a Project that is no longer valid
// because it has already been unloaded.
var ErrNotValid = errors.New("project: not valid")

// Config configures a new Project.
type Config struct {
	// SrcRoot is the project's source root as supplied by the client
	// (e.g. a makefile path or a directory); it need not be absolute.
	SrcRoot string
	// DataDir is where this Project's Store file and restore blobs
	// live, normally dataDir/projects/<encoded-path>.
	DataDir string

	FrontEnd frontend.FrontEnd
	Logger   *logging.Logger

	IndexerEnabled     bool
	FileManagerEnabled bool
	WatchEnabled       bool

	ThreadCount  int
	IncludeGlobs []string
	ExcludeGlobs []string

	// OnJobsComplete, when set, is called with the Indexer's own
	// jobs_complete callback semantics: fired whenever a submitted
	// batch finishes draining.
	OnJobsComplete func()
}

// Project composes an Indexer, a FileManager, and a Syncer over one
// source root. A Project is valid once New returns without error;
// Unload invalidates it.
type Project struct {
	mu sync.RWMutex

	srcRoot         string
	resolvedSrcRoot string
	dataDir         string

	interner *location.Interner
	st       *store.Store
	syncer   *syncer.Syncer
	indexer  *indexer.Indexer
	fm       *filemanager.FileManager
	watcher  *watch.Notifier
	logger   *logging.Logger

	watchCancel context.CancelFunc
	watchDone   chan struct{}

	indexerEnabled     bool
	fileManagerEnabled bool

	valid bool
}

// New opens (or creates) the Project's Store, restores whatever state
// was previously persisted under DataDir, and starts its Syncer and
// (if enabled) Indexer and file watcher. A Project is valid exactly
// once New returns a nil error.
func New(cfg Config) (*Project, error) {
	resolved, err := filepath.Abs(cfg.SrcRoot)
	if err != nil {
		return nil, err
	}
	resolved = filepath.Clean(resolved)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "index.db"))
	if err != nil {
		return nil, err
	}

	interner := location.NewInterner()
	if err := restoreInterner(cfg.DataDir, interner); err != nil {
		_ = st.Close()
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(nil, 256)
	}

	syn := syncer.New(st, logger)
	syn.Start()

	p := &Project{
		srcRoot:            cfg.SrcRoot,
		resolvedSrcRoot:    resolved,
		dataDir:            cfg.DataDir,
		interner:           interner,
		st:                 st,
		syncer:             syn,
		indexerEnabled:     cfg.IndexerEnabled,
		fileManagerEnabled: cfg.FileManagerEnabled,
		logger:             logger,
	}

	if cfg.FileManagerEnabled {
		fm, err := filemanager.New(resolved, filemanager.Options{
			IncludeGlobs: cfg.IncludeGlobs,
			ExcludeGlobs: cfg.ExcludeGlobs,
		})
		if err != nil {
			syn.Stop()
			_ = st.Close()
			return nil, err
		}
		p.fm = fm
	}

	if cfg.IndexerEnabled {
		ix := indexer.New(indexer.Config{
			Interner:       interner,
			Store:          st,
			Syncer:         syn,
			FrontEnd:       cfg.FrontEnd,
			Logger:         logger,
			ThreadCount:    cfg.ThreadCount,
			OnJobsComplete: cfg.OnJobsComplete,
		})
		if err := restoreIndexer(cfg.DataDir, ix); err != nil {
			syn.Stop()
			_ = st.Close()
			return nil, err
		}
		ix.Start()
		p.indexer = ix

		if cfg.WatchEnabled && p.fm != nil {
			w, err := watch.New(resolved, p.fm.ShouldWatch, p.onFileChanged)
			if err != nil {
				ix.Stop()
				syn.Stop()
				_ = st.Close()
				return nil, err
			}
			p.watcher = w

			watchCtx, cancel := context.WithCancel(context.Background())
			p.watchCancel = cancel
			p.watchDone = make(chan struct{})
			go func() {
				defer close(p.watchDone)
				if err := w.Run(watchCtx); err != nil {
					logger.Errorf("project %s: watcher: %v", resolved, err)
				}
			}()
		}
	}

	p.valid = true
	return p, nil
}

func (p *Project) onFileChanged(path string) {
	if p.fm != nil {
		if rel, err := filepath.Rel(p.fm.Root(), path); err == nil {
			p.fm.Add(rel)
		}
	}
	if p.indexer != nil {
		if _, err := p.indexer.OnFileChanged(path); err != nil {
			p.logger.Errorf("project %s: on_file_changed %s: %v", p.resolvedSrcRoot, path, err)
		}
	}
}

// Indexer returns the Project's Indexer, or nil if IndexerEnabled was
// false.
func (p *Project) Indexer() *indexer.Indexer {
	return p.indexer
}

// FileManager returns the Project's FileManager, or nil if
// FileManagerEnabled was false.
func (p *Project) FileManager() *filemanager.FileManager {
	return p.fm
}

// Store returns the Project's Store, so Server can serve queries
// directly against it.
func (p *Project) Store() *store.Store {
	return p.st
}

// Interner returns the Project's LocationInterner.
func (p *Project) Interner() *location.Interner {
	return p.interner
}

// IsIndexed reports whether id names a file with a known
// FileInformation record.
func (p *Project) IsIndexed(id location.FileID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.valid || int(id) == 0 || int(id) > p.interner.Len() {
		return false
	}
	path := p.interner.Path(id)
	var found bool
	_ = p.st.View(func(tx *store.Tx) error {
		fi, err := tx.GetFileInformation(path)
		if err != nil {
			return nil
		}
		found = !fi.LastTouched.IsZero()
		return nil
	})
	return found
}

// SrcRoot returns the source root exactly as supplied to New.
func (p *Project) SrcRoot() string {
	return p.srcRoot
}

// ResolvedSrcRoot returns the absolute, cleaned form of SrcRoot used for
// prefix-matching and filesystem watching.
func (p *Project) ResolvedSrcRoot() string {
	return p.resolvedSrcRoot
}

// Valid reports whether this Project is still usable: true from a
// successful New until Unload.
func (p *Project) Valid() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valid
}

// Unload stops the Syncer (flushing whatever is pending), stops the
// Indexer, persists the final Interner and Indexer snapshots, and marks
// the Project invalid.
func (p *Project) Unload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid {
		return ErrNotValid
	}

	if p.watcher != nil {
		p.watchCancel()
		_ = p.watcher.Close()
		<-p.watchDone
	}
	if p.indexer != nil {
		p.indexer.Stop()
	}
	p.syncer.Stop()

	var firstErr error
	if err := saveInterner(p.dataDir, p.interner); err != nil && firstErr == nil {
		firstErr = err
	}
	if p.indexer != nil {
		if err := saveIndexer(p.dataDir, p.indexer); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.st.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	p.valid = false
	return firstErr
}

func restoreInterner(dataDir string, in *location.Interner) error {
	path := filepath.Join(dataDir, interningFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap location.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if err := in.Restore(snap); err != nil && !errors.Is(err, location.ErrVersionMismatch) {
		return err
	}
	return nil
}

func saveInterner(dataDir string, in *location.Interner) error {
	data, err := json.Marshal(in.Snapshot())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, interningFileName), data, 0o644)
}

func restoreIndexer(dataDir string, ix *indexer.Indexer) error {
	path := filepath.Join(dataDir, indexerFileName)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return ix.Restore(f)
}

func saveIndexer(dataDir string, ix *indexer.Indexer) error {
	f, err := os.Create(filepath.Join(dataDir, indexerFileName))
	if err != nil {
		return err
	}
	defer f.Close()
	return ix.Save(f)
}
