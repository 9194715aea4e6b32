// Package indexer implements the per-project job scheduler: it owns the
// pending/in-flight/dirty FileId bookkeeping, admits bounded concurrent
// IndexerJobs through a semaphore-gated pool, and computes the
// reverse-dependency closure a header change needs reindexed.
package indexer

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"cxindex/internal/frontend"
	"cxindex/internal/indexerjob"
	"cxindex/internal/location"
	"cxindex/internal/logging"
	"cxindex/internal/store"
	"cxindex/internal/symbol"
	"cxindex/internal/syncer"
)

// DefaultThreadCount is used when Config.ThreadCount is unset.
const DefaultThreadCount = 4

// defaultQueueSize bounds the intake channels; large enough that a single
// makefile submission burst never blocks the submitting goroutine.
const defaultQueueSize = 4096

type workItem struct {
	fileID  location.FileID
	path    string
	args    []string
	jobType indexerjob.Type
}

type session struct {
	active    bool
	expected  int
	completed int
}

// Config configures a new Indexer. Interner, Store, Syncer, and FrontEnd
// are shared with the rest of the owning Project.
type Config struct {
	Interner       *location.Interner
	Store          *store.Store
	Syncer         *syncer.Syncer
	FrontEnd       frontend.FrontEnd
	Logger         *logging.Logger
	ThreadCount    int
	QueueSize      int
	OnJobsComplete func()
}

// Indexer is the per-project job scheduler.
type Indexer struct {
	interner *location.Interner
	st       *store.Store
	syncer   *syncer.Syncer
	fe       frontend.FrontEnd
	logger   *logging.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	pending  map[location.FileID]struct{}
	inFlight map[location.FileID]*indexerjob.Job
	dirty    map[location.FileID]indexerjob.Type
	sources  map[location.FileID]workItem
	session  session

	normalQueue chan workItem
	dumpQueue   chan workItem

	wg      sync.WaitGroup
	stop    chan struct{}
	stopped bool

	onJobsComplete func()
}

// New builds an Indexer. Call Start before submitting work with Index.
func New(cfg Config) *Indexer {
	threadCount := cfg.ThreadCount
	if threadCount <= 0 {
		threadCount = DefaultThreadCount
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(nil, 256)
	}

	return &Indexer{
		interner:       cfg.Interner,
		st:             cfg.Store,
		syncer:         cfg.Syncer,
		fe:             cfg.FrontEnd,
		logger:         logger,
		sem:            semaphore.NewWeighted(int64(threadCount)),
		pending:        make(map[location.FileID]struct{}),
		inFlight:       make(map[location.FileID]*indexerjob.Job),
		dirty:          make(map[location.FileID]indexerjob.Type),
		sources:        make(map[location.FileID]workItem),
		normalQueue:    make(chan workItem, queueSize),
		dumpQueue:      make(chan workItem, queueSize),
		stop:           make(chan struct{}),
		onJobsComplete: cfg.OnJobsComplete,
	}
}

// Start launches the dispatch loop that drains the intake queues.
func (ix *Indexer) Start() {
	ix.wg.Add(1)
	go ix.dispatchLoop()
}

// Stop signals the dispatch loop to exit and waits for it and every
// currently running job to finish. It does not abort in-flight jobs.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if ix.stopped {
		ix.mu.Unlock()
		return
	}
	ix.stopped = true
	ix.mu.Unlock()

	close(ix.stop)
	ix.wg.Wait()
}

// Index canonicalizes path, interns it, and enqueues (source_file,
// compile_args, job_type) for indexing. A file already in flight is
// instead marked dirty so onJobFinished re-enqueues it once the current
// job finishes; a file already pending is a no-op.
func (ix *Indexer) Index(path string, args []string, jobType indexerjob.Type) {
	path = filepath.Clean(path)
	fileID := ix.interner.InsertFile(path)
	item := workItem{fileID: fileID, path: path, args: args, jobType: jobType}

	ix.mu.Lock()
	if _, inFlight := ix.inFlight[fileID]; inFlight {
		ix.dirty[fileID] = jobType
		ix.sources[fileID] = item
		ix.mu.Unlock()
		return
	}
	if _, alreadyPending := ix.pending[fileID]; alreadyPending {
		ix.mu.Unlock()
		return
	}
	ix.pending[fileID] = struct{}{}
	ix.sources[fileID] = item
	if ix.session.active {
		ix.session.expected++
	}
	ix.mu.Unlock()

	ix.enqueue(item)
}

func (ix *Indexer) enqueue(item workItem) {
	if item.jobType == indexerjob.Dump {
		ix.dumpQueue <- item
		return
	}
	ix.normalQueue <- item
}

// BeginMakefile opens a makefile session: subsequent Index calls increment
// the session's expected count until EndMakefile closes it.
func (ix *Indexer) BeginMakefile() {
	ix.mu.Lock()
	ix.session = session{active: true}
	ix.mu.Unlock()
}

// EndMakefile closes the current session and returns the number of
// sources submitted to it. It does not wait for those jobs to finish.
func (ix *Indexer) EndMakefile() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.session.active = false
	return ix.session.expected
}

// dispatchLoop is the Indexer's single dispatching goroutine: it prefers
// Dump jobs over Makefile/Dirty jobs by checking the dump queue
// non-blockingly before falling back to a fair select across both
// queues.
func (ix *Indexer) dispatchLoop() {
	defer ix.wg.Done()
	for {
		select {
		case <-ix.stop:
			return
		case item := <-ix.dumpQueue:
			ix.dispatch(item)
			continue
		default:
		}

		select {
		case <-ix.stop:
			return
		case item := <-ix.dumpQueue:
			ix.dispatch(item)
		case item := <-ix.normalQueue:
			ix.dispatch(item)
		}
	}
}

func (ix *Indexer) dispatch(item workItem) {
	if err := ix.sem.Acquire(context.Background(), 1); err != nil {
		return
	}

	job := indexerjob.New(item.path, item.args, item.jobType, ix.interner, ix.fe, ix.syncer)

	ix.mu.Lock()
	delete(ix.pending, item.fileID)
	ix.inFlight[item.fileID] = job
	ix.mu.Unlock()

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer ix.sem.Release(1)

		status, err := job.Run(context.Background())
		if err != nil {
			ix.logger.Errorf("indexerjob %s: %v", item.path, err)
		}
		ix.onJobFinished(item.fileID, status)
	}()
}

// onJobFinished drops the file from in-flight, re-enqueues it once if
// it was marked dirty while running, and signals jobs_complete once
// both the queue and in-flight set are empty.
func (ix *Indexer) onJobFinished(fileID location.FileID, status indexerjob.Status) {
	ix.mu.Lock()
	delete(ix.inFlight, fileID)
	ix.session.completed++

	var requeue *workItem
	if jobType, isDirty := ix.dirty[fileID]; isDirty {
		delete(ix.dirty, fileID)
		if item, ok := ix.sources[fileID]; ok {
			item.jobType = jobType
			ix.pending[fileID] = struct{}{}
			requeue = &item
		}
	}
	jobsComplete := len(ix.pending) == 0 && len(ix.inFlight) == 0
	ix.mu.Unlock()

	_ = status

	if requeue != nil {
		ix.enqueue(*requeue)
	}
	if jobsComplete && ix.onJobsComplete != nil {
		ix.onJobsComplete()
	}
}

// OnFileChanged is the external watcher's entry point: it is treated as
// reindex(path, exact-match, not-regex).
func (ix *Indexer) OnFileChanged(path string) (int, error) {
	path = filepath.Clean(path)
	return ix.reindexWithMatcher(func(p string) bool { return p == path })
}

// Reindex matches every known file's path by substring or regex and, for
// each hit, reindexes the transitive reverse-dependency closure computed
// from the Dependency table.
func (ix *Indexer) Reindex(pattern string, isRegex bool) (int, error) {
	match, err := buildMatcher(pattern, isRegex)
	if err != nil {
		return 0, err
	}
	return ix.reindexWithMatcher(match)
}

func buildMatcher(pattern string, isRegex bool) (func(string) bool, error) {
	if isRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}
	return func(s string) bool { return strings.Contains(s, pattern) }, nil
}

func (ix *Indexer) reindexWithMatcher(match func(string) bool) (int, error) {
	roots := make(map[location.FileID]struct{})

	err := ix.st.View(func(tx *store.Tx) error {
		if err := tx.ForEach(store.TableFileInformation, func(key, _ []byte) error {
			if match(string(key)) {
				roots[ix.interner.InsertFile(string(key))] = struct{}{}
			}
			return nil
		}); err != nil {
			return err
		}

		return tx.ForEachDependency(func(id location.FileID, _ symbol.FileIDSet) error {
			if !ix.validFileID(id) {
				return nil
			}
			if match(ix.interner.Path(id)) {
				roots[id] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	targets := make(map[location.FileID]struct{})
	for root := range roots {
		closure, err := ix.reverseDependencyClosure(root)
		if err != nil {
			return 0, err
		}
		for id := range closure {
			targets[id] = struct{}{}
		}
	}

	count := 0
	for id := range targets {
		path := ix.interner.Path(id)
		var fi symbol.FileInformation
		if err := ix.st.View(func(tx *store.Tx) error {
			var err error
			fi, err = tx.GetFileInformation(path)
			return err
		}); err != nil {
			return count, err
		}
		ix.Index(path, fi.CompileArgs, indexerjob.Dirty)
		count++
	}
	return count, nil
}

// reverseDependencyClosure walks Dependency from root, visiting every file
// that (transitively) includes it, and returns the subset that is a known
// translation unit (has a FileInformation record), filtering out headers
// that are never compiled on their own. A visited set makes the walk
// safe against include-guard cycles.
func (ix *Indexer) reverseDependencyClosure(root location.FileID) (map[location.FileID]struct{}, error) {
	visited := map[location.FileID]struct{}{root: {}}
	queue := []location.FileID{root}
	tus := make(map[location.FileID]struct{})

	err := ix.st.View(func(tx *store.Tx) error {
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]

			if ix.isKnownTU(tx, id) {
				tus[id] = struct{}{}
			}

			deps, err := tx.GetDependency(id)
			if err != nil {
				return err
			}
			for dep := range deps {
				if _, ok := visited[dep]; ok {
					continue
				}
				visited[dep] = struct{}{}
				queue = append(queue, dep)
			}
		}
		return nil
	})
	return tus, err
}

func (ix *Indexer) isKnownTU(tx *store.Tx, id location.FileID) bool {
	if !ix.validFileID(id) {
		return false
	}
	fi, err := tx.GetFileInformation(ix.interner.Path(id))
	if err != nil {
		return false
	}
	return !fi.LastTouched.IsZero()
}

func (ix *Indexer) validFileID(id location.FileID) bool {
	return id != location.InvalidFileID && int(id) <= ix.interner.Len()
}

// Snapshot is the serializable state Save/Restore exchange: the known
// source files and the compile arguments last used for each, so a
// restarted Indexer can resubmit them without needing the external
// makefile reader to run again. It deliberately carries nothing about
// pending/in-flight/dirty state: nothing is in flight across a restart.
type Snapshot struct {
	Sources map[string][]string `json:"sources"`
}

// Save serializes the Indexer's known-source-file snapshot to w.
func (ix *Indexer) Save(w io.Writer) error {
	snap := Snapshot{Sources: make(map[string][]string)}
	err := ix.st.View(func(tx *store.Tx) error {
		return tx.ForEach(store.TableFileInformation, func(key, _ []byte) error {
			path := string(key)
			fi, err := tx.GetFileInformation(path)
			if err != nil {
				return err
			}
			snap.Sources[path] = fi.CompileArgs
			return nil
		})
	})
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(snap)
}

// Restore reads a Snapshot from r and repopulates the known-source cache
// used to re-submit a file without requiring its compile args again.
func (ix *Indexer) Restore(r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for path, args := range snap.Sources {
		id := ix.interner.InsertFile(path)
		ix.sources[id] = workItem{fileID: id, path: path, args: args, jobType: indexerjob.Dirty}
	}
	return nil
}
