package syncer

import (
	"sync"
	"time"

	"cxindex/internal/logging"
	"cxindex/internal/store"
	"cxindex/internal/symbol"
)

// flushInterval is how often the Syncer wakes on its own, independent of
// any explicit Post, to drain whatever has accumulated.
const flushInterval = 10 * time.Second

// Syncer accumulates Deltas posted by IndexerJobs and periodically
// flushes them into a Store in one write transaction covering all four
// tables, so a job never
// blocks on disk I/O and the Store sees large, infrequent batches.
type Syncer struct {
	st     *store.Store
	logger *logging.Logger

	mu      sync.Mutex
	pending *Delta

	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// New returns a Syncer backed by st. Start must be called before Post
// has any effect beyond buffering.
func New(st *store.Store, logger *logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.New(nil, 256)
	}
	return &Syncer{
		st:      st,
		logger:  logger,
		pending: NewDelta(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the flush loop. Calling Start twice panics.
func (s *Syncer) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		panic("syncer: Start called twice")
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

// Stop signals the flush loop to drain whatever is pending one last time
// and exit, then blocks until it has. No partial batch is ever
// committed: the in-flight flush (if any) finishes under its own
// Store.Update transaction before Stop returns.
func (s *Syncer) Stop() {
	close(s.stop)
	<-s.done
}

// Post merges d into the Syncer's pending batch and wakes the flush loop.
// Callers must not reuse d afterward.
func (s *Syncer) Post(d *Delta) {
	if d == nil || d.IsEmpty() {
		return
	}
	s.mu.Lock()
	s.pending.Merge(d)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// swap takes ownership of the current pending Delta and installs a fresh
// empty one, so producers calling Post never block on a flush in
// progress.
func (s *Syncer) swap() *Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := s.pending
	s.pending = NewDelta()
	return taken
}

func (s *Syncer) run() {
	defer close(s.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.flushOnce()
			return
		case <-s.wake:
			s.flushOnce()
		case <-ticker.C:
			s.flushOnce()
		}
	}
}

func (s *Syncer) flushOnce() {
	d := s.swap()
	if d.IsEmpty() {
		return
	}
	if err := s.flush(d); err != nil {
		s.logger.Errorf("syncer: flush failed: %v", err)
	}
}

// flush commits d to the Store in a fixed order: symbol names first,
// then references and symbols together
// (so a reference's CursorInfo.Unite sees the full picture), then
// dependencies, then the PCH dependency set, then file information.
func (s *Syncer) flush(d *Delta) error {
	return s.st.Update(func(tx *store.Tx) error {
		if err := flushSymbolNames(tx, d); err != nil {
			return err
		}
		if err := flushReferencesAndSymbols(tx, d); err != nil {
			return err
		}
		if err := flushDependencies(tx, d); err != nil {
			return err
		}
		if err := flushPchDependencies(tx, d); err != nil {
			return err
		}
		if err := flushFileInformations(tx, d); err != nil {
			return err
		}
		return nil
	})
}

func flushSymbolNames(tx *store.Tx, d *Delta) error {
	for name, locs := range d.SymbolNames {
		existing, err := tx.GetSymbolName(name)
		if err != nil {
			return err
		}
		existing.Union(locs)
		if err := tx.PutSymbolName(name, existing); err != nil {
			return err
		}
	}
	return nil
}

// flushReferencesAndSymbols folds each staged reference into the
// CursorInfo of the location it targets. A plain reference only adds the
// referrer to the target's References. A LinkedReference (a declaration
// tied to its definition, or an overriding method tied to what it
// overrides) additionally symmetrizes: both sides end up sharing the
// full union of each other's References, the referrer's References also
// gain the linked location, and the referrer's Target is set to the
// linked location if it was still null. The folded-in
// references are merged into d.Symbols before either location touches
// the Store, so a single read-unite-write per location is enough.
func flushReferencesAndSymbols(tx *store.Tx, d *Delta) error {
	for from, ref := range d.References {
		target := ref.Target

		targetCi := d.Symbols[target]
		if targetCi.References == nil {
			targetCi = symbol.NewCursorInfo()
		}
		targetCi.References.Add(from)

		if ref.Kind != symbol.NormalReference {
			fromCi := d.Symbols[from]
			if fromCi.References == nil {
				fromCi = symbol.NewCursorInfo()
			}

			union := targetCi.References.Clone()
			union.Union(fromCi.References)
			targetCi.References = union
			fromCi.References = union.Clone()
			fromCi.References.Add(target)

			if fromCi.Target.IsNull() {
				fromCi.Target = target
			}
			d.Symbols[from] = fromCi
		}

		d.Symbols[target] = targetCi
	}

	for loc, ci := range d.Symbols {
		existing, err := tx.GetSymbol(loc)
		if err != nil {
			return err
		}
		existing.Unite(ci)
		if err := tx.PutSymbol(loc, existing); err != nil {
			return err
		}
	}
	return nil
}

func flushDependencies(tx *store.Tx, d *Delta) error {
	for id, deps := range d.Dependencies {
		existing, err := tx.GetDependency(id)
		if err != nil {
			return err
		}
		existing.Union(deps)
		if err := tx.PutDependency(id, existing); err != nil {
			return err
		}
	}
	return nil
}

// flushPchDependencies overwrites the "pch" key outright rather than
// unioning with what is already on disk: historical PCH membership
// that a later job no longer reports should not linger, so the
// incoming accumulator (already unioned across every add since the
// last flush) replaces the stored set wholesale.
func flushPchDependencies(tx *store.Tx, d *Delta) error {
	if len(d.PchDependencies) == 0 {
		return nil
	}
	return tx.PutPchDependency(d.PchDependencies)
}

func flushFileInformations(tx *store.Tx, d *Delta) error {
	for path, fi := range d.FileInformations {
		existing, err := tx.GetFileInformation(path)
		if err == nil && !existing.LastTouched.IsZero() && existing.LastTouched.After(fi.LastTouched) {
			continue
		}
		if err := tx.PutFileInformation(path, fi); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces an immediate synchronous drain of whatever is currently
// pending, bypassing the wake channel. Tests use this to avoid racing
// the 10-second ticker. Shutdown does not call it: Stop performs the
// final drain.
func (s *Syncer) Flush() error {
	d := s.swap()
	if d.IsEmpty() {
		return nil
	}
	return s.flush(d)
}
