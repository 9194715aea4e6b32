// Package indexerjob implements one per-translation-unit indexing job:
// invoke the front-end, walk its cursors, and post the resulting deltas
// to a Syncer. One Job indexes exactly one source file; Indexer supplies
// the concurrency across Jobs.
package indexerjob

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cxindex/internal/cxerrors"
	"cxindex/internal/frontend"
	"cxindex/internal/location"
	"cxindex/internal/symbol"
	"cxindex/internal/syncer"
)

// Type classifies why a Job was scheduled.
type Type int

const (
	// Makefile jobs come from a build-system submission.
	Makefile Type = iota
	// Dirty jobs come from a file change or reverse-dependency propagation.
	Dirty
	// Dump jobs are priority-boosted one-off requests (e.g. DumpFile).
	Dump
)

// Status is a Job's terminal outcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Job indexes one (source_file, compile_args) pair.
type Job struct {
	SourceFile  string
	CompileArgs []string
	Type        Type

	interner *location.Interner
	frontend frontend.FrontEnd
	syncer   *syncer.Syncer

	aborted atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a Job. interner, fe, and sync are shared with the rest of
// the project; the Job holds only read-only references to them.
func New(sourceFile string, compileArgs []string, jobType Type, interner *location.Interner, fe frontend.FrontEnd, sync *syncer.Syncer) *Job {
	return &Job{
		SourceFile:  sourceFile,
		CompileArgs: compileArgs,
		Type:        jobType,
		interner:    interner,
		frontend:    fe,
		syncer:      sync,
	}
}

// Abort sets the job's cooperative cancellation flag and cancels its
// in-flight parse, if any. Safe to call concurrently with Run, including
// before Run has started.
func (j *Job) Abort() {
	j.aborted.Store(true)
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Aborted reports whether Abort has been called.
func (j *Job) Aborted() bool {
	return j.aborted.Load()
}

// Run executes the job to completion or abort. It never partially
// publishes deltas: on StatusAborted nothing produced by this run
// reaches the Syncer.
func (j *Job) Run(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
	defer cancel()

	if j.Aborted() {
		return StatusAborted, nil
	}

	tu, err := j.frontend.Parse(ctx, j.SourceFile, j.CompileArgs)
	if err != nil {
		if j.Aborted() {
			return StatusAborted, nil
		}
		parseErr := cxerrors.NewParseError(j.SourceFile, err)
		d := syncer.NewDelta()
		d.SetFileInformation(j.SourceFile, symbol.NewFileInformation(j.CompileArgs, time.Now()))
		j.syncer.Post(d)
		return StatusFailed, parseErr
	}

	delta := syncer.NewDelta()
	selfID := j.interner.InsertFile(j.SourceFile)

	for _, included := range tu.IncludedFiles {
		incID := j.interner.InsertFile(included)
		delta.AddDependency(incID, selfID)
	}
	for _, pch := range tu.PchParticipants {
		pchID := j.interner.InsertFile(pch)
		delta.AddPchDependency(pchID)
	}

	declaredAt := make(map[string]location.Location, len(tu.Cursors))

	for _, cursor := range tu.Cursors {
		if j.Aborted() {
			return StatusAborted, nil
		}

		fileID := j.interner.InsertFile(cursor.Location.File)
		loc := location.Pack(fileID, cursor.Location.Offset)

		if cursor.IsDeclaration {
			j.walkDeclaration(delta, declaredAt, cursor, loc)
			continue
		}
		if cursor.Reference != nil {
			j.walkReference(delta, cursor, loc)
		}
	}

	if j.Aborted() {
		return StatusAborted, nil
	}

	delta.SetFileInformation(j.SourceFile, symbol.NewFileInformation(j.CompileArgs, time.Now()))
	j.syncer.Post(delta)
	return StatusSuccess, nil
}

// walkDeclaration stages a definition/declaration/macro-definition
// cursor. A second declaration cursor sharing a USR already seen earlier
// in this same job is treated as a Linked pair (declaration to
// definition, or override to overridden) so the Syncer symmetrizes the
// two at flush time.
func (j *Job) walkDeclaration(delta *syncer.Delta, declaredAt map[string]location.Location, cursor frontend.CursorEvent, loc location.Location) {
	ci := symbol.NewCursorInfo()
	ci.Kind = cursor.Kind
	ci.Name = cursor.Name
	ci.USR = cursor.USR
	ci.Length = cursor.Length
	delta.AddSymbol(loc, ci)

	for _, variant := range symbol.NameVariants(cursor.Name) {
		delta.AddSymbolName(variant, loc)
	}

	if cursor.USR == "" {
		return
	}
	if prior, ok := declaredAt[cursor.USR]; ok && prior != loc {
		delta.AddReference(loc, prior, symbol.LinkedReference)
		return
	}
	declaredAt[cursor.USR] = loc
}

// walkReference stages a reference/call/member-ref cursor: the target's
// CursorInfo gains loc as a reference (applied by the Syncer at flush),
// and loc itself gets a minimal CursorInfo carrying Target so a
// FollowLocation query at the reference site resolves with a direct key
// lookup instead of a reverse scan.
func (j *Job) walkReference(delta *syncer.Delta, cursor frontend.CursorEvent, loc location.Location) {
	targetFileID := j.interner.InsertFile(cursor.Reference.Target.File)
	targetLoc := location.Pack(targetFileID, cursor.Reference.Target.Offset)

	delta.AddReference(loc, targetLoc, cursor.Reference.Kind)

	stub := symbol.NewCursorInfo()
	stub.Kind = cursor.Kind
	stub.Target = targetLoc
	delta.AddSymbol(loc, stub)
}
