// Package cxerrors defines the daemon's error taxonomy: typed errors
// that carry enough context for the Syncer, Indexer, and Server to
// decide how to recover without re-parsing caller-supplied strings. The
// package is named cxerrors, not errors, to avoid shadowing the standard
// library package in call sites that need both.
package cxerrors

import (
	"fmt"
	"time"
)

// OpenError means a Store could not be opened: the on-disk file or
// directory is locked or corrupt. A Store is opened once when its
// Project is created, so the error surfaces from Project creation; the
// Syncer never opens a Store and does not retry an open.
type OpenError struct {
	Source     string
	Underlying error
}

func NewOpenError(source string, err error) *OpenError {
	return &OpenError{Source: source, Underlying: err}
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cxerrors: open %s: %v", e.Source, e.Underlying)
}

func (e *OpenError) Unwrap() error { return e.Underlying }

// ParseError means the front-end could not build a translation unit for
// a source file. The job emits it to subscribed clients and still records
// FileInformation so the file is not retried until its args change.
type ParseError struct {
	SourceFile string
	Underlying error
	Timestamp  time.Time
}

func NewParseError(sourceFile string, err error) *ParseError {
	return &ParseError{SourceFile: sourceFile, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cxerrors: parse %s: %v", e.SourceFile, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// CorruptRecord means a stored value failed to deserialize. Treated as
// absent; callers should log once per key rather than propagate.
type CorruptRecord struct {
	Table string
	Key   string
	Cause error
}

func NewCorruptRecord(table, key string, cause error) *CorruptRecord {
	return &CorruptRecord{Table: table, Key: key, Cause: cause}
}

func (e *CorruptRecord) Error() string {
	return fmt.Sprintf("cxerrors: corrupt record %s[%s]: %v", e.Table, e.Key, e.Cause)
}

func (e *CorruptRecord) Unwrap() error { return e.Cause }

// ProtocolError means a client sent a malformed frame or message. The
// connection is dropped.
type ProtocolError struct {
	Reason string
}

func NewProtocolError(reason string) *ProtocolError {
	return &ProtocolError{Reason: reason}
}

func (e *ProtocolError) Error() string {
	return "cxerrors: protocol error: " + e.Reason
}

// CancelledJob is returned when a query job stops streaming because its
// context was cancelled or a write to its client failed. It is not an
// error condition from the client's perspective:
// no error is surfaced, and the pending-lookup entry is simply cleared.
// It implements error so internal plumbing can use the standard
// err != nil control flow.
type CancelledJob struct {
	SourceFile string
}

func NewCancelledJob(sourceFile string) *CancelledJob {
	return &CancelledJob{SourceFile: sourceFile}
}

func (e *CancelledJob) Error() string {
	return fmt.Sprintf("cxerrors: job cancelled: %s", e.SourceFile)
}

// Fatal means the process cannot continue: only a startup socket-bind
// failure falls in this category. The bind is attempted once per
// configured address (the Unix socket, then the TCP fallback when one is
// set); there is no retry loop. The caller should log and exit non-zero.
type Fatal struct {
	Reason     string
	Underlying error
}

func NewFatal(reason string, err error) *Fatal {
	return &Fatal{Reason: reason, Underlying: err}
}

func (e *Fatal) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("cxerrors: fatal: %s: %v", e.Reason, e.Underlying)
	}
	return "cxerrors: fatal: " + e.Reason
}

func (e *Fatal) Unwrap() error { return e.Underlying }
