// Package frontend declares the boundary to the C/C++ parser. The
// front-end itself, an external library producing a traversable AST
// with cursor kinds, USRs, and source locations, is out of scope for
// this daemon; this package only defines the interface IndexerJob
// drives and a deterministic stand-in used by tests and by builds
// without a real parser wired in. There is no build tag: the stand-in
// is always compiled in.
package frontend

import (
	"context"
	"errors"

	"cxindex/internal/symbol"
)

// ErrDisabled is available to a FrontEnd that has no real parser wired
// in. TextScanFrontEnd does not return it.
var ErrDisabled = errors.New("frontend: no parser configured")

// RawLocation identifies a cursor by file path and byte offset, before
// the file has been assigned a FileID. IndexerJob is responsible for
// interning the path and packing the final Location.
type RawLocation struct {
	File   string
	Offset uint32
}

// CursorEvent is one cursor the front-end's visitor reports while
// walking a translation unit.
type CursorEvent struct {
	Location RawLocation
	Kind     symbol.Kind
	Name     string
	USR      string
	Length   uint32

	// IsDeclaration marks a definition/declaration/macro-definition
	// cursor.
	IsDeclaration bool

	// Reference, when non-nil, marks this cursor as a reference/call/
	// member-ref resolving to Target.
	Reference *ReferenceEvent
}

// ReferenceEvent describes the resolved target of a reference cursor.
type ReferenceEvent struct {
	Target RawLocation
	Kind   symbol.ReferenceKind
}

// TranslationUnit is the parsed result of one (source_file, compile_args)
// pair: every included file (for dependency bookkeeping) and the ordered
// stream of cursor events from the main walk.
type TranslationUnit struct {
	SourceFile      string
	IncludedFiles   []string
	PchParticipants []string
	Cursors         []CursorEvent
}

// FrontEnd builds translation units from compiler invocations. Parse
// must honor ctx cancellation promptly. IndexerJob wires the job's
// abort flag into ctx so a parse in progress can be cut short, mirroring
// a front-end's own periodic cancellation callback.
type FrontEnd interface {
	Parse(ctx context.Context, sourceFile string, compileArgs []string) (*TranslationUnit, error)
}
