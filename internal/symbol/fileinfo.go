package symbol

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"cxindex/internal/location"
)

// FileInformation records the compile arguments last used to index a
// source file and when that happened, so Indexer can decide whether a TU
// is dirty without re-parsing it.
type FileInformation struct {
	CompileArgs []string
	LastTouched time.Time
	// ArgsHash fingerprints CompileArgs so dirtiness checks are a cheap
	// integer comparison instead of a slice-of-strings comparison.
	ArgsHash uint64
}

// NewFileInformation builds a FileInformation, computing ArgsHash from
// args.
func NewFileInformation(args []string, touched time.Time) FileInformation {
	return FileInformation{
		CompileArgs: args,
		LastTouched: touched,
		ArgsHash:    HashArgs(args),
	}
}

// HashArgs fingerprints a compile-argument list with xxhash so Indexer
// can detect "did the args change" in O(1) extra state per file, without
// keeping the full argument slice around for comparison.
func HashArgs(args []string) uint64 {
	h := xxhash.New()
	for _, a := range args {
		_, _ = h.WriteString(a)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// FileIDSet is a set of file ids, used as the value type of the
// Dependency table: "the key file is included by (or depends on) the
// value files".
type FileIDSet map[location.FileID]struct{}

// NewFileIDSet builds a FileIDSet from the given ids.
func NewFileIDSet(ids ...location.FileID) FileIDSet {
	s := make(FileIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into s, returning true if s changed.
func (s FileIDSet) Add(id location.FileID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Union merges other into s in place, returning true if s changed.
func (s FileIDSet) Union(other FileIDSet) bool {
	changed := false
	for id := range other {
		if s.Add(id) {
			changed = true
		}
	}
	return changed
}

// Clone returns an independent copy of s.
func (s FileIDSet) Clone() FileIDSet {
	out := make(FileIDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns s's members in ascending order, for deterministic
// serialization and for test assertions.
func (s FileIDSet) Sorted() []location.FileID {
	out := make([]location.FileID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
