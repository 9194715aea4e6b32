// Package syncer batches the deltas IndexerJob produces and flushes them
// into the Store on a timer, so writers never block on disk I/O and the
// Store sees few, large write batches instead of many tiny ones: a
// pending-data accumulator drained by a dedicated goroutine every few
// seconds or on explicit wakeup.
package syncer

import (
	"cxindex/internal/location"
	"cxindex/internal/symbol"
)

// ReferenceEntry is a staged reference: "from refers to target". Unlike
// SymbolName and Dependency entries, a second write to the same from
// location overwrites rather than unions: a reference site points to
// exactly one target at a time.
type ReferenceEntry struct {
	Target location.Location
	Kind   symbol.ReferenceKind
}

// Delta is an unflushed batch of table mutations. A job-local Delta is
// built up during one IndexerJob run and handed to Syncer.Post; the
// Syncer merges it into its own pending Delta, which Syncer.flush
// eventually drains into the Store.
type Delta struct {
	SymbolNames      map[string]symbol.LocationSet
	Symbols          map[location.Location]symbol.CursorInfo
	References       map[location.Location]ReferenceEntry
	Dependencies     map[location.FileID]symbol.FileIDSet
	PchDependencies  symbol.FileIDSet
	FileInformations map[string]symbol.FileInformation
}

// NewDelta returns an empty Delta ready for accumulation.
func NewDelta() *Delta {
	return &Delta{
		SymbolNames:      make(map[string]symbol.LocationSet),
		Symbols:          make(map[location.Location]symbol.CursorInfo),
		References:       make(map[location.Location]ReferenceEntry),
		Dependencies:     make(map[location.FileID]symbol.FileIDSet),
		PchDependencies:  symbol.NewFileIDSet(),
		FileInformations: make(map[string]symbol.FileInformation),
	}
}

// IsEmpty reports whether d carries nothing to flush.
func (d *Delta) IsEmpty() bool {
	return len(d.SymbolNames) == 0 && len(d.Symbols) == 0 && len(d.References) == 0 &&
		len(d.Dependencies) == 0 && len(d.PchDependencies) == 0 && len(d.FileInformations) == 0
}

// AddSymbolName records that name resolves (at least) to loc.
func (d *Delta) AddSymbolName(name string, loc location.Location) {
	set, ok := d.SymbolNames[name]
	if !ok {
		set = symbol.NewLocationSet()
		d.SymbolNames[name] = set
	}
	set.Add(loc)
}

// AddSymbol unites ci into whatever is already staged at loc in this
// Delta.
func (d *Delta) AddSymbol(loc location.Location, ci symbol.CursorInfo) {
	existing, ok := d.Symbols[loc]
	if !ok {
		d.Symbols[loc] = ci.Clone()
		return
	}
	existing.Unite(ci)
	d.Symbols[loc] = existing
}

// AddReference stages a reference from "from" to "target". A later call
// with the same from overwrites this one.
func (d *Delta) AddReference(from, target location.Location, kind symbol.ReferenceKind) {
	d.References[from] = ReferenceEntry{Target: target, Kind: kind}
}

// AddDependency records that includedFile is included by includingFile, so
// Dependencies[includedFile] accumulates the set of files that depend on
// it. This is the direction reindex's reverse closure walks: given a
// changed header, look up who includes it.
func (d *Delta) AddDependency(includedFile, includingFile location.FileID) {
	set, ok := d.Dependencies[includedFile]
	if !ok {
		set = symbol.NewFileIDSet()
		d.Dependencies[includedFile] = set
	}
	set.Add(includingFile)
}

// AddPchDependency records id as participating in a precompiled header
// unit.
func (d *Delta) AddPchDependency(id location.FileID) {
	d.PchDependencies.Add(id)
}

// SetFileInformation stages fi for path. If path already has a staged
// FileInformation with a later LastTouched, fi is dropped: the merge is
// last-writer-wins on the monotonic touch timestamp, not insertion order.
func (d *Delta) SetFileInformation(path string, fi symbol.FileInformation) {
	if existing, ok := d.FileInformations[path]; ok && existing.LastTouched.After(fi.LastTouched) {
		return
	}
	d.FileInformations[path] = fi
}

// Merge folds other into d using the same per-table semantics Syncer's
// flush uses against the Store: SymbolName/Dependency/PchDependency
// union, Symbol unites, References overwrite, FileInformation keeps the
// later LastTouched.
func (d *Delta) Merge(other *Delta) {
	for name, locs := range other.SymbolNames {
		set, ok := d.SymbolNames[name]
		if !ok {
			d.SymbolNames[name] = locs.Clone()
			continue
		}
		set.Union(locs)
	}
	for loc, ci := range other.Symbols {
		d.AddSymbol(loc, ci)
	}
	for from, ref := range other.References {
		d.References[from] = ref
	}
	for id, deps := range other.Dependencies {
		set, ok := d.Dependencies[id]
		if !ok {
			d.Dependencies[id] = deps.Clone()
			continue
		}
		set.Union(deps)
	}
	d.PchDependencies.Union(other.PchDependencies)
	for path, fi := range other.FileInformations {
		d.SetFileInformation(path, fi)
	}
}
