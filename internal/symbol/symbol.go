// Package symbol defines the in-memory and on-disk value types stored in
// the Symbol and SymbolName tables: cursor kinds, CursorInfo records, and
// the reference-kind tag used to symmetrize linked declaration/definition
// pairs.
package symbol

import (
	"sort"
	"strings"

	"cxindex/internal/location"
)

// Kind classifies what a cursor at a Location refers to.
type Kind string

const (
	KindUnknown     Kind = ""
	KindFunction    Kind = "function"
	KindVariable    Kind = "variable"
	KindClass       Kind = "class"
	KindStruct      Kind = "struct"
	KindEnum        Kind = "enum"
	KindEnumValue   Kind = "enum_value"
	KindField       Kind = "field"
	KindMethod      Kind = "method"
	KindNamespace   Kind = "namespace"
	KindMacro       Kind = "macro"
	KindTypedef     Kind = "typedef"
	KindParameter   Kind = "parameter"
)

// richness gives a total order over kinds so CursorInfo.Unite can prefer
// the "richer" of two kinds recorded for the same location.
var richness = map[Kind]int{
	KindUnknown:   0,
	KindParameter: 1,
	KindVariable:  2,
	KindField:     2,
	KindTypedef:   3,
	KindEnumValue: 3,
	KindMacro:     4,
	KindFunction:  5,
	KindMethod:    5,
	KindEnum:      6,
	KindStruct:    6,
	KindClass:     7,
	KindNamespace: 8,
}

func richer(a, b Kind) Kind {
	if richness[b] > richness[a] {
		return b
	}
	return a
}

// ReferenceKind tags how a reference relates to its target.
type ReferenceKind int

const (
	// NormalReference is a plain use-site (call, member access, ...).
	NormalReference ReferenceKind = iota
	// LinkedReference ties a declaration to its definition, or an
	// overriding method to the method it overrides; the Syncer
	// symmetrizes both sides of a LinkedReference.
	LinkedReference
)

// LocationSet is a set of Locations that serializes deterministically
// (sorted) regardless of insertion order.
type LocationSet map[location.Location]struct{}

// NewLocationSet builds a LocationSet from the given locations.
func NewLocationSet(locs ...location.Location) LocationSet {
	s := make(LocationSet, len(locs))
	for _, l := range locs {
		s[l] = struct{}{}
	}
	return s
}

// Add inserts l into s, returning true if s changed.
func (s LocationSet) Add(l location.Location) bool {
	if _, ok := s[l]; ok {
		return false
	}
	s[l] = struct{}{}
	return true
}

// Union merges other into s in place, returning true if s changed.
func (s LocationSet) Union(other LocationSet) bool {
	changed := false
	for l := range other {
		if s.Add(l) {
			changed = true
		}
	}
	return changed
}

// Contains reports whether l is a member of s.
func (s LocationSet) Contains(l location.Location) bool {
	_, ok := s[l]
	return ok
}

// Sorted returns s's members in ascending order, for deterministic
// serialization and for test assertions.
func (s LocationSet) Sorted() []location.Location {
	out := make([]location.Location, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of s.
func (s LocationSet) Clone() LocationSet {
	out := make(LocationSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// CursorInfo is the value stored at Symbol[location]: everything known
// about the declaration/definition/macro at that Location.
type CursorInfo struct {
	Kind       Kind
	Name       string // qualified symbol name, e.g. "Foo::bar"
	USR        string // unique-symbol-identifier from the front-end
	Length     uint32 // symbol length at this location, in bytes
	Target     location.Location
	References LocationSet
}

// NewCursorInfo returns an empty CursorInfo with an initialized
// References set.
func NewCursorInfo() CursorInfo {
	return CursorInfo{References: LocationSet{}}
}

// IsEmpty reports whether ci carries no information at all. This is the
// zero-value CursorInfo returned by a Store read of an absent key.
func (ci CursorInfo) IsEmpty() bool {
	return ci.Kind == KindUnknown && ci.Name == "" && ci.USR == "" && len(ci.References) == 0 && ci.Target.IsNull()
}

// Unite merges other into ci in place, returning true if ci changed.
// References are unioned, a non-null Target is preferred, and the
// richer Kind wins. A non-null Target already present in ci is never
// overwritten: first non-null wins.
func (ci *CursorInfo) Unite(other CursorInfo) bool {
	changed := false

	if ci.References == nil {
		ci.References = LocationSet{}
	}
	if ci.References.Union(other.References) {
		changed = true
	}

	if ci.Target.IsNull() && !other.Target.IsNull() {
		ci.Target = other.Target
		changed = true
	}

	if rk := richer(ci.Kind, other.Kind); rk != ci.Kind {
		ci.Kind = rk
		changed = true
	}

	if ci.Name == "" && other.Name != "" {
		ci.Name = other.Name
		changed = true
	}
	if ci.USR == "" && other.USR != "" {
		ci.USR = other.USR
		changed = true
	}
	if ci.Length == 0 && other.Length != 0 {
		ci.Length = other.Length
		changed = true
	}

	return changed
}

// Clone returns an independent deep copy of ci.
func (ci CursorInfo) Clone() CursorInfo {
	out := ci
	out.References = ci.References.Clone()
	return out
}

// NameVariants returns every textual form of name that SymbolName should
// index it under: the unqualified name, the name with-signature, and
// the name without-signature. A name like
// "Foo::bar(int)" yields {"Foo::bar(int)", "Foo::bar", "bar"}.
func NameVariants(name string) []string {
	if name == "" {
		return nil
	}

	variants := []string{name}

	withoutSig := name
	if i := strings.IndexByte(name, '('); i >= 0 {
		withoutSig = name[:i]
		variants = append(variants, withoutSig)
	}

	unqualified := withoutSig
	if i := strings.LastIndex(withoutSig, "::"); i >= 0 {
		unqualified = withoutSig[i+2:]
	}
	if unqualified != "" && unqualified != withoutSig {
		variants = append(variants, unqualified)
	}

	return dedupe(variants)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
