package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"cxindex/internal/cxerrors"
	"cxindex/internal/location"
	"cxindex/internal/symbol"
)

func unixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// schemaVersion prefixes every encoded value so a future on-disk format
// change can be detected and migrated rather than silently misread.
const schemaVersion byte = 1

func frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, schemaVersion)
	out = append(out, payload...)
	return out
}

func unframe(table Table, key string, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, cxerrors.NewCorruptRecord(string(table), key, fmt.Errorf("empty record"))
	}
	if raw[0] != schemaVersion {
		return nil, cxerrors.NewCorruptRecord(string(table), key, fmt.Errorf("unknown schema version %d", raw[0]))
	}
	return raw[1:], nil
}

// cursorInfoJSON and fileInformationJSON are the wire shapes behind
// symbol.CursorInfo and symbol.FileInformation. They exist so JSON field
// names stay stable independent of the in-memory types' internals.
// symbol.LocationSet and symbol.FileIDSet are encoded as sorted JSON
// arrays of their integer values.

type cursorInfoJSON struct {
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	USR        string   `json:"usr"`
	Length     uint32   `json:"length"`
	Target     uint64   `json:"target"`
	References []uint64 `json:"references"`
}

func encodeCursorInfo(ci symbol.CursorInfo) ([]byte, error) {
	w := cursorInfoJSON{
		Kind:   string(ci.Kind),
		Name:   ci.Name,
		USR:    ci.USR,
		Length: ci.Length,
		Target: uint64(ci.Target),
	}
	for _, l := range ci.References.Sorted() {
		w.References = append(w.References, uint64(l))
	}
	return json.Marshal(w)
}

func decodeCursorInfo(raw []byte) (symbol.CursorInfo, error) {
	var w cursorInfoJSON
	if err := json.Unmarshal(raw, &w); err != nil {
		return symbol.CursorInfo{}, err
	}
	refs := symbol.NewLocationSet()
	for _, v := range w.References {
		refs.Add(location.Location(v))
	}
	return symbol.CursorInfo{
		Kind:       symbol.Kind(w.Kind),
		Name:       w.Name,
		USR:        w.USR,
		Length:     w.Length,
		Target:     location.Location(w.Target),
		References: refs,
	}, nil
}

func encodeLocationSet(set symbol.LocationSet) ([]byte, error) {
	sorted := set.Sorted()
	values := make([]uint64, len(sorted))
	for i, l := range sorted {
		values[i] = uint64(l)
	}
	return json.Marshal(values)
}

func decodeLocationSet(raw []byte) (symbol.LocationSet, error) {
	var values []uint64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	set := symbol.NewLocationSet()
	for _, v := range values {
		set.Add(location.Location(v))
	}
	return set, nil
}

func encodeFileIDSet(set symbol.FileIDSet) ([]byte, error) {
	sorted := set.Sorted()
	values := make([]uint32, len(sorted))
	for i, id := range sorted {
		values[i] = uint32(id)
	}
	return json.Marshal(values)
}

func decodeFileIDSet(raw []byte) (symbol.FileIDSet, error) {
	var values []uint32
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	set := symbol.NewFileIDSet()
	for _, v := range values {
		set.Add(location.FileID(v))
	}
	return set, nil
}

type fileInformationJSON struct {
	CompileArgs []string `json:"compileArgs"`
	LastTouched int64    `json:"lastTouched"`
	ArgsHash    uint64   `json:"argsHash"`
}

func encodeFileInformation(fi symbol.FileInformation) ([]byte, error) {
	return json.Marshal(fileInformationJSON{
		CompileArgs: fi.CompileArgs,
		LastTouched: fi.LastTouched.UnixNano(),
		ArgsHash:    fi.ArgsHash,
	})
}

func decodeFileInformation(raw []byte) (symbol.FileInformation, error) {
	var w fileInformationJSON
	if err := json.Unmarshal(raw, &w); err != nil {
		return symbol.FileInformation{}, err
	}
	fi := symbol.NewFileInformation(w.CompileArgs, unixNano(w.LastTouched))
	fi.ArgsHash = w.ArgsHash
	return fi, nil
}

// fileIDKey renders a FileID as its raw big-endian bytes so Dependency
// keys sort the same order as the interner's insertion-derived IDs.
func fileIDKey(id location.FileID) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(id))
	return key
}
