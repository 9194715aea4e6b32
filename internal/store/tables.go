package store

import (
	"cxindex/internal/location"
	"cxindex/internal/symbol"
)

// GetSymbolName returns the locations indexed under name, or an empty
// LocationSet if name has never been recorded. An absent key reads back
// as a zero value rather than an error.
func (t *Tx) GetSymbolName(name string) (symbol.LocationSet, error) {
	raw, ok, err := t.rawGet(TableSymbolName, []byte(name))
	if err != nil {
		return symbol.NewLocationSet(), err
	}
	if !ok {
		return symbol.NewLocationSet(), nil
	}
	payload, err := unframe(TableSymbolName, name, raw)
	if err != nil {
		return symbol.NewLocationSet(), err
	}
	return decodeLocationSet(payload)
}

// PutSymbolName overwrites the SymbolName record for name. Callers that
// want union-on-write semantics must read, Union, then Put within the
// same Update call.
func (t *Tx) PutSymbolName(name string, locs symbol.LocationSet) error {
	payload, err := encodeLocationSet(locs)
	if err != nil {
		return err
	}
	return t.rawPut(TableSymbolName, []byte(name), frame(payload))
}

// GetSymbol returns the CursorInfo recorded at loc, or the zero
// CursorInfo (ci.IsEmpty() == true) if loc has never been recorded.
func (t *Tx) GetSymbol(loc location.Location) (symbol.CursorInfo, error) {
	key := loc.PaddedKey()
	raw, ok, err := t.rawGet(TableSymbol, key)
	if err != nil {
		return symbol.NewCursorInfo(), err
	}
	if !ok {
		return symbol.NewCursorInfo(), nil
	}
	payload, err := unframe(TableSymbol, string(key), raw)
	if err != nil {
		return symbol.NewCursorInfo(), err
	}
	return decodeCursorInfo(payload)
}

// PutSymbol overwrites the Symbol record at loc.
func (t *Tx) PutSymbol(loc location.Location, ci symbol.CursorInfo) error {
	payload, err := encodeCursorInfo(ci)
	if err != nil {
		return err
	}
	return t.rawPut(TableSymbol, loc.PaddedKey(), frame(payload))
}

// GetDependency returns the FileIDSet recorded for id: the set of files
// that depend on (include, directly or transitively through a PCH) id.
// The PCH membership set is read with GetPchDependency instead.
func (t *Tx) GetDependency(id location.FileID) (symbol.FileIDSet, error) {
	return t.getDependencyKey(fileIDKey(id))
}

// GetPchDependency reads the distinguished PCH membership set.
func (t *Tx) GetPchDependency() (symbol.FileIDSet, error) {
	return t.getDependencyKey([]byte(PchKey))
}

func (t *Tx) getDependencyKey(key []byte) (symbol.FileIDSet, error) {
	raw, ok, err := t.rawGet(TableDependency, key)
	if err != nil {
		return symbol.NewFileIDSet(), err
	}
	if !ok {
		return symbol.NewFileIDSet(), nil
	}
	payload, err := unframe(TableDependency, string(key), raw)
	if err != nil {
		return symbol.NewFileIDSet(), err
	}
	return decodeFileIDSet(payload)
}

// PutDependency overwrites the Dependency record for id.
func (t *Tx) PutDependency(id location.FileID, deps symbol.FileIDSet) error {
	return t.putDependencyKey(fileIDKey(id), deps)
}

// PutPchDependency overwrites the distinguished PCH membership set.
func (t *Tx) PutPchDependency(deps symbol.FileIDSet) error {
	return t.putDependencyKey([]byte(PchKey), deps)
}

func (t *Tx) putDependencyKey(key []byte, deps symbol.FileIDSet) error {
	payload, err := encodeFileIDSet(deps)
	if err != nil {
		return err
	}
	return t.rawPut(TableDependency, key, frame(payload))
}

// ForEachDependency walks every Dependency record except the PCH set,
// calling fn with the included file's id and the set of files that
// depend on it.
// Indexer's reverse-dirty propagation uses this to find everything
// that (transitively) includes a changed header.
func (t *Tx) ForEachDependency(fn func(id location.FileID, deps symbol.FileIDSet) error) error {
	return t.ForEach(TableDependency, func(key, raw []byte) error {
		if string(key) == PchKey {
			return nil
		}
		if len(key) != 4 {
			return nil
		}
		id := location.FileID(uint32(key[0])<<24 | uint32(key[1])<<16 | uint32(key[2])<<8 | uint32(key[3]))
		payload, err := unframe(TableDependency, string(key), raw)
		if err != nil {
			return err
		}
		deps, err := decodeFileIDSet(payload)
		if err != nil {
			return err
		}
		return fn(id, deps)
	})
}

// GetFileInformation returns the FileInformation recorded for path, or
// the zero value if path has never been indexed.
func (t *Tx) GetFileInformation(path string) (symbol.FileInformation, error) {
	raw, ok, err := t.rawGet(TableFileInformation, []byte(path))
	if err != nil {
		return symbol.FileInformation{}, err
	}
	if !ok {
		return symbol.FileInformation{}, nil
	}
	payload, err := unframe(TableFileInformation, path, raw)
	if err != nil {
		return symbol.FileInformation{}, err
	}
	return decodeFileInformation(payload)
}

// PutFileInformation overwrites the FileInformation record for path.
func (t *Tx) PutFileInformation(path string, fi symbol.FileInformation) error {
	payload, err := encodeFileInformation(fi)
	if err != nil {
		return err
	}
	return t.rawPut(TableFileInformation, []byte(path), frame(payload))
}

// DeleteFileInformation removes path's FileInformation record.
func (t *Tx) DeleteFileInformation(path string) error {
	return t.rawDelete(TableFileInformation, []byte(path))
}
