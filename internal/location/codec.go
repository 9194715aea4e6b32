package location

import (
	"encoding/json"
)

// EncodeSnapshot serializes snap the way the on-disk "fileids" file is
// written: a leading DatabaseVersion followed by the path table, JSON
// encoded. JSON (rather than a binary format) mirrors this codebase's
// encode/decode idiom for small metadata records.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// DecodeSnapshot is the inverse of EncodeSnapshot. It does not itself
// validate the version; callers pass the result to Interner.Restore,
// which enforces the version check.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
