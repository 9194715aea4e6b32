// Package store persists the four logical tables (SymbolName, Symbol,
// Dependency, FileInformation) into a single bbolt database file. bbolt
// is an ordered embedded key-value engine with atomic multi-key write
// batches and point reads, one bucket per logical concern.
package store

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"cxindex/internal/cxerrors"
)

// Table names the four logical tables. Each is a distinct bbolt bucket.
type Table string

const (
	TableSymbolName      Table = "SymbolName"
	TableSymbol          Table = "Symbol"
	TableDependency      Table = "Dependency"
	TableFileInformation Table = "FileInformation"
)

var allTables = []Table{TableSymbolName, TableSymbol, TableDependency, TableFileInformation}

// PchKey is the distinguished Dependency key holding the set of files
// that participate in any precompiled-header unit.
const PchKey = "pch"

// Store wraps a bbolt database holding the four logical tables.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures all
// four table buckets exist. A locked or corrupt file surfaces as an
// *cxerrors.OpenError.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, cxerrors.NewOpenError(path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, t := range allTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, cxerrors.NewOpenError(path, err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx is a scoped read or write handle into the Store, valid only for
// the duration of the View/Update callback that produced it: created
// per write burst and closed on scope exit.
type Tx struct {
	tx *bbolt.Tx
}

// View runs fn in a read-only transaction. Concurrent readers are
// always permitted.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Update runs fn in a single read-write transaction; every Put/Delete
// call inside fn is part of one atomic write batch, committed only if fn
// returns nil.
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

func (t *Tx) bucket(table Table) (*bbolt.Bucket, error) {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("store: bucket %s does not exist", table)
	}
	return b, nil
}

// rawGet returns the raw bytes for key in table, or ok=false if absent.
// The typed getters built on it return the same empty value for an
// absent key as for a stored empty value, so their callers cannot
// distinguish the two.
func (t *Tx) rawGet(table Table, key []byte) (value []byte, ok bool, err error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *Tx) rawPut(table Table, key, value []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (t *Tx) rawDelete(table Table, key []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

// ForEach iterates every key/value pair in table, stopping early if fn
// returns an error.
func (t *Tx) ForEach(table Table, fn func(key, value []byte) error) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	return b.ForEach(fn)
}
