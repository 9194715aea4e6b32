package syncer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cxindex/internal/location"
	"cxindex/internal/store"
	"cxindex/internal/symbol"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncer.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostThenFlushWritesSymbolName(t *testing.T) {
	st := openTestStore(t)
	s := New(st, nil)

	d := NewDelta()
	d.AddSymbolName("foo", location.Pack(1, 10))
	s.Post(d)

	require.NoError(t, s.Flush())

	err := st.View(func(tx *store.Tx) error {
		locs, err := tx.GetSymbolName("foo")
		require.NoError(t, err)
		assert.True(t, locs.Contains(location.Pack(1, 10)))
		return nil
	})
	require.NoError(t, err)
}

func TestFlushUnionsSymbolNameAcrossPosts(t *testing.T) {
	st := openTestStore(t)
	s := New(st, nil)

	d1 := NewDelta()
	d1.AddSymbolName("foo", location.Pack(1, 1))
	s.Post(d1)

	d2 := NewDelta()
	d2.AddSymbolName("foo", location.Pack(2, 2))
	s.Post(d2)

	require.NoError(t, s.Flush())

	err := st.View(func(tx *store.Tx) error {
		locs, err := tx.GetSymbolName("foo")
		require.NoError(t, err)
		assert.Len(t, locs, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestFlushLinkedReferenceSymmetrizesBothSides(t *testing.T) {
	st := openTestStore(t)
	s := New(st, nil)

	decl := location.Pack(1, 10)
	def := location.Pack(1, 50)

	d := NewDelta()
	d.AddReference(decl, def, symbol.LinkedReference)
	s.Post(d)

	require.NoError(t, s.Flush())

	err := st.View(func(tx *store.Tx) error {
		declCi, err := tx.GetSymbol(decl)
		require.NoError(t, err)
		assert.True(t, declCi.References.Contains(def))

		defCi, err := tx.GetSymbol(def)
		require.NoError(t, err)
		assert.True(t, defCi.References.Contains(decl))
		return nil
	})
	require.NoError(t, err)
}

func TestFlushNormalReferenceOnlyUpdatesTarget(t *testing.T) {
	st := openTestStore(t)
	s := New(st, nil)

	use := location.Pack(1, 10)
	target := location.Pack(1, 50)

	d := NewDelta()
	d.AddReference(use, target, symbol.NormalReference)
	s.Post(d)

	require.NoError(t, s.Flush())

	err := st.View(func(tx *store.Tx) error {
		targetCi, err := tx.GetSymbol(target)
		require.NoError(t, err)
		assert.True(t, targetCi.References.Contains(use))

		useCi, err := tx.GetSymbol(use)
		require.NoError(t, err)
		assert.True(t, useCi.IsEmpty())
		return nil
	})
	require.NoError(t, err)
}

func TestFlushDependencyUnion(t *testing.T) {
	st := openTestStore(t)
	s := New(st, nil)

	d1 := NewDelta()
	d1.AddDependency(10, 1)
	s.Post(d1)
	require.NoError(t, s.Flush())

	d2 := NewDelta()
	d2.AddDependency(10, 2)
	s.Post(d2)
	require.NoError(t, s.Flush())

	err := st.View(func(tx *store.Tx) error {
		deps, err := tx.GetDependency(10)
		require.NoError(t, err)
		assert.Len(t, deps, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestFlushFileInformationKeepsLaterTimestamp(t *testing.T) {
	st := openTestStore(t)
	s := New(st, nil)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	d1 := NewDelta()
	d1.SetFileInformation("a.c", symbol.NewFileInformation([]string{"-O0"}, newer))
	s.Post(d1)
	require.NoError(t, s.Flush())

	d2 := NewDelta()
	d2.SetFileInformation("a.c", symbol.NewFileInformation([]string{"-O2"}, older))
	s.Post(d2)
	require.NoError(t, s.Flush())

	err := st.View(func(tx *store.Tx) error {
		fi, err := tx.GetFileInformation("a.c")
		require.NoError(t, err)
		assert.Equal(t, []string{"-O0"}, fi.CompileArgs)
		return nil
	})
	require.NoError(t, err)
}

func TestStartStopDrainsPendingWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := openTestStore(t)
	s := New(st, nil)
	s.Start()

	d := NewDelta()
	d.AddSymbolName("foo", location.Pack(1, 1))
	s.Post(d)

	s.Stop()

	err := st.View(func(tx *store.Tx) error {
		locs, err := tx.GetSymbolName("foo")
		require.NoError(t, err)
		assert.True(t, locs.Contains(location.Pack(1, 1)))
		return nil
	})
	require.NoError(t, err)
}

func TestDeltaMergeIsEmpty(t *testing.T) {
	d := NewDelta()
	assert.True(t, d.IsEmpty())
	d.AddPchDependency(1)
	assert.False(t, d.IsEmpty())
}
