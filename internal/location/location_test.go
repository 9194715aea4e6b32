package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternerBijection(t *testing.T) {
	in := NewInterner()
	paths := []string{"/a.c", "/b.c", "/dir/c.h", "/a.c"}

	ids := make(map[string]FileID)
	for _, p := range paths {
		id := in.InsertFile(p)
		ids[p] = id
		assert.Equal(t, id, in.FileID(p))
		assert.Equal(t, p, in.Path(id))
	}

	// Re-inserting a known path must not allocate a new id.
	assert.Equal(t, ids["/a.c"], in.InsertFile("/a.c"))
	assert.Equal(t, 3, in.Len())
}

func TestInternerUnknownPathReturnsInvalid(t *testing.T) {
	in := NewInterner()
	assert.Equal(t, InvalidFileID, in.FileID("/nope.c"))
}

func TestInternerPathPanicsOutOfRange(t *testing.T) {
	in := NewInterner()
	in.InsertFile("/a.c")
	assert.Panics(t, func() { in.Path(5) })
	assert.Panics(t, func() { in.Path(InvalidFileID) })
}

func TestLocationRoundTrip(t *testing.T) {
	loc := Pack(42, 1234)
	assert.Equal(t, FileID(42), loc.FileID())
	assert.Equal(t, uint32(1234), loc.Offset())
	assert.False(t, loc.IsNull())

	key := loc.PaddedKey()
	back, err := ParsePaddedKey(key)
	require.NoError(t, err)
	assert.Equal(t, loc, back)
}

func TestLocationPaddedKeyOrdering(t *testing.T) {
	a := Pack(1, 10)
	b := Pack(1, 20)
	c := Pack(2, 0)

	require.Less(t, string(a.PaddedKey()), string(b.PaddedKey()))
	require.Less(t, string(b.PaddedKey()), string(c.PaddedKey()))
}

func TestNullLocation(t *testing.T) {
	var l Location
	assert.True(t, l.IsNull())
}

func TestSnapshotRestore(t *testing.T) {
	in := NewInterner()
	in.InsertFile("/a.c")
	in.InsertFile("/b.c")

	snap := in.Snapshot()
	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)

	out := NewInterner()
	require.NoError(t, out.Restore(decoded))

	assert.Equal(t, in.FileID("/a.c"), out.FileID("/a.c"))
	assert.Equal(t, in.FileID("/b.c"), out.FileID("/b.c"))
	assert.Equal(t, in.Len(), out.Len())
}

func TestRestoreRejectsVersionMismatch(t *testing.T) {
	out := NewInterner()
	err := out.Restore(Snapshot{Version: 9999, Paths: []string{"/a.c"}})
	assert.ErrorIs(t, err, ErrVersionMismatch)
	// Rejected load must not partially apply.
	assert.Equal(t, 0, out.Len())
}
