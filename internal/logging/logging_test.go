package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	entries []Entry
}

func (r *recorder) Accept(e Entry) { r.entries = append(r.entries, e) }

func TestSubscribeReplaysHistory(t *testing.T) {
	l := New(nil, 10)
	l.Infof("first")
	l.Errorf("second")

	rec := &recorder{}
	l.Subscribe(rec, LevelInfo)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "first", rec.entries[0].Message)
	assert.Equal(t, "second", rec.entries[1].Message)
}

func TestSubscribeFiltersByLevel(t *testing.T) {
	l := New(nil, 10)
	l.Debugf("debug line")
	l.Errorf("error line")

	rec := &recorder{}
	l.Subscribe(rec, LevelError)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "error line", rec.entries[0].Message)
}

func TestRingBufferBounded(t *testing.T) {
	l := New(nil, 2)
	l.Infof("a")
	l.Infof("b")
	l.Infof("c")

	rec := &recorder{}
	l.Subscribe(rec, LevelDebug)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "b", rec.entries[0].Message)
	assert.Equal(t, "c", rec.entries[1].Message)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	l := New(nil, 10)
	rec := &recorder{}
	l.Subscribe(rec, LevelDebug)
	l.Unsubscribe(rec)

	l.Infof("after unsubscribe")
	assert.Empty(t, rec.entries)
}
