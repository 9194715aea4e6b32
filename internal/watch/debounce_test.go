package watch

import (
	"testing"
	"time"
)

func TestDebouncerCoalescesRepeatedPushes(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)
	var got []string
	d.onFire = func(paths []string) { got = paths }

	d.push("a.c")
	d.push("a.c")
	d.push("b.c")
	time.Sleep(150 * time.Millisecond)

	if len(got) != 2 {
		t.Fatalf("expected 2 distinct paths, got %d (%v)", len(got), got)
	}
}

func TestDebouncerIgnoresEmptyPath(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	fired := false
	d.onFire = func(paths []string) { fired = true }

	d.push("")
	time.Sleep(60 * time.Millisecond)

	if fired {
		t.Fatalf("onFire should not run for an empty push")
	}
}
