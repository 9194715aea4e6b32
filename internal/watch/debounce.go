package watch

import (
	"sort"
	"sync"
	"time"
)

// debouncer coalesces a burst of change notifications for the same
// paths into a single onFire call, so a save that touches a file twice
// in quick succession (common with editors that write-then-rename)
// triggers one reindex rather than two.
type debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	queued map[string]struct{}
	onFire func(paths []string)
}

func newDebouncer(delay time.Duration) *debouncer {
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &debouncer{delay: delay, queued: map[string]struct{}{}}
}

func (d *debouncer) push(path string) {
	if path == "" {
		return
	}
	d.mu.Lock()
	d.queued[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
	d.mu.Unlock()
}

func (d *debouncer) fire() {
	d.mu.Lock()
	queued := d.queued
	d.queued = map[string]struct{}{}
	fn := d.onFire
	d.mu.Unlock()

	if fn == nil || len(queued) == 0 {
		return
	}

	paths := make([]string, 0, len(queued))
	for p := range queued {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	fn(paths)
}
