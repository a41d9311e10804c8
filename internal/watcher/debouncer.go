package watcher

import (
	"sync"
	"time"
)

// ChangeEvent records one filesystem change under the watched directory.
type ChangeEvent struct {
	Path string
	Op   string
	At   time.Time
}

// Debouncer coalesces bursts of change events into a single flush. A
// new event always replaces the pending timer, so a burst of writes to
// the settings store yields exactly one flush after the window passes.
type Debouncer struct {
	window   time.Duration
	maxBatch int
	events   map[string]ChangeEvent
	mu       sync.Mutex
	timer    *time.Timer
	onFlush  func([]ChangeEvent)
	stopped  bool
}

func NewDebouncer(window time.Duration, maxBatch int, onFlush func([]ChangeEvent)) *Debouncer {
	return &Debouncer{
		window:   window,
		maxBatch: maxBatch,
		events:   make(map[string]ChangeEvent),
		onFlush:  onFlush,
	}
}

func (d *Debouncer) Add(event ChangeEvent) {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.events[event.Path] = event

	if len(d.events) >= d.maxBatch {
		d.flushLocked()
		return
	}

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if !d.stopped {
			d.flushLocked()
		} else {
			d.mu.Unlock()
		}
	})

	d.mu.Unlock()
}

// flushLocked releases the mutex before invoking the callback.
func (d *Debouncer) flushLocked() {
	events := make([]ChangeEvent, 0, len(d.events))
	for _, event := range d.events {
		events = append(events, event)
	}

	d.events = make(map[string]ChangeEvent)

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.mu.Unlock()

	if len(events) > 0 && d.onFlush != nil {
		d.onFlush(events)
	}
}

func (d *Debouncer) Stop() {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if len(d.events) > 0 {
		d.flushLocked()
	} else {
		d.mu.Unlock()
	}
}
