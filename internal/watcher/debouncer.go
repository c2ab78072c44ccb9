package watcher

import (
	"sync"
	"time"
)

// batcher collects events during a quiet period and emits them as one
// batch. Every Add resets the timer, so a burst of saves produces a single
// emission.
type batcher struct {
	delay time.Duration
	emit  func([]Event)

	mu     sync.Mutex
	timer  *time.Timer
	events []Event
}

func newBatcher(delay time.Duration, emit func([]Event)) *batcher {
	return &batcher{delay: delay, emit: emit}
}

// Add queues an event and restarts the quiet-period timer.
func (b *batcher) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *batcher) flush() {
	b.mu.Lock()
	events := b.events
	b.events = nil
	b.timer = nil
	b.mu.Unlock()

	if len(events) > 0 && b.emit != nil {
		b.emit(events)
	}
}

// Flush emits pending events immediately.
func (b *batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	b.flush()
}

// Cancel drops pending events without emitting.
func (b *batcher) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.events = nil
}
