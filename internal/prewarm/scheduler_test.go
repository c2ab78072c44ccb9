package prewarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cwb/internal/logging"
)

func noopHandler(context.Context, Task) error { return nil }

func TestDequeueOrdering(t *testing.T) {
	s := NewScheduler(DefaultConfig(), noopHandler, logging.Nop())
	base := time.Unix(1000, 0)
	clock := base
	s.now = func() time.Time { return clock }

	clock = base
	s.Enqueue("/opened.go", PriorityOpened)
	clock = base.Add(time.Second)
	s.Enqueue("/related.go", PriorityRelated)
	clock = base.Add(2 * time.Second)
	s.Enqueue("/changed-old.go", PriorityChanged)
	clock = base.Add(3 * time.Second)
	s.Enqueue("/changed-new.go", PriorityChanged)
	clock = base.Add(4 * time.Second)
	s.Enqueue("/active.go", PriorityActivated)

	want := []string{
		"/active.go",      // highest priority
		"/changed-new.go", // equal priority, fresher first
		"/changed-old.go",
		"/opened.go",
		"/related.go",
	}
	for _, path := range want {
		task, state := s.next()
		if state != dequeueReady {
			t.Fatalf("next() state = %v, want ready", state)
		}
		if task.Path != path {
			t.Fatalf("dequeued %s, want %s", task.Path, path)
		}
		if task.ID == "" {
			t.Error("task has no ID")
		}
	}
	if _, state := s.next(); state != dequeueEmpty {
		t.Errorf("drained queue state = %v, want empty", state)
	}
}

func TestDebounceAtDequeue(t *testing.T) {
	s := NewScheduler(DefaultConfig(), noopHandler, logging.Nop())
	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	s.Enqueue("/a.go", PriorityChanged)
	if _, state := s.next(); state != dequeueReady {
		t.Fatal("first dequeue not ready")
	}

	// A task for the same file within the 5s window is dropped.
	s.Enqueue("/a.go", PriorityChanged)
	if _, state := s.next(); state != dequeueSkipped {
		t.Error("task inside debounce window not skipped")
	}

	// Past the window it runs again.
	clock = clock.Add(6 * time.Second)
	s.Enqueue("/a.go", PriorityChanged)
	if _, state := s.next(); state != dequeueReady {
		t.Error("task past debounce window skipped")
	}

	st := s.Stats()
	if st.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", st.Skipped)
	}
}

func TestDebounceIsPerFile(t *testing.T) {
	s := NewScheduler(DefaultConfig(), noopHandler, logging.Nop())
	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	s.Enqueue("/a.go", PriorityChanged)
	s.Enqueue("/b.go", PriorityChanged)
	if _, state := s.next(); state != dequeueReady {
		t.Fatal("first file not ready")
	}
	if task, state := s.next(); state != dequeueReady || task.Path != "/b.go" {
		t.Errorf("other file debounced: %v %s", state, task.Path)
	}
}

func TestConsumerLoopProcessesTasks(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 4)

	handler := func(_ context.Context, task Task) error {
		mu.Lock()
		seen = append(seen, task.Path)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	cfg := Config{Debounce: time.Millisecond, IdleBackoff: 5 * time.Millisecond, FailureBackoff: time.Millisecond}
	s := NewScheduler(cfg, handler, logging.Nop())
	s.Start()
	defer s.Stop(time.Second)

	s.Enqueue("/a.go", PriorityActivated)
	s.Enqueue("/b.go", PriorityOpened)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer loop did not process tasks")
		}
	}

	// The counter is bumped after the handler returns; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().Processed == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Processed = %d, want 2", s.Stats().Processed)
}

func TestConsumerLoopSurvivesFailure(t *testing.T) {
	calls := make(chan string, 4)
	handler := func(_ context.Context, task Task) error {
		calls <- task.Path
		if task.Path == "/bad.go" {
			return errors.New("boom")
		}
		return nil
	}

	cfg := Config{Debounce: time.Millisecond, IdleBackoff: 5 * time.Millisecond, FailureBackoff: time.Millisecond}
	s := NewScheduler(cfg, handler, logging.Nop())
	s.Start()
	defer s.Stop(time.Second)

	s.Enqueue("/bad.go", PriorityActivated)
	s.Enqueue("/good.go", PriorityOpened)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case p := <-calls:
			got[p] = true
		case <-time.After(2 * time.Second):
			t.Fatal("loop stalled after failure")
		}
	}
	if !got["/bad.go"] || !got["/good.go"] {
		t.Errorf("calls = %v, want both files", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	s := NewScheduler(DefaultConfig(), noopHandler, logging.Nop())
	s.Start()
	s.Stop(time.Second)
	s.Stop(time.Second)
}
