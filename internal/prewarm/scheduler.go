package prewarm

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cwb/internal/logging"
)

// Enqueue priorities for the background pipeline, by event kind.
const (
	PriorityActivated = 100
	PriorityChanged   = 90
	PriorityOpened    = 80
	PriorityRelated   = 70
)

// Task is one pending pre-population request. Tasks are ordered by priority
// descending, then enqueue time descending, so fresher events about equally
// important files win.
type Task struct {
	ID       string
	Path     string
	Priority int
	Enqueued time.Time
}

// Handler runs the context pipeline for one file and stores the results.
// Failures are per-task; the consumer loop survives them.
type Handler func(ctx context.Context, task Task) error

// Config tunes the consumer loop.
type Config struct {
	Debounce       time.Duration // skip a file processed this recently
	IdleBackoff    time.Duration // sleep when the queue is empty
	FailureBackoff time.Duration // sleep after a failed task
}

// DefaultConfig matches the interactive-path latency targets.
func DefaultConfig() Config {
	return Config{
		Debounce:       5 * time.Second,
		IdleBackoff:    time.Second,
		FailureBackoff: 500 * time.Millisecond,
	}
}

// Stats is a snapshot of the consumer counters.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Pending   int    `json:"pending"`
}

// Scheduler owns the priority queue and its single consumer loop. Producers
// may enqueue from any goroutine without blocking.
type Scheduler struct {
	cfg     Config
	handler Handler
	logger  *logging.Logger
	now     func() time.Time

	mu      sync.Mutex
	queue   taskHeap
	lastRun map[string]time.Time
	stats   Stats

	notify chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewScheduler wires a handler; call Start to begin consuming.
func NewScheduler(cfg Config, handler Handler, logger *logging.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = def.IdleBackoff
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	return &Scheduler{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		now:     time.Now,
		lastRun: make(map[string]time.Time),
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Enqueue adds a task and wakes the consumer. Never blocks.
func (s *Scheduler) Enqueue(path string, priority int) Task {
	task := Task{
		ID:       uuid.NewString(),
		Path:     path,
		Priority: priority,
		Enqueued: s.now(),
	}
	s.mu.Lock()
	heap.Push(&s.queue, task)
	s.stats.Enqueued++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return task
}

// Start launches the single consumer loop. Idempotent.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.loop()
	})
}

// Stop halts the loop and waits for the in-flight task up to the timeout.
// Safe without Start.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if !s.started.Load() {
		return
	}
	select {
	case <-s.doneCh:
	case <-time.After(timeout):
	}
}

// Stats returns a counter snapshot.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = s.queue.Len()
	return st
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		task, state := s.next()
		switch state {
		case dequeueEmpty:
			select {
			case <-s.stopCh:
				return
			case <-s.notify:
			case <-time.After(s.cfg.IdleBackoff):
			}
		case dequeueSkipped:
			// Debounced; try the next task immediately.
		case dequeueReady:
			if err := s.handler(ctx, task); err != nil {
				s.mu.Lock()
				s.stats.Failed++
				s.mu.Unlock()
				s.logger.Warn("prewarm task failed", map[string]interface{}{
					"path":  task.Path,
					"error": err.Error(),
				})
				select {
				case <-s.stopCh:
					return
				case <-time.After(s.cfg.FailureBackoff):
				}
				continue
			}
			s.mu.Lock()
			s.stats.Processed++
			s.mu.Unlock()
		}
	}
}

type dequeueState int

const (
	dequeueEmpty dequeueState = iota
	dequeueSkipped
	dequeueReady
)

// next pops the highest-priority task. The debounce check happens here, at
// dequeue time: a file processed within the debounce window is dropped, which
// also sheds stale tasks superseded by newer edits.
func (s *Scheduler) next() (Task, dequeueState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return Task{}, dequeueEmpty
	}
	task := heap.Pop(&s.queue).(Task)
	if last, ok := s.lastRun[task.Path]; ok && s.now().Sub(last) < s.cfg.Debounce {
		s.stats.Skipped++
		return task, dequeueSkipped
	}
	s.lastRun[task.Path] = s.now()
	return task, dequeueReady
}

// taskHeap orders by (priority desc, enqueued desc).
type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Enqueued.After(h[j].Enqueued)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	*h = old[:n-1]
	return task
}
