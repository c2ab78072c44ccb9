// Package watcher polls the workspace for source file changes and feeds
// batched events to the cache invalidation and pre-population paths.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cwb/internal/extract"
	"cwb/internal/logging"
)

// EventType represents the kind of file system change.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one observed file change.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// Handler receives a debounced batch of events.
type Handler func(events []Event)

// Config contains watcher configuration.
type Config struct {
	Enabled        bool
	PollInterval   time.Duration
	Debounce       time.Duration
	IgnorePatterns []string
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		PollInterval: 2 * time.Second,
		Debounce:     500 * time.Millisecond,
		IgnorePatterns: []string{
			"*.log",
			"*.tmp",
			"node_modules",
			".git",
			"vendor",
			"__pycache__",
			"target",
			".cwb",
		},
	}
}

// Watcher polls mtimes of supported source files under one root.
type Watcher struct {
	root   string
	config Config
	logger *logging.Logger
	batch  *batcher

	mu     sync.Mutex
	mtimes map[string]time.Time

	stopCh    chan struct{}
	doneCh    chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a watcher over the workspace root.
func New(root string, config Config, logger *logging.Logger, handler Handler) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	return &Watcher{
		root:   root,
		config: config,
		logger: logger,
		batch:  newBatcher(config.Debounce, handler),
		mtimes: make(map[string]time.Time),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start snapshots the current tree and begins polling. Idempotent; a
// disabled watcher starts nothing.
func (w *Watcher) Start() error {
	if !w.config.Enabled {
		w.startOnce.Do(func() {
			w.logger.Info("file watcher disabled", nil)
		})
		return nil
	}

	w.mu.Lock()
	w.mtimes = w.scan()
	w.mu.Unlock()

	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.pollLoop()
	})
	w.logger.Info("file watcher started", map[string]interface{}{
		"root":         w.root,
		"pollInterval": w.config.PollInterval.String(),
	})
	return nil
}

// Stop halts polling and drops pending events. Safe without Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	if w.started.Load() {
		<-w.doneCh
	}
	w.batch.Cancel()
}

func (w *Watcher) pollLoop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll diffs the current tree against the last snapshot.
func (w *Watcher) poll() {
	current := w.scan()
	now := time.Now()

	w.mu.Lock()
	previous := w.mtimes
	w.mtimes = current
	w.mu.Unlock()

	for path, mtime := range current {
		old, existed := previous[path]
		switch {
		case !existed:
			w.batch.Add(Event{Type: EventCreate, Path: path, Timestamp: now})
		case mtime.After(old):
			w.batch.Add(Event{Type: EventModify, Path: path, Timestamp: now})
		}
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			w.batch.Add(Event{Type: EventDelete, Path: path, Timestamp: now})
		}
	}
}

// scan walks the root collecting mtimes for supported source files.
func (w *Watcher) scan() map[string]time.Time {
	out := make(map[string]time.Time)
	filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		base := filepath.Base(path)
		if info.IsDir() {
			if path != w.root && w.ignored(base) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.ignored(base) {
			return nil
		}
		if _, ok := extract.LanguageFromExtension(filepath.Ext(path)); !ok {
			return nil
		}
		out[path] = info.ModTime()
		return nil
	})
	return out
}

func (w *Watcher) ignored(base string) bool {
	for _, pattern := range w.config.IgnorePatterns {
		if strings.ContainsAny(pattern, "*?[") {
			if ok, _ := filepath.Match(pattern, base); ok {
				return true
			}
		} else if pattern == base {
			return true
		}
	}
	return false
}
