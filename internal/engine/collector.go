// Package engine wires the extraction, classification, retention, and
// assembly stages behind the two collection entry points, with the cache,
// warm store, scheduler, and watcher around them.
package engine

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"cwb/internal/assemble"
	"cwb/internal/cache"
	"cwb/internal/classify"
	"cwb/internal/config"
	"cwb/internal/deps"
	"cwb/internal/document"
	"cwb/internal/extract"
	"cwb/internal/logging"
	"cwb/internal/prewarm"
	"cwb/internal/retention"
	"cwb/internal/store"
	"cwb/internal/watcher"
)

// Collector is the context-collection engine. All methods are safe for
// concurrent use.
type Collector struct {
	cfg    *config.Config
	logger *logging.Logger

	tree      *extract.TreeExtractor
	lexical   *extract.LexicalExtractor
	assembler *assemble.Assembler
	cache     *cache.Store
	analyzer  deps.Analyzer
	warm      *store.Store
	scheduler *prewarm.Scheduler
	watch     *watcher.Watcher

	// snapMu serializes live-document snapshots taken by background
	// tasks. Everything downstream is pure on the snapshot.
	snapMu sync.Mutex

	mu        sync.Mutex
	openFiles map[string]struct{}
}

// New builds a collector from configuration. Optional collaborators that
// fail to initialize degrade silently; only the warm store surfaces an
// open error.
func New(cfg *config.Config, logger *logging.Logger) (*Collector, error) {
	c := &Collector{
		cfg:       cfg,
		logger:    logger,
		assembler: assemble.New(logger),
		openFiles: make(map[string]struct{}),
	}

	c.tree = extract.NewTreeExtractor(logger)
	if c.tree == nil {
		logger.Debug("syntax tree support unavailable, lexical fallback only", nil)
	}

	c.lexical = extract.NewLexicalExtractor(logger, cfg.Extractor.MaxFileSizeBytes)
	if cfg.Extractor.PatternFile != "" {
		patternPath := cfg.Extractor.PatternFile
		if !filepath.IsAbs(patternPath) {
			patternPath = filepath.Join(cfg.WorkspaceRoot, patternPath)
		}
		custom, err := extract.LoadCustomPatterns(patternPath)
		if err != nil {
			logger.Warn("ignoring custom pattern file", map[string]interface{}{
				"path":  patternPath,
				"error": err.Error(),
			})
		} else if custom != nil {
			c.lexical = c.lexical.WithCustomPatterns(custom)
		}
	}

	c.cache = cache.NewStore(cache.Config{
		RetrievalTTL:  secs(cfg.Cache.RetrievalTtlSeconds),
		PatternTTL:    secs(cfg.Cache.PatternTtlSeconds),
		AssembledTTL:  secs(cfg.Cache.AssembledTtlSeconds),
		AnalysisTTL:   secs(cfg.Cache.AnalysisTtlSeconds),
		MaxPerTier:    cfg.Cache.MaxEntriesPerTier,
		SweepInterval: secs(cfg.Cache.SweepIntervalSec),
	}, logger)

	if cfg.Deps.Enabled {
		c.analyzer = deps.NewSCIPAnalyzer(cfg.WorkspaceRoot, cfg.Deps.IndexPath, logger)
	}

	if cfg.Store.Enabled {
		warm, err := store.Open(cfg.WorkspaceRoot, cfg.Store.Path, logger)
		if err != nil {
			return nil, err
		}
		c.warm = warm
	}

	c.scheduler = prewarm.NewScheduler(prewarm.Config{
		Debounce:       secs(cfg.Prewarm.DebounceSeconds),
		IdleBackoff:    millis(cfg.Prewarm.IdleBackoffMs),
		FailureBackoff: millis(cfg.Prewarm.FailureBackoffMs),
	}, c.prewarmFile, logger)

	if cfg.Watcher.Enabled {
		c.watch = watcher.New(cfg.WorkspaceRoot, watcher.Config{
			Enabled:        true,
			PollInterval:   millis(cfg.Watcher.PollIntervalMs),
			Debounce:       millis(cfg.Watcher.DebounceMs),
			IgnorePatterns: cfg.Watcher.IgnorePatterns,
		}, logger, c.onFileEvents)
	}

	return c, nil
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Start brings up the background machinery: cache sweeper, scheduler,
// watcher, and the warm-state refill.
func (c *Collector) Start() error {
	c.cache.Start()
	if c.cfg.Prewarm.Enabled {
		c.scheduler.Start()
	}
	if c.watch != nil {
		if err := c.watch.Start(); err != nil {
			return err
		}
	}
	c.rewarm()
	return nil
}

// Stop shuts the background machinery down. The in-flight prewarm task gets
// a five second grace period.
func (c *Collector) Stop() {
	if c.watch != nil {
		c.watch.Stop()
	}
	c.scheduler.Stop(5 * time.Second)
	c.cache.Stop()
	if c.warm != nil {
		c.warm.Close()
	}
}

// CollectContext is the synchronous entry point: cache-checked, computed on
// miss. A budget at or below zero selects the configured default.
func (c *Collector) CollectContext(doc *document.Document, offset, budget int) assemble.Result {
	offset = doc.ClampOffset(offset)
	budget = c.pickBudget(doc, budget)

	key := cache.AssembledKey(doc.Path, doc.Stamp, offset, budget)
	if v, ok := c.cache.Get(cache.TierAssembled, key); ok {
		return v.(assemble.Result)
	}

	res := c.compute(doc, offset, budget, nil)
	c.cache.Set(cache.TierAssembled, key, res)
	c.persist(doc, offset, budget, res)
	return res
}

// CollectWithDependencyAnalysis returns an immediate best-effort result and,
// when the dependency analyzer is available, asynchronously re-invokes
// onComplete with a result enhanced by the analyzer's retention set. The
// callback runs at most once and only on success.
func (c *Collector) CollectWithDependencyAnalysis(doc *document.Document, offset, budget int, onComplete func(assemble.Result)) assemble.Result {
	offset = doc.ClampOffset(offset)
	budget = c.pickBudget(doc, budget)
	immediate := c.CollectContext(doc, offset, budget)

	if c.analyzer == nil || !c.analyzer.Available() || onComplete == nil {
		return immediate
	}

	go func() {
		set := c.relatedNames(context.Background(), doc, offset)
		if len(set) == 0 {
			return
		}
		res := c.compute(doc, offset, budget, set)
		key := cache.AssembledKey(doc.Path, doc.Stamp, offset, budget)
		c.cache.Set(cache.TierAssembled, key, res)
		c.persist(doc, offset, budget, res)
		onComplete(res)
	}()
	return immediate
}

// compute runs the full pipeline on a snapshot. It never fails: every
// degradation produces a coarser result.
func (c *Collector) compute(doc *document.Document, offset, budget int, set retention.Set) assemble.Result {
	units := c.analyze(doc)
	tag := c.classifyCached(doc, units, offset)

	cursorUnit := extract.UnitAt(units, offset)
	if cursorUnit == nil && len(units) == 0 {
		fallback := extract.FallbackUnit(doc, offset)
		units = []extract.Unit{fallback}
		cursorUnit = &units[0]
	}

	priorities := make([]float64, len(units))
	for i := range units {
		priorities[i] = retention.Score(&units[i], cursorUnit, offset, set)
	}
	return c.assembler.Assemble(doc, units, priorities, offset, budget, tag)
}

// analyze returns the structural units for a document, via the analysis
// tier. Tree extraction is preferred; lexical is the fallback; a failed
// parse degrades to no units.
func (c *Collector) analyze(doc *document.Document) []extract.Unit {
	key := cache.AnalysisKey(doc.Path, doc.Stamp)
	if v, ok := c.cache.Get(cache.TierAnalysis, key); ok {
		return v.([]extract.Unit)
	}

	var units []extract.Unit
	if c.tree != nil && c.tree.Supports(doc) {
		units = c.tree.Extract(doc)
	}
	if len(units) == 0 {
		units = c.lexical.Extract(doc)
	}
	c.cache.Set(cache.TierAnalysis, key, units)
	return units
}

// classifyCached memoizes classification per cursor line in the pattern
// tier.
func (c *Collector) classifyCached(doc *document.Document, units []extract.Unit, offset int) classify.Tag {
	key := cache.PatternKey(doc.Path, doc.Stamp, doc.LineStart(offset), doc.LineEnd(offset))
	if v, ok := c.cache.Get(cache.TierPattern, key); ok {
		return v.(classify.Tag)
	}
	tag := classify.Classify(doc, units, offset)
	c.cache.Set(cache.TierPattern, key, tag)
	return tag
}

// relatedNames queries the dependency analyzer for the cursor's enclosing
// unit, via the retrieval tier. Analyzer failures degrade to an empty set.
func (c *Collector) relatedNames(ctx context.Context, doc *document.Document, offset int) retention.Set {
	units := c.analyze(doc)
	cursorUnit := extract.UnitAt(units, offset)
	if cursorUnit == nil || cursorUnit.Name == "" {
		return nil
	}

	key := cache.RetrievalKey(doc.Path, doc.Stamp, cursorUnit.Name)
	if v, ok := c.cache.Get(cache.TierRetrieval, key); ok {
		return v.(retention.Set)
	}

	set, err := c.analyzer.RelatedNames(ctx, doc, cursorUnit)
	if err != nil {
		c.logger.Debug("dependency analysis unavailable", map[string]interface{}{
			"path":  doc.Path,
			"error": err.Error(),
		})
		return nil
	}
	c.cache.Set(cache.TierRetrieval, key, set)
	return set
}

func (c *Collector) pickBudget(doc *document.Document, budget int) int {
	if budget > 0 {
		return budget
	}
	if c.tree != nil && c.tree.Supports(doc) {
		return c.cfg.Budget.TreeAidedChars
	}
	return c.cfg.Budget.DefaultChars
}

// persist writes a result to the warm store when enabled.
func (c *Collector) persist(doc *document.Document, offset, budget int, res assemble.Result) {
	if c.warm == nil {
		return
	}
	err := c.warm.Save(store.WarmEntry{
		Path:   doc.Path,
		Stamp:  doc.Stamp,
		Offset: offset,
		Budget: budget,
		Result: res,
	})
	if err != nil {
		c.logger.Warn("warm store write failed", map[string]interface{}{
			"path":  doc.Path,
			"error": err.Error(),
		})
	}
}

// rewarm refills the assembled tier from the warm store at startup.
func (c *Collector) rewarm() {
	if c.warm == nil {
		return
	}
	entries, err := c.warm.LoadAll(c.cfg.Cache.MaxEntriesPerTier)
	if err != nil {
		c.logger.Warn("warm store read failed", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, e := range entries {
		key := cache.AssembledKey(e.Path, e.Stamp, e.Offset, e.Budget)
		c.cache.Set(cache.TierAssembled, key, e.Result)
	}
	if len(entries) > 0 {
		c.logger.Info("re-warmed context cache", map[string]interface{}{"entries": len(entries)})
	}
}

// NotifyFileActivated records focus on a file and schedules it plus the
// other open files related to it.
func (c *Collector) NotifyFileActivated(path string) {
	c.mu.Lock()
	c.openFiles[path] = struct{}{}
	related := make([]string, 0, len(c.openFiles))
	for open := range c.openFiles {
		if open != path {
			related = append(related, open)
		}
	}
	c.mu.Unlock()

	c.scheduler.Enqueue(path, prewarm.PriorityActivated)
	limit := c.cfg.Prewarm.MaxRelatedFiles
	for i, rel := range related {
		if i >= limit {
			break
		}
		c.scheduler.Enqueue(rel, prewarm.PriorityRelated)
	}
}

// NotifyFileOpened records an open file and schedules a warm pass.
func (c *Collector) NotifyFileOpened(path string) {
	c.mu.Lock()
	c.openFiles[path] = struct{}{}
	c.mu.Unlock()
	c.scheduler.Enqueue(path, prewarm.PriorityOpened)
}

// NotifyFileClosed forgets an open file.
func (c *Collector) NotifyFileClosed(path string) {
	c.mu.Lock()
	delete(c.openFiles, path)
	c.mu.Unlock()
}

// NotifyFileChanged synchronously invalidates every cached entry for the
// file, then schedules recomputation.
func (c *Collector) NotifyFileChanged(path string) {
	c.cache.InvalidateFile(path)
	if c.warm != nil {
		if _, err := c.warm.DeleteFile(path); err != nil {
			c.logger.Warn("warm store delete failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	c.scheduler.Enqueue(path, prewarm.PriorityChanged)
}

// WarmFile runs the pre-population pipeline for a single file on the
// caller's goroutine, bypassing the scheduler queue.
func (c *Collector) WarmFile(ctx context.Context, path string) error {
	return c.prewarmFile(ctx, prewarm.Task{
		ID:       uuid.NewString(),
		Path:     path,
		Priority: prewarm.PriorityOpened,
		Enqueued: time.Now(),
	})
}

func (c *Collector) onFileEvents(events []watcher.Event) {
	for _, e := range events {
		c.NotifyFileChanged(e.Path)
	}
}

// prewarmFile is the scheduler handler: it snapshots the file, computes
// context at each hot zone, and fills the assembled tier.
func (c *Collector) prewarmFile(ctx context.Context, task prewarm.Task) error {
	c.snapMu.Lock()
	doc, err := document.Snapshot(task.Path)
	c.snapMu.Unlock()
	if err != nil {
		return err
	}

	units := c.analyze(doc)
	zones := hotZones(doc, units, c.cfg.Prewarm.MaxHotZones)
	budget := c.pickBudget(doc, 0)

	for _, offset := range zones {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := cache.AssembledKey(doc.Path, doc.Stamp, offset, budget)
		if _, ok := c.cache.Get(cache.TierAssembled, key); ok {
			continue
		}
		res := c.compute(doc, offset, budget, nil)
		c.cache.Set(cache.TierAssembled, key, res)
	}

	c.logger.Debug("prewarmed file", map[string]interface{}{
		"path":  task.Path,
		"zones": len(zones),
	})
	return nil
}

// Stats exposes the read-only monitoring counters.
func (c *Collector) Stats() map[string]interface{} {
	return map[string]interface{}{
		"cache":   c.cache.Stats(),
		"prewarm": c.scheduler.Stats(),
	}
}
