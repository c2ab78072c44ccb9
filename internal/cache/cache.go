package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"cwb/internal/logging"
)

// Tier identifies one of the independent cache tiers.
type Tier string

const (
	// TierRetrieval holds free-text retrieval results (TTL 30s).
	TierRetrieval Tier = "retrieval"
	// TierPattern holds structural pattern matches for an offset range
	// (TTL 30s).
	TierPattern Tier = "pattern"
	// TierAssembled holds assembled context keyed by a 50-char offset
	// bucket (TTL 2m). The bucketing trades ±50 chars of staleness for a
	// much higher hit rate across nearby cursor positions.
	TierAssembled Tier = "assembled"
	// TierAnalysis holds full structural analyses of a file (TTL 5m).
	TierAnalysis Tier = "analysis"
)

// assembledBucket is the offset rounding granularity for TierAssembled keys.
const assembledBucket = 50

// Config carries per-tier TTLs and the shared size ceiling.
type Config struct {
	RetrievalTTL  time.Duration
	PatternTTL    time.Duration
	AssembledTTL  time.Duration
	AnalysisTTL   time.Duration
	MaxPerTier    int
	SweepInterval time.Duration
}

// DefaultConfig returns the standard tier TTLs.
func DefaultConfig() Config {
	return Config{
		RetrievalTTL:  30 * time.Second,
		PatternTTL:    30 * time.Second,
		AssembledTTL:  2 * time.Minute,
		AnalysisTTL:   5 * time.Minute,
		MaxPerTier:    512,
		SweepInterval: 60 * time.Second,
	}
}

type entry struct {
	value   interface{}
	created time.Time
}

// TierStats is a read-only snapshot of one tier's counters.
type TierStats struct {
	Size      int    `json:"size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type tierStore struct {
	ttl     time.Duration
	entries *lru.Cache[string, entry]

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
}

// Store is the multi-tier context cache. Safe for concurrent use from the
// interactive path and any number of background tasks.
type Store struct {
	tiers  map[Tier]*tierStore
	logger *logging.Logger
	now    func() time.Time

	sweepInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
}

// NewStore builds the four tiers. Call Start to enable the periodic sweep.
func NewStore(cfg Config, logger *logging.Logger) *Store {
	s := &Store{
		tiers:         make(map[Tier]*tierStore, 4),
		logger:        logger,
		now:           time.Now,
		sweepInterval: cfg.SweepInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	size := cfg.MaxPerTier
	if size <= 0 {
		size = DefaultConfig().MaxPerTier
	}
	for tier, ttl := range map[Tier]time.Duration{
		TierRetrieval: cfg.RetrievalTTL,
		TierPattern:   cfg.PatternTTL,
		TierAssembled: cfg.AssembledTTL,
		TierAnalysis:  cfg.AnalysisTTL,
	} {
		if ttl <= 0 {
			ttl = defaultTTL(tier)
		}
		entries, _ := lru.New[string, entry](size)
		s.tiers[tier] = &tierStore{ttl: ttl, entries: entries}
	}
	return s
}

func defaultTTL(tier Tier) time.Duration {
	cfg := DefaultConfig()
	switch tier {
	case TierPattern:
		return cfg.PatternTTL
	case TierAssembled:
		return cfg.AssembledTTL
	case TierAnalysis:
		return cfg.AnalysisTTL
	default:
		return cfg.RetrievalTTL
	}
}

// Get returns the cached value when present and fresh. An expired entry is
// evicted and reported as a miss.
func (s *Store) Get(tier Tier, key string) (interface{}, bool) {
	ts, ok := s.tiers[tier]
	if !ok {
		return nil, false
	}
	e, ok := ts.entries.Get(key)
	if ok && s.now().Sub(e.created) <= ts.ttl {
		ts.count(&ts.hits)
		return e.value, true
	}
	if ok {
		ts.entries.Remove(key)
		ts.count(&ts.evictions)
	}
	ts.count(&ts.misses)
	return nil, false
}

// Set stores a value in the tier, overwriting any previous entry.
func (s *Store) Set(tier Tier, key string, value interface{}) {
	ts, ok := s.tiers[tier]
	if !ok {
		return
	}
	if evicted := ts.entries.Add(key, entry{value: value, created: s.now()}); evicted {
		ts.count(&ts.evictions)
	}
}

// InvalidateFile synchronously removes every entry across all tiers whose
// key is prefixed by the file path. Returns the number of evicted entries;
// a second call with no intervening writes returns zero.
func (s *Store) InvalidateFile(path string) int {
	prefix := path + keySep
	removed := 0
	for _, ts := range s.tiers {
		for _, key := range ts.entries.Keys() {
			if strings.HasPrefix(key, prefix) {
				ts.entries.Remove(key)
				ts.count(&ts.evictions)
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Debug("invalidated cache entries", map[string]interface{}{
			"path":    path,
			"evicted": removed,
		})
	}
	return removed
}

// Sweep evicts every expired entry across all tiers and returns the count.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, ts := range s.tiers {
		for _, key := range ts.entries.Keys() {
			e, ok := ts.entries.Peek(key)
			if ok && now.Sub(e.created) > ts.ttl {
				ts.entries.Remove(key)
				ts.count(&ts.evictions)
				removed++
			}
		}
	}
	return removed
}

// Start launches the periodic sweep loop. Idempotent.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		go s.sweepLoop()
	})
}

// Stop terminates the sweep loop. Idempotent; safe without Start.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Store) sweepLoop() {
	defer close(s.doneCh)
	interval := s.sweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("cache sweep", map[string]interface{}{"evicted": n})
			}
		}
	}
}

// Stats returns a per-tier counter snapshot for the monitoring surface.
func (s *Store) Stats() map[Tier]TierStats {
	out := make(map[Tier]TierStats, len(s.tiers))
	for tier, ts := range s.tiers {
		ts.mu.Lock()
		out[tier] = TierStats{
			Size:      ts.entries.Len(),
			Hits:      ts.hits,
			Misses:    ts.misses,
			Evictions: ts.evictions,
		}
		ts.mu.Unlock()
	}
	return out
}

func (ts *tierStore) count(field *uint64) {
	ts.mu.Lock()
	*field++
	ts.mu.Unlock()
}

const keySep = "|"

// RetrievalKey keys the retrieval tier by document identity and query text.
func RetrievalKey(path string, stamp int64, query string) string {
	return fmt.Sprintf("%s%s%d%sq%s%s", path, keySep, stamp, keySep, keySep, query)
}

// PatternKey keys the pattern tier by document identity and offset range.
func PatternKey(path string, stamp int64, start, end int) string {
	return fmt.Sprintf("%s%s%d%sr%s%d-%d", path, keySep, stamp, keySep, keySep, start, end)
}

// AssembledKey keys the assembled tier by document identity, budget, and the
// cursor offset rounded down to the nearest bucket of 50.
func AssembledKey(path string, stamp int64, offset, budget int) string {
	bucket := (offset / assembledBucket) * assembledBucket
	return fmt.Sprintf("%s%s%d%sa%s%d@%d", path, keySep, stamp, keySep, keySep, budget, bucket)
}

// AnalysisKey keys the full structural-analysis tier by document identity.
func AnalysisKey(path string, stamp int64) string {
	return fmt.Sprintf("%s%s%d%sfull", path, keySep, stamp, keySep)
}
