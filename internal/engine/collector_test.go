package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cwb/internal/assemble"
	"cwb/internal/cache"
	"cwb/internal/config"
	"cwb/internal/document"
	"cwb/internal/extract"
	"cwb/internal/logging"
	"cwb/internal/prewarm"
	"cwb/internal/retention"
)

func testCollector(t *testing.T) *Collector {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.Store.Enabled = false
	cfg.Watcher.Enabled = false
	cfg.Deps.Enabled = false
	cfg.Prewarm.Enabled = false

	c, err := New(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

const twoFuncSrc = `func process(items []int) int {
	total := 0
	for _, v := range items {
		total += v
	}
	return total
}

func helper(x int) int {
	return x * 2
}
`

func TestCollectContextBasics(t *testing.T) {
	c := testCollector(t)
	doc := document.NewDocument("/ws/main.go", 1, twoFuncSrc)
	offset := strings.Index(twoFuncSrc, "total := 0")

	res := c.CollectContext(doc, offset, 0)
	if n := strings.Count(res.MarkedContent, "<|cursor|>"); n != 1 {
		t.Fatalf("marker count = %d, want 1", n)
	}
	if !strings.Contains(res.FinalContent, "total := 0") {
		t.Errorf("cursor unit body missing:\n%s", res.FinalContent)
	}
	if res.Tag == "" {
		t.Error("no context tag assigned")
	}
}

func TestCollectContextUsesAssembledCache(t *testing.T) {
	c := testCollector(t)
	doc := document.NewDocument("/ws/main.go", 1, twoFuncSrc)
	offset := strings.Index(twoFuncSrc, "total += v")

	first := c.CollectContext(doc, offset, 500)
	second := c.CollectContext(doc, offset, 500)
	if first.FinalContent != second.FinalContent {
		t.Error("cached result differs from computed result")
	}

	st := c.cache.Stats()[cache.TierAssembled]
	if st.Hits == 0 {
		t.Errorf("assembled tier hits = 0, want at least 1 (stats %+v)", st)
	}

	// A nearby offset inside the same 50-char bucket also hits.
	c.CollectContext(doc, offset+3, 500)
	if got := c.cache.Stats()[cache.TierAssembled].Hits; got < st.Hits+1 {
		t.Errorf("bucketed offset missed the cache: hits = %d", got)
	}
}

func TestNotifyFileChangedInvalidates(t *testing.T) {
	c := testCollector(t)
	doc := document.NewDocument("/ws/main.go", 1, twoFuncSrc)
	c.CollectContext(doc, 5, 500)

	c.NotifyFileChanged("/ws/main.go")
	if n := c.cache.InvalidateFile("/ws/main.go"); n != 0 {
		t.Errorf("entries survived invalidation: %d", n)
	}
	if st := c.scheduler.Stats(); st.Enqueued != 1 {
		t.Errorf("scheduler enqueued = %d, want 1", st.Enqueued)
	}
}

func TestCollectDegradesOnUnknownLanguage(t *testing.T) {
	c := testCollector(t)
	doc := document.NewDocument("/ws/notes.txt", 1, "some plain text\nsecond line\n")

	res := c.CollectContext(doc, 4, 100)
	if n := strings.Count(res.MarkedContent, "<|cursor|>"); n != 1 {
		t.Fatalf("marker count = %d, want 1", n)
	}
	if !strings.Contains(res.MarkedContent, "some plain") {
		t.Errorf("degraded result lost the cursor line:\n%s", res.MarkedContent)
	}
}

type fakeAnalyzer struct {
	set retention.Set
}

func (f *fakeAnalyzer) Available() bool { return true }

func (f *fakeAnalyzer) RelatedNames(context.Context, *document.Document, *extract.Unit) (retention.Set, error) {
	return f.set, nil
}

func TestCollectWithDependencyAnalysis(t *testing.T) {
	c := testCollector(t)
	c.analyzer = &fakeAnalyzer{set: retention.NewSet("helper")}

	doc := document.NewDocument("/ws/main.go", 1, twoFuncSrc)
	offset := strings.Index(twoFuncSrc, "total := 0")

	// A budget too small to admit helper by size alone; only the
	// analyzer-supplied retention set can keep it.
	done := make(chan assemble.Result, 1)
	immediate := c.CollectWithDependencyAnalysis(doc, offset, 40, func(res assemble.Result) {
		done <- res
	})
	if n := strings.Count(immediate.MarkedContent, assemble.CursorMarker); n != 1 {
		t.Fatalf("immediate marker count = %d, want 1", n)
	}

	select {
	case res := <-done:
		found := false
		for _, name := range res.PreservedNames {
			if name == "helper" {
				found = true
			}
		}
		if !found {
			t.Errorf("enhanced PreservedNames = %v, want helper included", res.PreservedNames)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enhanced callback never fired")
	}
}

func TestCollectWithoutAnalyzerSkipsCallback(t *testing.T) {
	c := testCollector(t)
	doc := document.NewDocument("/ws/main.go", 1, twoFuncSrc)

	called := make(chan struct{}, 1)
	res := c.CollectWithDependencyAnalysis(doc, 5, 200, func(assemble.Result) {
		called <- struct{}{}
	})
	if n := strings.Count(res.MarkedContent, assemble.CursorMarker); n != 1 {
		t.Fatalf("marker count = %d, want 1", n)
	}
	select {
	case <-called:
		t.Error("callback fired with no analyzer configured")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPrewarmFileFillsCache(t *testing.T) {
	c := testCollector(t)
	path := filepath.Join(c.cfg.WorkspaceRoot, "warm.go")
	if err := os.WriteFile(path, []byte(twoFuncSrc), 0644); err != nil {
		t.Fatal(err)
	}

	task := prewarm.Task{ID: "t1", Path: path, Priority: prewarm.PriorityOpened}
	if err := c.prewarmFile(context.Background(), task); err != nil {
		t.Fatalf("prewarmFile() error = %v", err)
	}

	if st := c.cache.Stats()[cache.TierAssembled]; st.Size == 0 {
		t.Error("assembled tier empty after prewarm")
	}
}

func TestPrewarmFileMissingPath(t *testing.T) {
	c := testCollector(t)
	task := prewarm.Task{ID: "t1", Path: filepath.Join(c.cfg.WorkspaceRoot, "gone.go")}
	if err := c.prewarmFile(context.Background(), task); err == nil {
		t.Error("prewarmFile() on a missing file returned nil error")
	}
}

func TestNotifyActivationSchedulesRelated(t *testing.T) {
	c := testCollector(t)
	c.NotifyFileOpened("/ws/a.go")
	c.NotifyFileOpened("/ws/b.go")
	c.NotifyFileActivated("/ws/a.go")

	// Two opens, one activation, one related file (b relative to a).
	if st := c.scheduler.Stats(); st.Enqueued != 4 {
		t.Errorf("scheduler enqueued = %d, want 4", st.Enqueued)
	}
}

func TestHotZones(t *testing.T) {
	src := "import \"fmt\"\n\nfunc f() {\n\tx := g();\n\treturn x\n}\n"
	doc := document.NewDocument("/ws/z.go", 1, src)
	units := extract.NewLexicalExtractor(logging.Nop(), 0).Extract(doc)

	zones := hotZones(doc, units, 20)
	if len(zones) == 0 {
		t.Fatal("no hot zones for a file with units")
	}
	seen := map[int]bool{}
	for _, z := range zones {
		if z < 0 || z > doc.Len() {
			t.Errorf("zone %d out of range", z)
		}
		if seen[z] {
			t.Errorf("duplicate zone %d", z)
		}
		seen[z] = true
	}

	capped := hotZones(doc, units, 2)
	if len(capped) > 2 {
		t.Errorf("cap ignored: %d zones", len(capped))
	}
}
