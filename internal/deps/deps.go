package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"cwb/internal/document"
	"cwb/internal/errors"
	"cwb/internal/extract"
	"cwb/internal/logging"
	"cwb/internal/retention"
)

// maxRelatedNames bounds the retention set one analysis can produce.
const maxRelatedNames = 20

// Analyzer resolves names referenced by the cursor's enclosing unit. An
// analyzer may be unavailable; callers fall back to similarity/proximity
// scoring alone.
type Analyzer interface {
	Available() bool
	RelatedNames(ctx context.Context, doc *document.Document, unit *extract.Unit) (retention.Set, error)
}

// SCIPAnalyzer derives related names from a SCIP protobuf index produced by
// an external indexer. The index is loaded lazily and reloaded when the
// file on disk changes.
type SCIPAnalyzer struct {
	root   string
	path   string
	logger *logging.Logger

	mu       sync.RWMutex
	byPath   map[string]*scippb.Document
	names    map[string]string // symbol -> display name
	loadedAt time.Time
}

// NewSCIPAnalyzer points at an index file, usually index.scip at the
// workspace root. The file does not need to exist yet.
func NewSCIPAnalyzer(root, path string, logger *logging.Logger) *SCIPAnalyzer {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return &SCIPAnalyzer{root: root, path: path, logger: logger}
}

// Available reports whether an index file exists on disk.
func (a *SCIPAnalyzer) Available() bool {
	_, err := os.Stat(a.path)
	return err == nil
}

// RelatedNames returns the display names of non-local symbols referenced
// within the unit's line range, excluding the unit's own name.
func (a *SCIPAnalyzer) RelatedNames(ctx context.Context, doc *document.Document, unit *extract.Unit) (retention.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.ensureLoaded(); err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(a.root, doc.Path)
	if err != nil {
		rel = doc.Path
	}
	rel = filepath.ToSlash(rel)

	a.mu.RLock()
	defer a.mu.RUnlock()
	scipDoc, ok := a.byPath[rel]
	if !ok {
		return nil, errors.New(errors.AnalyzerUnavailable,
			fmt.Sprintf("file %s not in index", rel), nil)
	}

	startLine := int32(doc.PositionAt(unit.Full.Start).Line)
	endLine := int32(doc.PositionAt(unit.Full.End).Line)

	set := retention.NewSet()
	for _, occ := range scipDoc.Occurrences {
		if len(occ.Range) < 3 {
			continue
		}
		line := occ.Range[0]
		if line < startLine || line > endLine {
			continue
		}
		if scippb.IsLocalSymbol(occ.Symbol) {
			continue
		}
		name := a.names[occ.Symbol]
		if name == "" {
			name = descriptorName(occ.Symbol)
		}
		if name == "" || name == unit.Name {
			continue
		}
		set[name] = struct{}{}
		if len(set) >= maxRelatedNames {
			break
		}
	}

	a.logger.Debug("dependency analysis", map[string]interface{}{
		"path":    rel,
		"unit":    unit.Name,
		"related": len(set),
	})
	return set, nil
}

// ensureLoaded parses the index file, reloading after on-disk changes.
func (a *SCIPAnalyzer) ensureLoaded() error {
	info, err := os.Stat(a.path)
	if err != nil {
		return errors.New(errors.IndexMissing,
			fmt.Sprintf("no index at %s", a.path), err)
	}

	a.mu.RLock()
	fresh := a.byPath != nil && !info.ModTime().After(a.loadedAt)
	a.mu.RUnlock()
	if fresh {
		return nil
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return errors.New(errors.IndexMissing,
			fmt.Sprintf("failed to read index at %s", a.path), err)
	}
	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return errors.New(errors.AnalyzerUnavailable,
			fmt.Sprintf("failed to parse index at %s", a.path), err)
	}

	byPath := make(map[string]*scippb.Document, len(index.Documents))
	names := make(map[string]string)
	for _, d := range index.Documents {
		byPath[d.RelativePath] = d
		for _, sym := range d.Symbols {
			if sym.DisplayName != "" {
				names[sym.Symbol] = sym.DisplayName
			}
		}
	}

	a.mu.Lock()
	a.byPath = byPath
	a.names = names
	a.loadedAt = info.ModTime()
	a.mu.Unlock()

	a.logger.Info("loaded dependency index", map[string]interface{}{
		"path":      a.path,
		"documents": len(byPath),
		"symbols":   len(names),
	})
	return nil
}

// descriptorName extracts the trailing descriptor name from a raw symbol
// string when the index carries no display name.
func descriptorName(symbol string) string {
	parsed, err := scippb.ParseSymbol(symbol)
	if err != nil || len(parsed.Descriptors) == 0 {
		return ""
	}
	return parsed.Descriptors[len(parsed.Descriptors)-1].Name
}
