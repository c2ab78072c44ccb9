package assemble

import (
	"sort"
	"strings"

	"cwb/internal/classify"
	"cwb/internal/document"
	"cwb/internal/extract"
	"cwb/internal/logging"
	"cwb/internal/retention"
)

const (
	// CursorMarker is spliced into the document at the cursor offset
	// before any structural manipulation, so later stages find the cursor
	// by token search instead of offset bookkeeping.
	CursorMarker = "<|cursor|>"

	// Placeholder replaces a collapsed unit body.
	Placeholder = "/* ... */"

	// TruncationMarker flags a side cut by window truncation.
	TruncationMarker = "/* ...truncated... */"
)

// dedupLookback is how many emitted lines the duplicate-line filter
// remembers.
const dedupLookback = 5

// Result is the outcome of one assembly request. It is immutable once
// returned.
type Result struct {
	FinalContent   string       `json:"finalContent"`
	MarkedContent  string       `json:"markedContent"`
	CursorOffset   int          `json:"cursorOffset"`
	CursorLine     int          `json:"cursorLine"`
	Tag            classify.Tag `json:"contextTag"`
	Truncated      bool         `json:"truncated"`
	PreservedNames []string     `json:"preservedNames"`
}

// Assembler renders a document into budgeted context. Stateless; safe for
// concurrent use.
type Assembler struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble walks the units in source order, keeps high-priority bodies
// verbatim, collapses the rest to a placeholder, and guarantees the cursor
// marker survives every stage. priorities is parallel to units. A budget of
// zero or less disables the final window truncation but still collapses
// every body below the retention priority.
func (a *Assembler) Assemble(doc *document.Document, units []extract.Unit, priorities []float64, cursorOffset, budget int, tag classify.Tag) Result {
	cursorOffset = doc.ClampOffset(cursorOffset)
	marked := doc.Text[:cursorOffset] + CursorMarker + doc.Text[cursorOffset:]

	keep := a.chooseKept(units, priorities, cursorOffset, budget)
	collapsed := collapseSet(units, keep)

	assembled, anyCollapsed := spliceCollapsed(marked, units, collapsed, cursorOffset)
	assembled = dropDuplicateLines(assembled)

	truncated := anyCollapsed
	if budget > 0 && len(assembled) > budget {
		assembled = windowTruncate(assembled, budget)
		truncated = true
	}

	markerIdx := strings.Index(assembled, CursorMarker)
	if markerIdx < 0 {
		// The marker is a hard invariant. Falling back to the cursor line
		// alone keeps it no matter what the stages above did.
		line := doc.CurrentLine(cursorOffset)
		rel := cursorOffset - doc.LineStart(cursorOffset)
		assembled = line[:rel] + CursorMarker + line[rel:]
		markerIdx = rel
		truncated = true
	}

	final := assembled[:markerIdx] + assembled[markerIdx+len(CursorMarker):]

	a.logger.Debug("assembled context", map[string]interface{}{
		"path":      doc.Path,
		"budget":    budget,
		"size":      len(final),
		"truncated": truncated,
	})

	return Result{
		FinalContent:   final,
		MarkedContent:  assembled,
		CursorOffset:   markerIdx,
		CursorLine:     strings.Count(assembled[:markerIdx], "\n"),
		Tag:            tag,
		Truncated:      truncated,
		PreservedNames: preservedNames(units, collapsed),
	}
}

// chooseKept decides which unit indexes keep their bodies. Units at or
// above the retention priority keep them unconditionally, as does the unit
// containing the cursor. The remaining units are admitted in priority order
// while the projected size stays under 0.9 of the budget.
func (a *Assembler) chooseKept(units []extract.Unit, priorities []float64, cursorOffset, budget int) map[int]bool {
	keep := make(map[int]bool, len(units))
	var size int

	counted := func(i int) bool {
		for j := range units {
			if j != i && keep[j] && units[j].Full.Contains(units[i].Full.Start) {
				return true
			}
		}
		return false
	}

	for i := range units {
		pri := 0.0
		if i < len(priorities) {
			pri = priorities[i]
		}
		if pri >= retention.PriorityRetained || units[i].ContainsOffset(cursorOffset) {
			keep[i] = true
			if !counted(i) {
				size += units[i].Full.Len()
			}
		}
	}

	order := make([]int, 0, len(units))
	for i := range units {
		if !keep[i] {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(x, y int) bool {
		px, py := 0.0, 0.0
		if order[x] < len(priorities) {
			px = priorities[order[x]]
		}
		if order[y] < len(priorities) {
			py = priorities[order[y]]
		}
		return px > py
	})

	limit := int(0.9 * float64(budget))
	for _, i := range order {
		if size+units[i].Full.Len() > limit {
			continue
		}
		keep[i] = true
		if !counted(i) {
			size += units[i].Full.Len()
		}
	}
	return keep
}

// collapseSet returns the indexes whose bodies get replaced. Units nested
// inside another collapsed unit are excluded since the outer replacement
// already swallows them, and a unit with a kept unit nested inside it is
// never collapsed.
func collapseSet(units []extract.Unit, keep map[int]bool) map[int]bool {
	shieldsKept := func(i int) bool {
		for j := range units {
			if j != i && keep[j] && units[i].Full.Contains(units[j].Full.Start) {
				return true
			}
		}
		return false
	}

	collapsed := make(map[int]bool)
	lastEnd := -1
	for i := range units {
		if keep[i] || !units[i].HasBody() {
			continue
		}
		if units[i].Full.Start < lastEnd {
			continue
		}
		if shieldsKept(i) {
			continue
		}
		collapsed[i] = true
		lastEnd = units[i].Body.End
	}
	return collapsed
}

// spliceCollapsed rebuilds the marked text with each collapsed body replaced
// by the placeholder. Offsets past the cursor shift by the marker length.
func spliceCollapsed(marked string, units []extract.Unit, collapsed map[int]bool, cursorOffset int) (string, bool) {
	adj := func(p int) int {
		if p > cursorOffset {
			return p + len(CursorMarker)
		}
		return p
	}

	var b strings.Builder
	last := 0
	any := false
	for i := range units {
		if !collapsed[i] {
			continue
		}
		bs, be := adj(units[i].Body.Start), adj(units[i].Body.End)
		if bs < last || be > len(marked) || bs >= be {
			continue
		}
		// The marker never sits inside a collapsed body; containment
		// promotion upstream guarantees it. Double-checked here because
		// losing the marker is unrecoverable.
		if bs <= cursorOffset && cursorOffset < be {
			continue
		}
		b.WriteString(marked[last:bs])
		if marked[bs] == '{' {
			b.WriteString("{ " + Placeholder + " }")
		} else {
			b.WriteString(" " + Placeholder)
		}
		last = be
		any = true
	}
	b.WriteString(marked[last:])
	return b.String(), any
}

// dropDuplicateLines removes a line when an identical non-trivial line was
// emitted within the last dedupLookback lines. Short punctuation-only lines
// (closing braces and the like) legitimately repeat and are never dropped,
// nor is the line carrying the cursor marker.
func dropDuplicateLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isDuplicate(line, out) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isDuplicate(line string, emitted []string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 || strings.Contains(line, CursorMarker) {
		return false
	}
	start := len(emitted) - dedupLookback
	if start < 0 {
		start = 0
	}
	for _, prev := range emitted[start:] {
		if prev == line {
			return true
		}
	}
	return false
}

// windowTruncate keeps a line-aligned window split evenly around the cursor
// marker and tags each cut side with the truncation marker. The marker
// itself always survives, whatever the budget.
func windowTruncate(text string, budget int) string {
	markerIdx := strings.Index(text, CursorMarker)
	if markerIdx < 0 {
		if len(text) > budget {
			return text[:budget]
		}
		return text
	}
	markerEnd := markerIdx + len(CursorMarker)

	half := (budget - len(CursorMarker)) / 2
	if half < 0 {
		half = 0
	}
	start := markerIdx - half
	end := markerEnd + half
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}

	// Align inward to line boundaries so no partial line leaks in.
	if start > 0 {
		if nl := strings.IndexByte(text[start:markerIdx], '\n'); nl >= 0 {
			start += nl + 1
		}
	}
	if end < len(text) {
		if nl := strings.LastIndexByte(text[markerEnd:end], '\n'); nl >= 0 {
			end = markerEnd + nl
		}
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(TruncationMarker + "\n")
	}
	b.WriteString(text[start:end])
	if end < len(text) {
		b.WriteString("\n" + TruncationMarker)
	}
	return b.String()
}

// preservedNames lists every named unit whose full text survived verbatim:
// kept, body intact, and no collapsed unit anywhere inside its range.
func preservedNames(units []extract.Unit, collapsed map[int]bool) []string {
	var names []string
	for i := range units {
		if collapsed[i] || units[i].Name == "" || !units[i].HasBody() {
			continue
		}
		verbatim := true
		for j := range units {
			if !collapsed[j] || j == i {
				continue
			}
			// A collapsed unit inside this one mutates its body; this
			// unit inside a collapsed one vanished with it.
			if units[i].Full.Contains(units[j].Full.Start) || units[j].Full.Contains(units[i].Full.Start) {
				verbatim = false
				break
			}
		}
		if verbatim {
			names = append(names, units[i].Name)
		}
	}
	return names
}
