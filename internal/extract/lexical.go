package extract

import (
	"path/filepath"
	"strings"

	"cwb/internal/document"
	"cwb/internal/logging"
)

// LexicalExtractor is the fallback strategy when no syntax tree is
// available. It scans line-by-line with per-language signature patterns
// and locates unit bodies with a string/comment-aware brace counter.
type LexicalExtractor struct {
	logger      *logging.Logger
	maxFileSize int
	custom      map[Language][]SignaturePattern
}

// NewLexicalExtractor creates the lexical fallback extractor.
func NewLexicalExtractor(logger *logging.Logger, maxFileSize int) *LexicalExtractor {
	if maxFileSize <= 0 {
		maxFileSize = 1000000
	}
	return &LexicalExtractor{
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

// WithCustomPatterns adds caller-supplied signature patterns on top of
// the builtin tables.
func (e *LexicalExtractor) WithCustomPatterns(custom map[Language][]SignaturePattern) *LexicalExtractor {
	e.custom = custom
	return e
}

// Extract scans the document for structural units. It never fails:
// unknown languages, oversized files, and unbalanced input all degrade
// to fewer units.
func (e *LexicalExtractor) Extract(doc *document.Document) []Unit {
	if len(doc.Text) > e.maxFileSize {
		e.logger.Debug("file exceeds lexical scan limit", map[string]interface{}{
			"path": doc.Path,
			"size": len(doc.Text),
		})
		return nil
	}

	lang, ok := LanguageFromExtension(filepath.Ext(doc.Path))
	if !ok {
		return nil
	}

	patterns := builtinPatterns(lang)
	patterns = append(patterns, e.custom[lang]...)
	if len(patterns) == 0 {
		return nil
	}

	text := doc.Text
	var units []Unit

	// Import section first: a run of import-prefixed lines becomes one block.
	if u, found := scanImportBlock(text, lang); found {
		units = append(units, u)
	}

	for lineStart := 0; lineStart < len(text); {
		lineEnd := lineStart
		for lineEnd < len(text) && text[lineEnd] != '\n' {
			lineEnd++
		}
		line := text[lineStart:lineEnd]

		if u, found := e.matchLine(text, line, lineStart, lineEnd, lang, patterns); found {
			units = append(units, u)
		}

		lineStart = lineEnd + 1
	}

	SortUnits(units)
	return units
}

// matchLine tries each signature pattern against one line and, on a match,
// resolves the unit's body.
func (e *LexicalExtractor) matchLine(text, line string, lineStart, lineEnd int, lang Language, patterns []SignaturePattern) (Unit, bool) {
	for _, p := range patterns {
		m := p.Regexp.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}

		name := ""
		if p.NameGroup > 0 && 2*p.NameGroup+1 < len(m) && m[2*p.NameGroup] >= 0 {
			name = line[m[2*p.NameGroup]:m[2*p.NameGroup+1]]
		}

		if lang == LangPython {
			return pythonUnit(text, p.Kind, name, lineStart, lineEnd), true
		}

		openIdx, found := findOpenBrace(text, lineStart, lineEnd)
		if !found {
			// Declaration without a located body: the signature line alone.
			r := Range{Start: lineStart, End: lineEnd}
			return Unit{Kind: p.Kind, Name: name, Signature: r, Full: r}, true
		}

		closeIdx, closed := scanToClosingBrace(text, openIdx)
		end := closeIdx + 1
		if !closed {
			// Unbalanced input: truncate at the last scanned position.
			end = closeIdx
		}

		body := Range{Start: openIdx, End: end}
		return Unit{
			Kind:      p.Kind,
			Name:      name,
			Signature: Range{Start: lineStart, End: openIdx},
			Body:      &body,
			Full:      Range{Start: lineStart, End: end},
		}, true
	}
	return Unit{}, false
}

// findOpenBrace locates the opening brace for a signature: on the
// signature line itself, or on the next non-blank line.
func findOpenBrace(text string, lineStart, lineEnd int) (int, bool) {
	// A brace that closes the line is the body brace. Checking from the
	// right first keeps "func f(x interface{}) {" from matching the
	// parameter-type brace.
	for i := lineEnd - 1; i >= lineStart; i-- {
		c := text[i]
		if c == '{' {
			return i, true
		}
		if !isSpaceByte(c) {
			break
		}
	}
	for i := lineStart; i < lineEnd; i++ {
		if text[i] == '{' {
			return i, true
		}
	}

	// Next non-blank line may carry the brace (Allman style)
	i := lineEnd
	if i < len(text) && text[i] == '\n' {
		i++
	}
	for i < len(text) {
		nextEnd := i
		for nextEnd < len(text) && text[nextEnd] != '\n' {
			nextEnd++
		}
		lineText := strings.TrimSpace(text[i:nextEnd])
		if lineText == "" {
			i = nextEnd + 1
			continue
		}
		for j := i; j < nextEnd; j++ {
			if text[j] == '{' {
				return j, true
			}
			if !isSpaceByte(text[j]) {
				return 0, false
			}
		}
		return 0, false
	}
	return 0, false
}

// scanToClosingBrace finds the brace matching the one at openIdx with a
// single linear scan that tracks string and comment state, so braces
// inside literals and comments never affect the depth counter. When no
// closing brace exists the scan position at end-of-file is returned with
// closed=false; the caller truncates the unit there (soft failure).
func scanToClosingBrace(text string, openIdx int) (int, bool) {
	depth := 0
	inString := false
	var quote byte
	inBlockComment := false

	for i := openIdx; i < len(text); i++ {
		c := text[i]

		if inBlockComment {
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}

		if inString {
			switch {
			case c == '\\' && quote != '`':
				i++ // skip the escaped character
			case c == quote:
				inString = false
			case c == '\n' && quote != '`':
				// Unterminated single-line string: close it at end of
				// line so malformed input cannot poison the whole scan.
				inString = false
			}
			continue
		}

		switch c {
		case '"', '\'', '`':
			inString = true
			quote = c
		case '/':
			if i+1 < len(text) {
				switch text[i+1] {
				case '/':
					for i < len(text) && text[i] != '\n' {
						i++
					}
				case '*':
					inBlockComment = true
					i++
				}
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return len(text), false
}

// pythonUnit resolves a Python unit body by indentation: the body ends at
// the first subsequent non-blank line indented at or shallower than the
// signature line.
func pythonUnit(text string, kind Kind, name string, lineStart, lineEnd int) Unit {
	sigIndent := indentWidth(text[lineStart:lineEnd])

	end := lineEnd
	i := lineEnd + 1
	for i < len(text) {
		nextEnd := i
		for nextEnd < len(text) && text[nextEnd] != '\n' {
			nextEnd++
		}
		line := text[i:nextEnd]
		if strings.TrimSpace(line) != "" {
			if indentWidth(line) <= sigIndent {
				break
			}
			end = nextEnd
		}
		i = nextEnd + 1
	}

	unit := Unit{
		Kind:      kind,
		Name:      name,
		Signature: Range{Start: lineStart, End: lineEnd},
		Full:      Range{Start: lineStart, End: end},
	}
	if end > lineEnd {
		body := Range{Start: lineEnd, End: end}
		unit.Body = &body
	}
	return unit
}

// scanImportBlock finds the first run of import-prefixed lines and emits
// it as a single imports unit.
func scanImportBlock(text string, lang Language) (Unit, bool) {
	re := importLinePattern(lang)
	if re == nil {
		return Unit{}, false
	}

	start := -1
	end := -1
	lineStart := 0
	for lineStart < len(text) {
		lineEnd := lineStart
		for lineEnd < len(text) && text[lineEnd] != '\n' {
			lineEnd++
		}
		line := text[lineStart:lineEnd]
		trimmed := strings.TrimSpace(line)

		switch {
		case re.MatchString(line):
			if start < 0 {
				start = lineStart
			}
			end = lineEnd
		case start >= 0 && trimmed == "":
			// blank lines inside the import section are fine
		case start >= 0:
			r := Range{Start: start, End: end}
			return Unit{Kind: KindImports, Signature: r, Full: r}, true
		}
		lineStart = lineEnd + 1
	}

	if start >= 0 {
		r := Range{Start: start, End: end}
		return Unit{Kind: KindImports, Signature: r, Full: r}, true
	}
	return Unit{}, false
}

func indentWidth(line string) int {
	w := 0
	for _, c := range line {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}
