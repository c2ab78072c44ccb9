package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"cwb/internal/document"
	"cwb/internal/extract"
)

// Tag names the semantic context at a cursor position. Exactly one tag is
// assigned per classification request.
type Tag string

const (
	TagMethodBody          Tag = "method_body"
	TagClassDeclaration    Tag = "class_declaration"
	TagImports             Tag = "imports"
	TagFieldDeclaration    Tag = "field_declaration"
	TagAfterOpenBrace      Tag = "after_open_brace"
	TagVariableAssignment  Tag = "variable_assignment"
	TagFunctionDeclaration Tag = "function_declaration"
	TagObjectLiteral       Tag = "object_literal"
	TagModuleExport        Tag = "module_export"
	TagUnknown             Tag = "unknown"
)

// heuristicWindow is how many lines before the cursor the lexical
// heuristics examine.
const heuristicWindow = 10

var (
	assignmentPattern    = regexp.MustCompile(`^\s*(?:(?:const|let|var|val)\s+)?[\w\.\[\]]+\s*(?::[^=]*)?=[^=]`)
	objectLiteralPattern = regexp.MustCompile(`[=:(,]\s*\{\s*$`)
	moduleExportPattern  = regexp.MustCompile(`^\s*(?:export\s|module\.exports\b)`)
)

// Classify assigns a context tag for the cursor offset. When the extractor
// produced units they drive the answer; otherwise, and for positions no unit
// covers, line-window heuristics decide. The tie-break between overlapping
// signals is method body, then class level, then after-open-brace, then
// variable assignment, then unknown.
func Classify(doc *document.Document, units []extract.Unit, offset int) Tag {
	offset = doc.ClampOffset(offset)

	if tag, ok := classifyByUnit(doc, units, offset); ok {
		return tag
	}
	return classifyByLines(doc, offset)
}

// classifyByUnit resolves the tag from the innermost structural unit
// containing the offset. Returns false when no unit covers the position or
// the covering unit alone is not decisive.
func classifyByUnit(doc *document.Document, units []extract.Unit, offset int) (Tag, bool) {
	unit := extract.UnitAt(units, offset)
	if unit == nil {
		return TagUnknown, false
	}

	switch unit.Kind {
	case extract.KindImports:
		return TagImports, true
	case extract.KindField:
		return TagFieldDeclaration, true
	case extract.KindFunction, extract.KindMethod:
		if unit.Body != nil && unit.Body.Contains(offset) {
			return TagMethodBody, true
		}
		return TagFunctionDeclaration, true
	case extract.KindClass:
		// Inside the class but outside every member. A trailing open
		// brace right before the cursor still wins over the bare
		// class-level answer.
		if isAfterOpenBrace(doc, offset) && unit.Body != nil && offset > unit.Body.Start {
			return TagAfterOpenBrace, true
		}
		return TagClassDeclaration, true
	}
	return TagUnknown, false
}

// classifyByLines applies the heuristic window when no structural unit is
// available for the position.
func classifyByLines(doc *document.Document, offset int) Tag {
	lang, known := extract.LanguageFromExtension(filepath.Ext(doc.Path))

	lines := windowBefore(doc, offset)
	if len(lines) == 0 {
		return TagUnknown
	}
	current := lines[len(lines)-1]

	if known && inImportSection(doc, lang, offset) {
		return TagImports
	}

	// Unmatched open braces in the window place the cursor inside some
	// body; the owning signature line tells us whose.
	if ownerLine, depth := unmatchedBraceOwner(lines); depth > 0 {
		if known {
			for _, p := range extract.PatternsFor(lang) {
				if !p.Regexp.MatchString(ownerLine) {
					continue
				}
				switch p.Kind {
				case extract.KindFunction, extract.KindMethod:
					return TagMethodBody
				case extract.KindClass:
					return TagClassDeclaration
				}
			}
		}
		if objectLiteralPattern.MatchString(ownerLine) {
			return TagObjectLiteral
		}
		return TagAfterOpenBrace
	}

	if isAfterOpenBrace(doc, offset) {
		return TagAfterOpenBrace
	}
	if known {
		for _, p := range extract.PatternsFor(lang) {
			if p.Regexp.MatchString(current) {
				switch p.Kind {
				case extract.KindClass:
					return TagClassDeclaration
				default:
					return TagFunctionDeclaration
				}
			}
		}
	}
	if moduleExportPattern.MatchString(current) {
		return TagModuleExport
	}
	if assignmentPattern.MatchString(current) {
		return TagVariableAssignment
	}
	return TagUnknown
}

// windowBefore returns up to heuristicWindow lines ending with the cursor
// line truncated at the cursor.
func windowBefore(doc *document.Document, offset int) []string {
	start := doc.LineStart(offset)
	current := doc.Text[start:offset]

	var lines []string
	lineEnd := start
	for i := 0; i < heuristicWindow-1 && lineEnd > 0; i++ {
		prevStart := doc.LineStart(lineEnd - 1)
		lines = append([]string{strings.TrimRight(doc.Text[prevStart:lineEnd-1], "\r")}, lines...)
		lineEnd = prevStart
	}
	lines = append(lines, current)
	return lines
}

// unmatchedBraceOwner counts brace depth across the window and returns the
// line owning the outermost still-open brace. The count skips string
// literals and line comments on each line, the same discipline the lexical
// scanner uses, but does not track block comments across lines.
func unmatchedBraceOwner(lines []string) (string, int) {
	depth := 0
	owner := ""
	var ownerStack []string
	for _, line := range lines {
		inString := false
		var quote byte
		for i := 0; i < len(line); i++ {
			c := line[i]
			if inString {
				if c == '\\' {
					i++
				} else if c == quote {
					inString = false
				}
				continue
			}
			switch c {
			case '"', '\'', '`':
				inString = true
				quote = c
			case '/':
				if i+1 < len(line) && line[i+1] == '/' {
					i = len(line)
				}
			case '{':
				depth++
				ownerStack = append(ownerStack, line)
			case '}':
				depth--
				if len(ownerStack) > 0 {
					ownerStack = ownerStack[:len(ownerStack)-1]
				}
			}
		}
	}
	if depth > 0 && len(ownerStack) > 0 {
		owner = ownerStack[0]
	}
	if depth < 0 {
		depth = 0
	}
	return owner, depth
}

// isAfterOpenBrace reports whether the last non-blank content before the
// cursor ends with an opening brace.
func isAfterOpenBrace(doc *document.Document, offset int) bool {
	text := doc.Text[:offset]
	trimmed := strings.TrimRight(text, " \t\r\n")
	return strings.HasSuffix(trimmed, "{")
}

// inImportSection reports whether the cursor still sits in the file's
// import section: the current or previous line is import-shaped and no
// non-trivial code appears between the last import line and the cursor.
func inImportSection(doc *document.Document, lang extract.Language, offset int) bool {
	pattern := extract.ImportPattern(lang)
	if pattern == nil {
		return false
	}

	cursorPos := doc.PositionAt(offset)
	lines := strings.Split(doc.Text, "\n")
	if cursorPos.Line >= len(lines) {
		return false
	}

	near := pattern.MatchString(lines[cursorPos.Line])
	if !near && cursorPos.Line > 0 {
		near = pattern.MatchString(lines[cursorPos.Line-1])
	}
	if !near {
		return false
	}

	lastImport := -1
	for i := 0; i <= cursorPos.Line && i < len(lines); i++ {
		if pattern.MatchString(lines[i]) {
			lastImport = i
		}
	}
	if lastImport < 0 {
		return false
	}
	for i := lastImport + 1; i <= cursorPos.Line && i < len(lines); i++ {
		if !isTrivialLine(lines[i]) {
			return false
		}
	}
	return true
}

func isTrivialLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#")
}
