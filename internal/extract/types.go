// Package extract turns source text into an ordered list of structural
// units (functions, methods, classes, fields, import blocks). Two
// strategies exist behind one interface: a tree-sitter backed extractor
// with exact offsets, and a lexical fallback that scans signature patterns
// and counts braces. Malformed input never raises; it degrades to fewer
// or coarser units.
package extract

import (
	"sort"
	"strings"

	"cwb/internal/document"
)

// Language represents a supported programming language.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
)

// LanguageFromExtension maps a file extension (with dot) to a Language.
func LanguageFromExtension(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".go":
		return LangGo, true
	case ".js", ".jsx", ".mjs":
		return LangJavaScript, true
	case ".ts", ".mts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}

// Kind classifies a structural unit.
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
	KindField    Kind = "field"
	KindImports  Kind = "imports"
)

// Range is a half-open byte range [Start, End) within a document.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether offset falls inside the range.
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Len returns the range length in bytes.
func (r Range) Len() int {
	return r.End - r.Start
}

// Unit represents one function/method/class/import-block/field.
// Full always contains Body; sibling units at one nesting level never
// overlap, but units may nest (a class contains its methods).
type Unit struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name,omitempty"` // empty for anonymous units and import blocks
	Signature Range  `json:"signature"`
	Body      *Range `json:"body,omitempty"` // nil if the unit has no body
	Full      Range  `json:"full"`
}

// HasBody reports whether the unit has a body range.
func (u *Unit) HasBody() bool {
	return u.Body != nil
}

// ContainsOffset reports whether the unit's full range contains offset.
func (u *Unit) ContainsOffset(offset int) bool {
	return u.Full.Contains(offset)
}

// Extractor is the parse strategy selected at construction time.
type Extractor interface {
	// Extract returns the document's structural units ordered by start
	// offset. It never fails; unparseable input yields a nil slice.
	Extract(doc *document.Document) []Unit
}

// SortUnits orders units by start offset, outer units before the units
// they contain.
func SortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Full.Start != units[j].Full.Start {
			return units[i].Full.Start < units[j].Full.Start
		}
		return units[i].Full.End > units[j].Full.End
	})
}

// UnitAt returns the innermost unit whose full range contains offset,
// or nil if no unit does.
func UnitAt(units []Unit, offset int) *Unit {
	var best *Unit
	for i := range units {
		u := &units[i]
		if !u.ContainsOffset(offset) {
			continue
		}
		if best == nil || u.Full.Len() < best.Full.Len() {
			best = u
		}
	}
	return best
}

// FallbackUnit treats the whole cursor line as a unit. It is the terminal
// degradation when neither strategy can locate any unit boundary.
func FallbackUnit(doc *document.Document, offset int) Unit {
	start := doc.LineStart(offset)
	end := doc.LineEnd(offset)
	r := Range{Start: start, End: end}
	return Unit{
		Kind:      KindFunction,
		Signature: r,
		Full:      r,
	}
}
