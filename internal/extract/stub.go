//go:build !cgo

package extract

import (
	"cwb/internal/document"
	"cwb/internal/logging"
)

// TreeExtractor extracts structural units from a syntax tree.
// This is a stub implementation for non-CGO builds.
type TreeExtractor struct{}

// NewTreeExtractor creates a tree-sitter backed extractor.
// Returns nil when CGO is disabled.
func NewTreeExtractor(logger *logging.Logger) *TreeExtractor {
	return nil
}

// Available reports whether tree-aided extraction is compiled in.
// Returns false when CGO is disabled.
func Available() bool {
	return false
}

// Supports reports whether a grammar exists for the document's language.
// Stub implementation always reports false.
func (e *TreeExtractor) Supports(doc *document.Document) bool {
	return false
}

// Extract is the stub implementation; it finds no units so callers fall
// back to the lexical scanner.
func (e *TreeExtractor) Extract(doc *document.Document) []Unit {
	return nil
}
