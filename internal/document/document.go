// Package document provides immutable snapshots of source files. A snapshot
// is taken once per request inside the engine's exclusive section; every
// downstream stage works on the snapshot and never sees concurrent edits.
package document

import (
	"fmt"
	"os"

	"cwb/internal/errors"
)

// Document is an immutable snapshot of a source file at a point in time.
// Stale snapshots are never mutated, only replaced by fresh ones.
type Document struct {
	Path  string
	Stamp int64 // modification stamp (mtime nanos for disk files, caller-supplied otherwise)
	Text  string
}

// Position locates a cursor within a specific Document snapshot.
type Position struct {
	Offset int
	Line   int // 0-indexed
}

// NewDocument creates a snapshot from in-memory text.
func NewDocument(path string, stamp int64, text string) *Document {
	return &Document{Path: path, Stamp: stamp, Text: text}
}

// Snapshot reads a file from disk and snapshots its content and mtime.
func Snapshot(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(errors.DocumentUnreadable, fmt.Sprintf("cannot stat %s", path), err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.DocumentUnreadable, fmt.Sprintf("cannot read %s", path), err)
	}
	return &Document{
		Path:  path,
		Stamp: info.ModTime().UnixNano(),
		Text:  string(data),
	}, nil
}

// Len returns the text length in bytes.
func (d *Document) Len() int {
	return len(d.Text)
}

// ClampOffset bounds an offset to the valid range [0, len(text)].
func (d *Document) ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(d.Text) {
		return len(d.Text)
	}
	return offset
}

// PositionAt computes the Position for a byte offset.
func (d *Document) PositionAt(offset int) Position {
	offset = d.ClampOffset(offset)
	line := 0
	for i := 0; i < offset; i++ {
		if d.Text[i] == '\n' {
			line++
		}
	}
	return Position{Offset: offset, Line: line}
}

// LineStart returns the offset of the first byte of the line containing offset.
func (d *Document) LineStart(offset int) int {
	offset = d.ClampOffset(offset)
	for offset > 0 && d.Text[offset-1] != '\n' {
		offset--
	}
	return offset
}

// LineEnd returns the offset just past the last byte of the line containing
// offset, excluding the newline itself.
func (d *Document) LineEnd(offset int) int {
	offset = d.ClampOffset(offset)
	for offset < len(d.Text) && d.Text[offset] != '\n' {
		offset++
	}
	return offset
}

// CurrentLine returns the full text of the line containing offset.
func (d *Document) CurrentLine(offset int) string {
	return d.Text[d.LineStart(offset):d.LineEnd(offset)]
}
