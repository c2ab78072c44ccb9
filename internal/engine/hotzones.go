package engine

import (
	"sort"
	"strings"

	"cwb/internal/document"
	"cwb/internal/extract"
)

// hotZones picks offsets likely to be future completion request sites:
// positions after opening braces, after signatures, after the import
// section, and at statement ends. Capped and deduplicated.
func hotZones(doc *document.Document, units []extract.Unit, max int) []int {
	if max <= 0 {
		max = 20
	}

	seen := make(map[int]struct{})
	var zones []int
	add := func(offset int) {
		offset = doc.ClampOffset(offset)
		if _, dup := seen[offset]; dup {
			return
		}
		seen[offset] = struct{}{}
		zones = append(zones, offset)
	}

	for _, u := range units {
		switch {
		case u.Kind == extract.KindImports:
			add(u.Full.End)
		case u.HasBody():
			add(u.Body.Start + 1)
			add(u.Signature.End)
		}
	}

	// Statement ends: offsets just past lines that close a statement.
	pos := 0
	for _, line := range strings.Split(doc.Text, "\n") {
		end := pos + len(line)
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, ")") {
			add(end)
		}
		pos = end + 1
	}

	sort.Ints(zones)
	if len(zones) > max {
		zones = zones[:max]
	}
	return zones
}
