// Package chunk turns a PageRecord into the two text forms the knowledge
// base needs: one context string handed to the generator, and a list of
// chunks that are embedded individually.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/siterag/internal/extract"
)

// Kind classifies a chunk by where it came from on the page.
type Kind string

const (
	KindTitle    Kind = "title"
	KindHeading  Kind = "heading"
	KindFragment Kind = "fragment"
	KindOrphan   Kind = "orphan"
)

// TruncationMarker is appended to contexts cut at MaxChars.
const TruncationMarker = "\n[Content truncated]"

// Chunk is one embeddable piece of a page.
type Chunk struct {
	Text         string `json:"text"`
	Kind         Kind   `json:"kind"`
	Tag          string `json:"tag,omitempty"`
	Source       string `json:"source"`
	Heading      string `json:"heading,omitempty"`
	HeadingLevel int    `json:"heading_level,omitempty"`
	Position     int    `json:"position,omitempty"`
}

// ContextOptions controls FormatContext.
type ContextOptions struct {
	IncludeMetadata bool
	MaxChars        int // 0 means unlimited
}

// DefaultContextOptions includes metadata and never truncates.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{IncludeMetadata: true}
}

// FormatContext renders a page as a single markdown-like document.
func FormatContext(rec extract.PageRecord, opts ContextOptions) string {
	var parts []string

	if rec.Title != "" {
		parts = append(parts, "Title: "+rec.Title+"\n")
	}

	if opts.IncludeMetadata {
		var lines []string
		for _, m := range rec.Metadata {
			if m.Key() == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", m.Key(), m.Content))
		}
		if len(lines) > 0 {
			parts = append(parts, "Metadata:")
			parts = append(parts, lines...)
			parts = append(parts, "")
		}
	}

	for _, h := range rec.SortedHeadings() {
		parts = append(parts, "\n"+strings.Repeat("#", h.Level)+" "+h.Text)
		for _, f := range h.Fragments {
			parts = append(parts, f.Content)
		}
	}

	if len(rec.Orphans) > 0 {
		parts = append(parts, "\nAdditional Content:")
		for _, f := range rec.Orphans {
			parts = append(parts, f.Content)
		}
	}

	return truncate(strings.Join(parts, "\n"), opts.MaxChars)
}

// truncate cuts s to limit bytes, backs off to the last line break and marks
// the cut. Strings within the limit are returned unchanged.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	// Never split a multi-byte rune.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	if i := strings.LastIndex(cut, "\n"); i >= 0 {
		cut = cut[:i]
	}
	return cut + TruncationMarker
}

// FormatChunks returns the page's chunks in a fixed order: title, each
// heading by position followed by its fragments, then orphans. The result
// has 1{title} + sum(1+len(fragments)) + len(orphans) entries.
func FormatChunks(source string, rec extract.PageRecord) []Chunk {
	chunks := make([]Chunk, 0, Count(rec))

	if rec.Title != "" {
		chunks = append(chunks, Chunk{Text: rec.Title, Kind: KindTitle, Source: source})
	}

	for _, h := range rec.SortedHeadings() {
		chunks = append(chunks, Chunk{
			Text:         h.Text,
			Kind:         KindHeading,
			Tag:          fmt.Sprintf("h%d", h.Level),
			Source:       source,
			Heading:      h.Text,
			HeadingLevel: h.Level,
			Position:     h.Position,
		})
		for _, f := range h.Fragments {
			chunks = append(chunks, Chunk{
				Text:         f.Content,
				Kind:         KindFragment,
				Tag:          f.Tag,
				Source:       source,
				Heading:      h.Text,
				HeadingLevel: h.Level,
			})
		}
	}

	for _, f := range rec.Orphans {
		chunks = append(chunks, Chunk{Text: f.Content, Kind: KindOrphan, Tag: f.Tag, Source: source})
	}
	return chunks
}

// Count is the number of chunks FormatChunks produces for rec.
func Count(rec extract.PageRecord) int {
	n := len(rec.Orphans)
	if rec.Title != "" {
		n++
	}
	for _, h := range rec.Headings {
		n += 1 + len(h.Fragments)
	}
	return n
}

// Texts extracts the embeddable text of each chunk.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
