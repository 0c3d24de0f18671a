package extract

import "sort"

// Fragment is one piece of visible text together with the tag it came from.
type Fragment struct {
	Tag     string `json:"type"`
	Content string `json:"content"`
}

// Meta is a single <meta> element that carried a non-empty content value.
type Meta struct {
	Name     string `json:"name,omitempty"`
	Property string `json:"property,omitempty"`
	Content  string `json:"content"`
}

// Key returns the name attribute, or the property attribute when name is absent.
func (m Meta) Key() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Property
}

// Heading is a section of a page introduced by an h1-h6 element.
type Heading struct {
	Level     int        `json:"level"`
	Position  int        `json:"position"`
	Fragments []Fragment `json:"texts"`
}

// PageRecord is the structured content of one page.
type PageRecord struct {
	Title    string             `json:"title"`
	Metadata []Meta             `json:"metadatas"`
	Headings map[string]Heading `json:"headings"`
	Orphans  []Fragment         `json:"orphan_texts"`
}

// NewPageRecord returns an empty record with non-nil containers.
func NewPageRecord() PageRecord {
	return PageRecord{
		Metadata: []Meta{},
		Headings: map[string]Heading{},
		Orphans:  []Fragment{},
	}
}

// IsEmpty reports whether the record carries no content at all.
func (r PageRecord) IsEmpty() bool {
	return r.Title == "" && len(r.Metadata) == 0 && len(r.Headings) == 0 && len(r.Orphans) == 0
}

// HeadingEntry pairs a heading key with its section.
type HeadingEntry struct {
	Text string
	Heading
}

// SortedHeadings returns the headings ordered by Position.
func (r PageRecord) SortedHeadings() []HeadingEntry {
	out := make([]HeadingEntry, 0, len(r.Headings))
	for text, h := range r.Headings {
		out = append(out, HeadingEntry{Text: text, Heading: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
