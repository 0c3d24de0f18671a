// Package knowledge holds the in-memory retrieval index: page contexts
// addressed by chunk ranges, the embedding of every chunk, and the top-k
// lookup that maps the best-scoring chunks back to their pages.
package knowledge

import (
	"errors"
	"time"
)

var (
	// ErrEmptyIndex is returned when querying a knowledge base that is not
	// ready or holds no chunks.
	ErrEmptyIndex = errors.New("knowledge base is empty")
	// ErrRangeNotFound means a chunk position fell outside every range. A
	// correctly built index never produces it.
	ErrRangeNotFound = errors.New("chunk position not covered by any range")
	// ErrNoContent is returned by a build whose pages yielded no chunks.
	ErrNoContent = errors.New("no indexable content found")
	// ErrDimensionMismatch is returned when a query vector has the wrong length.
	ErrDimensionMismatch = errors.New("query vector dimension mismatch")
)

// Status is the lifecycle state of a KnowledgeBase.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusBuilding Status = "building"
	StatusReady    Status = "ready"
)

// Document is one page as handed to the generator.
type Document struct {
	URL     string `json:"url"`
	Context string `json:"context"`
}

// ChunkRange is the half-open interval [Start, End) of global chunk
// positions owned by one document.
type ChunkRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len is the number of positions in the range.
func (r ChunkRange) Len() int { return r.End - r.Start }

// Contains reports whether pos lies inside the range.
func (r ChunkRange) Contains(pos int) bool { return r.Start <= pos && pos < r.End }

// Stats summarizes one build.
type Stats struct {
	PagesResolved int `json:"pages_resolved"`
	PagesCrawled  int `json:"pages_crawled"`
	PagesSkipped  int `json:"pages_skipped"`
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
}

// KnowledgeBase is an immutable, fully built index. Ranges and Documents
// are aligned index for index. Embeddings and Texts are aligned with the
// global chunk positions; the reserved gap after each range holds a nil
// vector and an empty text.
type KnowledgeBase struct {
	ID         string       `json:"id"`
	SourceURL  string       `json:"source_url"`
	Model      string       `json:"model"`
	Status     Status       `json:"status"`
	BuiltAt    time.Time    `json:"built_at"`
	Ranges     []ChunkRange `json:"ranges"`
	Documents  []Document   `json:"documents"`
	Embeddings [][]float32  `json:"embeddings"`
	Texts      []string     `json:"texts"`
	Stats      Stats        `json:"stats"`
}

// Empty returns a knowledge base in the empty state.
func Empty() *KnowledgeBase {
	return &KnowledgeBase{Status: StatusEmpty}
}

// NumChunks counts embedded positions, excluding gaps.
func (kb *KnowledgeBase) NumChunks() int {
	n := 0
	for _, r := range kb.Ranges {
		n += r.Len()
	}
	return n
}

// Dimensions returns the vector length, or 0 when nothing is embedded.
func (kb *KnowledgeBase) Dimensions() int {
	for _, v := range kb.Embeddings {
		if len(v) > 0 {
			return len(v)
		}
	}
	return 0
}

// Ready reports whether the knowledge base can answer queries.
func (kb *KnowledgeBase) Ready() bool {
	return kb != nil && kb.Status == StatusReady && kb.NumChunks() > 0
}
