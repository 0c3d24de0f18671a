package knowledge

import (
	"fmt"
	"sort"

	"github.com/ziadkadry99/siterag/internal/logger"
)

// ScoredDocument is a retrieved document with the score of its best chunk.
type ScoredDocument struct {
	Document
	Score    float32 `json:"score"`
	Position int     `json:"position"`
	Snippet  string  `json:"snippet,omitempty"`
}

// FindRange returns the index of the range containing pos. ranges must be
// sorted and disjoint.
func FindRange(ranges []ChunkRange, pos int) (int, error) {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].End > pos })
	if i < len(ranges) && ranges[i].Start <= pos {
		return i, nil
	}
	return -1, fmt.Errorf("%w: position %d", ErrRangeNotFound, pos)
}

// TopKDocuments returns up to k distinct documents ordered by their best
// chunk score. k < 1 is treated as 1.
func (kb *KnowledgeBase) TopKDocuments(query []float32, k int) ([]Document, error) {
	scored, err := kb.Search(query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(scored))
	for i, s := range scored {
		docs[i] = s.Document
	}
	return docs, nil
}

type positionScore struct {
	pos   int
	score float32
}

// Search is TopKDocuments with scores and the best matching chunk text.
func (kb *KnowledgeBase) Search(query []float32, k int) ([]ScoredDocument, error) {
	if !kb.Ready() {
		return nil, ErrEmptyIndex
	}
	if k < 1 {
		k = 1
	}
	if dims := kb.Dimensions(); len(query) != dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), dims)
	}

	scores := make([]positionScore, 0, kb.NumChunks())
	for pos, vec := range kb.Embeddings {
		if len(vec) == 0 {
			continue
		}
		scores = append(scores, positionScore{pos: pos, score: dot(query, vec)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	seen := make(map[int]bool, k)
	out := make([]ScoredDocument, 0, min(k, len(kb.Documents)))
	for _, ps := range scores {
		idx, err := FindRange(kb.Ranges, ps.pos)
		if err != nil {
			logger.Default().Error("Knowledge base index is inconsistent",
				"kb", kb.ID, "position", ps.pos, "err", err)
			return nil, fmt.Errorf("resolve chunk position: %w", err)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		sd := ScoredDocument{Document: kb.Documents[idx], Score: ps.score, Position: ps.pos}
		if ps.pos < len(kb.Texts) {
			sd.Snippet = kb.Texts[ps.pos]
		}
		out = append(out, sd)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
