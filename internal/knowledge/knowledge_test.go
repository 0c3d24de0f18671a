package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/siterag/internal/chunk"
	"github.com/ziadkadry99/siterag/internal/embeddings"
	"github.com/ziadkadry99/siterag/internal/extract"
)

func page(title string, headings map[string][]string, orphans ...string) extract.PageRecord {
	rec := extract.NewPageRecord()
	rec.Title = title
	pos := 0
	for h, frags := range headings {
		var fs []extract.Fragment
		for _, f := range frags {
			fs = append(fs, extract.Fragment{Tag: "p", Content: f})
		}
		rec.Headings[h] = extract.Heading{Level: 1, Position: pos, Fragments: fs}
		pos++
	}
	for _, o := range orphans {
		rec.Orphans = append(rec.Orphans, extract.Fragment{Tag: "p", Content: o})
	}
	return rec
}

func samplePages() map[string]extract.PageRecord {
	return map[string]extract.PageRecord{
		"https://site/b": page("Billing", map[string][]string{"Invoices": {"Download invoices monthly."}}),
		"https://site/a": page("About", nil, "We build tools."),
		"https://site/c": extract.NewPageRecord(),
		"https://site/d": page("Deploy", map[string][]string{"Steps": {"Push.", "Wait.", "Verify."}}, "Footer"),
	}
}

type stubResolver struct{ urls []string }

func (s stubResolver) Resolve(context.Context, string) []string { return s.urls }

type stubCrawler struct {
	pages map[string]extract.PageRecord
	err   error
}

func (s stubCrawler) Crawl(_ context.Context, urls []string, _ int) (map[string]extract.PageRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]extract.PageRecord{}
	for _, u := range urls {
		if rec, ok := s.pages[u]; ok {
			out[u] = rec
		} else {
			out[u] = extract.NewPageRecord()
		}
	}
	return out, nil
}

type recordingEmbedder struct {
	*embeddings.HashEmbedder
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
	short bool
}

func (r *recordingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	vecs, err := r.HashEmbedder.Embed(ctx, texts)
	if r.short {
		vecs = vecs[:len(vecs)-1]
	}
	return vecs, err
}

func newEmbedder() *recordingEmbedder {
	return &recordingEmbedder{HashEmbedder: embeddings.NewHashEmbedder(32)}
}

func TestFindRange(t *testing.T) {
	ranges := []ChunkRange{{0, 3}, {4, 5}, {6, 10}}

	for pos, want := range map[int]int{0: 0, 2: 0, 4: 1, 6: 2, 9: 2} {
		got, err := FindRange(ranges, pos)
		require.NoError(t, err, "pos %d", pos)
		assert.Equal(t, want, got, "pos %d", pos)
	}
	for _, gap := range []int{3, 5, 10, 42, -1} {
		_, err := FindRange(ranges, gap)
		assert.ErrorIs(t, err, ErrRangeNotFound, "pos %d", gap)
	}
	_, err := FindRange(nil, 0)
	assert.ErrorIs(t, err, ErrRangeNotFound)
}

func TestAssemble_RangesAndAlignment(t *testing.T) {
	emb := newEmbedder()
	b := NewBuilder(nil, nil, emb, DefaultBuildOptions())

	kb, err := b.Assemble(context.Background(), "https://site/sitemap.xml", samplePages())
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, StatusReady, kb.Status)
	assert.NotEmpty(t, kb.ID)

	// a: title + orphan = 2; b: title + heading + 1 = 3; c skipped;
	// d: title + heading + 3 + orphan = 6.
	assert.Equal(t, []ChunkRange{{0, 2}, {3, 6}, {7, 13}}, kb.Ranges)
	require.Len(t, kb.Documents, 3)
	assert.Equal(t, "https://site/a", kb.Documents[0].URL)
	assert.Equal(t, "https://site/b", kb.Documents[1].URL)
	assert.Equal(t, "https://site/d", kb.Documents[2].URL)
	assert.Equal(t, chunk.FormatContext(samplePages()["https://site/b"], chunk.DefaultContextOptions()), kb.Documents[1].Context)

	assert.Len(t, kb.Embeddings, 13)
	assert.Nil(t, kb.Embeddings[2])
	assert.Nil(t, kb.Embeddings[6])
	assert.Equal(t, "Billing", kb.Texts[3])
	assert.Equal(t, 11, kb.NumChunks())
	assert.Equal(t, Stats{PagesCrawled: 4, PagesSkipped: 1, Documents: 3, Chunks: 11}, kb.Stats)

	for i := 1; i < len(kb.Ranges); i++ {
		assert.Greater(t, kb.Ranges[i].Start, kb.Ranges[i-1].End-1)
		assert.Equal(t, kb.Ranges[i-1].End+1, kb.Ranges[i].Start)
	}
	for i, r := range kb.Ranges {
		for pos := r.Start; pos < r.End; pos++ {
			idx, err := FindRange(kb.Ranges, pos)
			require.NoError(t, err)
			assert.Equal(t, i, idx)
			assert.NotNil(t, kb.Embeddings[pos])
		}
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	b := NewBuilder(nil, nil, newEmbedder(), DefaultBuildOptions())
	first, err := b.Assemble(context.Background(), "s", samplePages())
	require.NoError(t, err)
	second, err := b.Assemble(context.Background(), "s", samplePages())
	require.NoError(t, err)

	assert.Equal(t, first.Ranges, second.Ranges)
	assert.Equal(t, first.Documents, second.Documents)
	assert.Equal(t, first.Embeddings, second.Embeddings)
}

func TestAssemble_Failures(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		b := NewBuilder(nil, nil, newEmbedder(), DefaultBuildOptions())
		_, err := b.Assemble(context.Background(), "s", map[string]extract.PageRecord{"u": extract.NewPageRecord()})
		assert.ErrorIs(t, err, ErrNoContent)
	})

	t.Run("embedder error", func(t *testing.T) {
		emb := newEmbedder()
		emb.err = errors.New("upstream down")
		_, err := NewBuilder(nil, nil, emb, DefaultBuildOptions()).Assemble(context.Background(), "s", samplePages())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream down")
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		emb := newEmbedder()
		emb.short = true
		_, err := NewBuilder(nil, nil, emb, DefaultBuildOptions()).Assemble(context.Background(), "s", samplePages())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vectors")
	})

	t.Run("embed timeout", func(t *testing.T) {
		emb := newEmbedder()
		emb.delay = time.Second
		opts := DefaultBuildOptions()
		opts.EmbedTimeout = 10 * time.Millisecond
		_, err := NewBuilder(nil, nil, emb, opts).Assemble(context.Background(), "s", samplePages())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})
}

func TestBuild(t *testing.T) {
	pages := samplePages()
	urls := []string{"https://site/d", "https://site/a", "https://site/x.pdf", "https://site/b"}
	opts := DefaultBuildOptions()
	opts.Filter.Exclude = []string{"*.pdf"}

	b := NewBuilder(stubResolver{urls: urls}, stubCrawler{pages: pages}, newEmbedder(), opts)
	kb, err := b.Build(context.Background(), "https://site/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, 4, kb.Stats.PagesResolved)
	assert.Equal(t, 3, kb.Stats.PagesCrawled)
	assert.Len(t, kb.Documents, 3)
	assert.Equal(t, "https://site/sitemap.xml", kb.SourceURL)

	_, err = NewBuilder(stubResolver{urls: urls}, stubCrawler{err: context.Canceled}, newEmbedder(), opts).
		Build(context.Background(), "s")
	assert.ErrorIs(t, err, context.Canceled)
}

// vectorKB builds a knowledge base with one chunk per document and the
// given unit-axis vectors, so scores against the query are exact.
func vectorKB(vecs ...[]float32) *KnowledgeBase {
	kb := &KnowledgeBase{ID: "t", Status: StatusReady}
	pos := 0
	for i, v := range vecs {
		kb.Ranges = append(kb.Ranges, ChunkRange{Start: pos, End: pos + 1})
		kb.Documents = append(kb.Documents, Document{URL: fmt.Sprintf("doc%d", i), Context: fmt.Sprintf("context %d", i)})
		kb.Embeddings = append(kb.Embeddings, v)
		kb.Texts = append(kb.Texts, fmt.Sprintf("chunk %d", i))
		if i < len(vecs)-1 {
			kb.Embeddings = append(kb.Embeddings, nil)
			kb.Texts = append(kb.Texts, "")
		}
		pos += 2
	}
	return kb
}

func TestTopKDocuments_ScoreOrder(t *testing.T) {
	// Scores against the query (1, 0) are 0.9, 0.5 and 0.8.
	kb := vectorKB(
		[]float32{0.9, 0.1},
		[]float32{0.5, 0.5},
		[]float32{0.8, 0.2},
	)

	docs, err := kb.TopKDocuments([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc0", docs[0].URL)
	assert.Equal(t, "doc2", docs[1].URL)
}

func TestTopKDocuments_KLargerThanN(t *testing.T) {
	kb := vectorKB([]float32{0.1, 0}, []float32{0.7, 0}, []float32{0.4, 0})

	docs, err := kb.TopKDocuments([]float32{1, 0}, 10)
	require.NoError(t, err)
	urls := []string{docs[0].URL, docs[1].URL, docs[2].URL}
	assert.Equal(t, []string{"doc1", "doc2", "doc0"}, urls)
}

func TestTopKDocuments_DeduplicatesAndTieBreaks(t *testing.T) {
	kb := &KnowledgeBase{
		Status:     StatusReady,
		Ranges:     []ChunkRange{{0, 2}, {3, 4}},
		Documents:  []Document{{URL: "first"}, {URL: "second"}},
		Embeddings: [][]float32{{1, 0}, {1, 0}, nil, {1, 0}},
		Texts:      []string{"a", "b", "", "c"},
	}

	scored, err := kb.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "first", scored[0].URL)
	assert.Equal(t, 0, scored[0].Position)
	assert.Equal(t, "a", scored[0].Snippet)
	assert.Equal(t, "second", scored[1].URL)
	assert.Equal(t, 3, scored[1].Position)
}

func TestTopKDocuments_KBelowOne(t *testing.T) {
	kb := vectorKB([]float32{1, 0}, []float32{0, 1})
	docs, err := kb.TopKDocuments([]float32{0, 1}, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc1", docs[0].URL)
}

func TestTopKDocuments_Errors(t *testing.T) {
	_, err := Empty().TopKDocuments([]float32{1}, 3)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	building := vectorKB([]float32{1, 0})
	building.Status = StatusBuilding
	_, err = building.TopKDocuments([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	_, err = vectorKB([]float32{1, 0}).TopKDocuments([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	corrupt := &KnowledgeBase{
		Status:     StatusReady,
		Ranges:     []ChunkRange{{0, 1}},
		Documents:  []Document{{URL: "x"}},
		Embeddings: [][]float32{{0, 1}, {1, 0}},
	}
	_, err = corrupt.TopKDocuments([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrRangeNotFound)
}

func TestStore(t *testing.T) {
	s := NewStore()
	assert.Equal(t, StatusEmpty, s.Current().Status)
	assert.False(t, s.Current().Ready())

	kb := vectorKB([]float32{1, 0})
	old := s.Swap(kb)
	assert.Equal(t, StatusEmpty, old.Status)
	assert.Same(t, kb, s.Current())

	s.Swap(nil)
	assert.Equal(t, StatusEmpty, s.Current().Status)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	a := vectorKB([]float32{1, 0})
	b := vectorKB([]float32{0, 1}, []float32{1, 0})
	s.Swap(a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				kb := s.Current()
				assert.True(t, kb == a || kb == b)
				_, err := kb.TopKDocuments([]float32{1, 0}, 1)
				assert.NoError(t, err)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		if j%2 == 0 {
			s.Swap(b)
		} else {
			s.Swap(a)
		}
	}
	wg.Wait()
}
