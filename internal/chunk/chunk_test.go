package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/siterag/internal/extract"
)

func samplePage() extract.PageRecord {
	rec := extract.NewPageRecord()
	rec.Title = "Guide"
	rec.Metadata = []extract.Meta{
		{Name: "description", Content: "How to"},
		{Property: "og:type", Content: "article"},
	}
	rec.Headings["Setup"] = extract.Heading{Level: 2, Position: 1, Fragments: []extract.Fragment{
		{Tag: "p", Content: "Install it."},
	}}
	rec.Headings["Intro"] = extract.Heading{Level: 1, Position: 0, Fragments: []extract.Fragment{
		{Tag: "p", Content: "Welcome."},
		{Tag: "li", Content: "Fast"},
	}}
	rec.Orphans = []extract.Fragment{{Tag: "span", Content: "Footer"}}
	return rec
}

func TestFormatContext(t *testing.T) {
	got := FormatContext(samplePage(), DefaultContextOptions())
	want := strings.Join([]string{
		"Title: Guide\n",
		"Metadata:",
		"description: How to",
		"og:type: article",
		"",
		"\n# Intro",
		"Welcome.",
		"Fast",
		"\n## Setup",
		"Install it.",
		"\nAdditional Content:",
		"Footer",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestFormatContext_WithoutMetadata(t *testing.T) {
	got := FormatContext(samplePage(), ContextOptions{})
	assert.NotContains(t, got, "Metadata:")
	assert.True(t, strings.HasPrefix(got, "Title: Guide\n\n\n# Intro"))
}

func TestFormatContext_SkipsKeylessMetadata(t *testing.T) {
	rec := samplePage()
	rec.Metadata = append(rec.Metadata, extract.Meta{Content: "text/html; charset=utf-8"})
	got := FormatContext(rec, DefaultContextOptions())
	assert.NotContains(t, got, "charset")
	assert.NotContains(t, got, "\n: ")

	rec.Metadata = []extract.Meta{{Content: "orphan value"}}
	got = FormatContext(rec, DefaultContextOptions())
	assert.NotContains(t, got, "Metadata:")
	assert.True(t, strings.HasPrefix(got, "Title: Guide\n\n\n# Intro"))
}

func TestFormatContext_EmptyRecord(t *testing.T) {
	assert.Equal(t, "", FormatContext(extract.NewPageRecord(), DefaultContextOptions()))
}

func TestFormatContext_Truncation(t *testing.T) {
	rec := samplePage()
	full := FormatContext(rec, ContextOptions{})

	t.Run("within limit is unchanged", func(t *testing.T) {
		assert.Equal(t, full, FormatContext(rec, ContextOptions{MaxChars: len(full)}))
	})

	t.Run("cut at last line break", func(t *testing.T) {
		got := FormatContext(rec, ContextOptions{MaxChars: 30})
		require.True(t, strings.HasSuffix(got, TruncationMarker))
		body := strings.TrimSuffix(got, TruncationMarker)
		assert.True(t, strings.HasPrefix(full, body))
		assert.LessOrEqual(t, len(body), 30)
		assert.Equal(t, "\n", full[len(body):len(body)+1])
	})

	t.Run("no line break keeps the hard cut", func(t *testing.T) {
		got := truncate(strings.Repeat("x", 100), 10)
		assert.Equal(t, strings.Repeat("x", 10)+TruncationMarker, got)
	})

	t.Run("multi-byte text stays valid utf-8", func(t *testing.T) {
		s := strings.Repeat("héllo wörld 日本語 ", 10)
		for limit := 1; limit < 40; limit++ {
			got := truncate(s, limit)
			require.True(t, strings.HasSuffix(got, TruncationMarker))
			body := strings.TrimSuffix(got, TruncationMarker)
			assert.True(t, utf8.ValidString(got), "limit %d", limit)
			assert.LessOrEqual(t, len(body), limit)
			assert.True(t, strings.HasPrefix(s, body))
		}
	})
}

func TestFormatChunks_OrderAndKinds(t *testing.T) {
	chunks := FormatChunks("https://site/guide", samplePage())

	kinds := make([]Kind, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		kinds[i] = c.Kind
		texts[i] = c.Text
		assert.Equal(t, "https://site/guide", c.Source)
	}
	assert.Equal(t, []Kind{KindTitle, KindHeading, KindFragment, KindFragment, KindHeading, KindFragment, KindOrphan}, kinds)
	assert.Equal(t, []string{"Guide", "Intro", "Welcome.", "Fast", "Setup", "Install it.", "Footer"}, texts)
	assert.Equal(t, texts, Texts(chunks))

	assert.Equal(t, "h1", chunks[1].Tag)
	assert.Equal(t, "Intro", chunks[2].Heading)
	assert.Equal(t, 1, chunks[2].HeadingLevel)
	assert.Equal(t, "li", chunks[3].Tag)
	assert.Equal(t, 2, chunks[5].HeadingLevel)
}

func TestFormatChunks_CountFormula(t *testing.T) {
	cases := map[string]extract.PageRecord{
		"sample": samplePage(),
		"empty":  extract.NewPageRecord(),
	}
	noTitle := samplePage()
	noTitle.Title = ""
	cases["no title"] = noTitle

	onlyOrphans := extract.NewPageRecord()
	onlyOrphans.Orphans = []extract.Fragment{{Tag: "p", Content: "a"}, {Tag: "p", Content: "b"}}
	cases["only orphans"] = onlyOrphans

	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			want := len(rec.Orphans)
			if rec.Title != "" {
				want++
			}
			for _, h := range rec.Headings {
				want += 1 + len(h.Fragments)
			}
			assert.Len(t, FormatChunks("u", rec), want)
			assert.Equal(t, want, Count(rec))
		})
	}
}

func TestFormatChunks_Deterministic(t *testing.T) {
	a := FormatChunks("u", samplePage())
	b := FormatChunks("u", samplePage())
	assert.Equal(t, a, b)
}
