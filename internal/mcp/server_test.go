package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/siterag/internal/db"
	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/rag"
)

const sitemapURL = "https://docs.example.com/sitemap.xml"

func testKB() *knowledge.KnowledgeBase {
	return &knowledge.KnowledgeBase{
		ID:        "kb-1",
		SourceURL: sitemapURL,
		Model:     "mock",
		Status:    knowledge.StatusReady,
		BuiltAt:   time.Now().UTC(),
		Ranges:    []knowledge.ChunkRange{{Start: 0, End: 1}, {Start: 1, End: 2}},
		Documents: []knowledge.Document{
			{URL: "https://docs.example.com/install", Context: "Title: Install\n"},
			{URL: "https://docs.example.com/billing", Context: "Title: Billing\n"},
		},
		Embeddings: [][]float32{{1, 0}, {0, 1}},
		Texts:      []string{"Run the installer.", "Invoices and payment methods."},
		Stats:      knowledge.Stats{PagesCrawled: 2, Documents: 2, Chunks: 2},
	}
}

// mockBuilder implements rag.Builder for testing.
type mockBuilder struct {
	kb  *knowledge.KnowledgeBase
	err error
}

func (m *mockBuilder) Build(context.Context, string) (*knowledge.KnowledgeBase, error) {
	return m.kb, m.err
}

// mockEmbedder maps anything mentioning payments to the billing vector.
type mockEmbedder struct{}

func (mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "pay") {
			out[i] = []float32{0, 1}
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}
func (mockEmbedder) Dimensions() int { return 2 }
func (mockEmbedder) Name() string    { return "mock" }

type mockGenerator struct {
	reply string
	err   error
}

func (m *mockGenerator) Generate(context.Context, string) (string, error) {
	return m.reply, m.err
}

func newTestServer(t *testing.T, b rag.Builder, gen *mockGenerator) *Server {
	t.Helper()
	svc := rag.New(rag.Config{Builder: b, Embedder: mockEmbedder{}, Generator: gen})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return NewServer(svc)
}

func ingested(t *testing.T, gen *mockGenerator) *Server {
	t.Helper()
	srv := newTestServer(t, &mockBuilder{kb: testKB()}, gen)
	_, err := srv.svc.Ingest(context.Background(), rag.IngestRequest{SitemapURL: sitemapURL})
	require.NoError(t, err)
	return srv
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
		required []string
	}{
		{askSiteTool, "ask_site", []string{"question"}},
		{searchSiteTool, "search_site", []string{"query"}},
		{ingestSitemapTool, "ingest_sitemap", []string{"sitemap_url"}},
		{knowledgeStatusTool, "knowledge_status", nil},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			assert.Equal(t, tt.wantName, tt.tool.Name)
			assert.NotEmpty(t, tt.tool.Description)
			assert.ElementsMatch(t, tt.required, tt.tool.InputSchema.Required)
		})
	}
}

func TestNewServer(t *testing.T) {
	srv := newTestServer(t, &mockBuilder{}, &mockGenerator{})
	require.NotNil(t, srv)
	assert.NotNil(t, srv.mcp)
	assert.NotNil(t, srv.svc)
}

func TestHandleAskSite(t *testing.T) {
	ctx := context.Background()

	t.Run("answers with sources", func(t *testing.T) {
		srv := ingested(t, &mockGenerator{reply: "  Open Settings > Billing.  "})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "How do I pay?", "k": float64(1)}

		result, err := srv.handleAskSite(ctx, req)
		require.NoError(t, err)
		require.False(t, result.IsError, resultText(t, result))

		text := resultText(t, result)
		assert.True(t, strings.HasPrefix(text, "Open Settings > Billing.\n"))
		assert.Contains(t, text, "1. https://docs.example.com/billing")
		assert.NotContains(t, text, "/install")
	})

	t.Run("missing question", func(t *testing.T) {
		srv := ingested(t, &mockGenerator{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleAskSite(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("empty knowledge base", func(t *testing.T) {
		srv := newTestServer(t, &mockBuilder{}, &mockGenerator{reply: "x"})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "anything"}

		result, err := srv.handleAskSite(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "ingest_sitemap")
	})

	t.Run("generation failure", func(t *testing.T) {
		srv := ingested(t, &mockGenerator{err: errors.New("quota exceeded")})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"question": "install"}

		result, err := srv.handleAskSite(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "quota exceeded")
	})
}

func TestHandleSearchSite(t *testing.T) {
	ctx := context.Background()
	srv := ingested(t, &mockGenerator{})

	t.Run("ranked results", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"query": "installing", "k": float64(2)}

		result, err := srv.handleSearchSite(ctx, req)
		require.NoError(t, err)
		require.False(t, result.IsError)

		text := resultText(t, result)
		assert.Contains(t, text, "Found 2 result(s):")
		assert.Less(t, strings.Index(text, "/install"), strings.Index(text, "/billing"))
		assert.Contains(t, text, "Run the installer.")
	})

	t.Run("missing query", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleSearchSite(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestHandleIngestSitemap(t *testing.T) {
	ctx := context.Background()

	t.Run("wait", func(t *testing.T) {
		srv := newTestServer(t, &mockBuilder{kb: testKB()}, &mockGenerator{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"sitemap_url": sitemapURL, "wait": true}

		result, err := srv.handleIngestSitemap(ctx, req)
		require.NoError(t, err)
		require.False(t, result.IsError, resultText(t, result))
		assert.Contains(t, resultText(t, result), "succeeded: 2 pages, 2 documents, 2 chunks")
		assert.Equal(t, "kb-1", srv.svc.Current().ID)
	})

	t.Run("background", func(t *testing.T) {
		srv := newTestServer(t, &mockBuilder{kb: testKB()}, &mockGenerator{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"sitemap_url": sitemapURL}

		result, err := srv.handleIngestSitemap(ctx, req)
		require.NoError(t, err)
		require.False(t, result.IsError)
		assert.Contains(t, resultText(t, result), "ingestion started")

		srv.svc.Wait()
		assert.True(t, srv.svc.Current().Ready())
	})

	t.Run("failed build", func(t *testing.T) {
		srv := newTestServer(t, &mockBuilder{err: errors.New("sitemap unreachable")}, &mockGenerator{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"sitemap_url": sitemapURL, "wait": true}

		result, err := srv.handleIngestSitemap(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "sitemap unreachable")
	})

	t.Run("invalid url", func(t *testing.T) {
		srv := newTestServer(t, &mockBuilder{kb: testKB()}, &mockGenerator{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"sitemap_url": "not a url"}

		result, err := srv.handleIngestSitemap(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("snapshot without store", func(t *testing.T) {
		srv := newTestServer(t, &mockBuilder{kb: testKB()}, &mockGenerator{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"sitemap_url": sitemapURL, "store_snapshot": true}

		result, err := srv.handleIngestSitemap(ctx, req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), rag.ErrNoSnapshotStore.Error())
	})
}

func TestHandleKnowledgeStatus(t *testing.T) {
	ctx := context.Background()

	empty := newTestServer(t, &mockBuilder{}, &mockGenerator{})
	result, err := empty.handleKnowledgeStatus(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, "State: empty\n", resultText(t, result))

	srv := ingested(t, &mockGenerator{})
	result, err = srv.handleKnowledgeStatus(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "State: ready")
	assert.Contains(t, text, "Knowledge base: kb-1")
	assert.Contains(t, text, "Documents: 2, chunks: 2")
	assert.Contains(t, text, "Last run: Run ")
}

func TestFormatSearchResults(t *testing.T) {
	t.Run("empty results", func(t *testing.T) {
		assert.Equal(t, "Found 0 result(s):\n", formatSearchResults(nil))
	})

	t.Run("single result", func(t *testing.T) {
		out := formatSearchResults([]knowledge.ScoredDocument{{
			Document: knowledge.Document{URL: "https://docs.example.com/install"},
			Score:    0.9523,
			Snippet:  "Run the installer.",
		}})
		for _, want := range []string{"https://docs.example.com/install", "95.2%", "Run the installer."} {
			assert.Contains(t, out, want)
		}
	})
}

func TestFormatRun(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	out := formatRun(&db.Run{
		ID:         "r1",
		Status:     db.RunSucceeded,
		Pages:      3,
		Documents:  2,
		Chunks:     7,
		Error:      "snapshot: disk full",
		StartedAt:  started,
		FinishedAt: &finished,
	})
	assert.Equal(t, "Run r1 succeeded: 3 pages, 2 documents, 7 chunks in 1.5s\nError: snapshot: disk full\n", out)
}
