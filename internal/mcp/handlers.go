package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/siterag/internal/db"
	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/rag"
)

// handleAskSite retrieves context for the question and generates an answer.
func (s *Server) handleAskSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	ans, err := s.svc.Ask(ctx, question, request.GetInt("k", 0))
	if err != nil {
		return toolError("ask failed", err), nil
	}

	return mcp.NewToolResultText(formatAnswer(ans)), nil
}

// handleSearchSite returns the pages closest to the query.
func (s *Server) handleSearchSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	results, err := s.svc.Search(ctx, query, request.GetInt("k", 0))
	if err != nil {
		return toolError("search failed", err), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}

	return mcp.NewToolResultText(formatSearchResults(results)), nil
}

// handleIngestSitemap starts a rebuild, optionally waiting for it.
func (s *Server) handleIngestSitemap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sitemapURL, err := request.RequireString("sitemap_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: sitemap_url"), nil
	}

	req := rag.IngestRequest{
		SitemapURL:    sitemapURL,
		StoreSnapshot: request.GetBool("store_snapshot", false),
	}

	if !request.GetBool("wait", false) {
		runID, err := s.svc.StartIngest(ctx, req)
		if err != nil {
			return toolError("ingest failed", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Knowledge base ingestion started (run %s). Use knowledge_status to follow it.", runID,
		)), nil
	}

	run, err := s.svc.Ingest(ctx, req)
	if err != nil {
		if run != nil {
			return mcp.NewToolResultError(formatRun(run)), nil
		}
		return toolError("ingest failed", err), nil
	}
	return mcp.NewToolResultText(formatRun(run)), nil
}

// handleKnowledgeStatus describes the active knowledge base.
func (s *Server) handleKnowledgeStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatStatus(s.svc.Status(ctx))), nil
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	if errors.Is(err, rag.ErrEmptyKnowledgeBase) {
		return mcp.NewToolResultError("The knowledge base is empty. Run ingest_sitemap first.")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// formatAnswer renders an answer followed by its numbered sources.
func formatAnswer(ans *rag.Answer) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(ans.Response))
	b.WriteString("\n")
	if len(ans.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for i, src := range ans.Sources {
			fmt.Fprintf(&b, "%d. %s (%.1f%%)\n", i+1, src.URL, src.Score*100)
		}
	}
	return b.String()
}

// formatSearchResults formats search results into a readable text response.
func formatSearchResults(results []knowledge.ScoredDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(results))

	for i, r := range results {
		fmt.Fprintf(&b, "\n--- Result %d ---\n", i+1)
		fmt.Fprintf(&b, "URL: %s\n", r.URL)
		fmt.Fprintf(&b, "Similarity: %.1f%%\n", r.Score*100)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n%s\n", r.Snippet)
		}
	}

	return b.String()
}

func formatRun(run *db.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s: %d pages, %d documents, %d chunks", run.ID, run.Status, run.Pages, run.Documents, run.Chunks)
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, " in %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n")
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	return b.String()
}

func formatStatus(st rag.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", st.State)
	if st.Building {
		fmt.Fprintf(&b, "Ingestion running: %s\n", st.ActiveRun)
	}
	if st.KnowledgeBaseID != "" {
		fmt.Fprintf(&b, "Knowledge base: %s\n", st.KnowledgeBaseID)
		fmt.Fprintf(&b, "Source: %s\n", st.SourceURL)
		fmt.Fprintf(&b, "Model: %s\n", st.Model)
		fmt.Fprintf(&b, "Documents: %d, chunks: %d\n", st.Documents, st.Chunks)
	}
	if st.BuiltAt != nil {
		fmt.Fprintf(&b, "Built at: %s\n", st.BuiltAt.Format(time.RFC3339))
	}
	if st.LastRun != nil {
		b.WriteString("Last run: ")
		b.WriteString(formatRun(st.LastRun))
	}
	return b.String()
}
