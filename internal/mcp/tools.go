package mcp

import "github.com/mark3labs/mcp-go/mcp"

// askSiteTool defines the ask_site MCP tool.
var askSiteTool = mcp.NewTool("ask_site",
	mcp.WithDescription("Answer a question using the ingested website content. Returns the answer and the pages it was based on."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Natural language question about the site"),
	),
	mcp.WithNumber("k",
		mcp.Description("Number of pages to use as context (default 3)"),
	),
)

// searchSiteTool defines the search_site MCP tool.
var searchSiteTool = mcp.NewTool("search_site",
	mcp.WithDescription("Semantically search the ingested website and return the best matching pages."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("k",
		mcp.Description("Maximum number of pages to return (default 3)"),
	),
)

// ingestSitemapTool defines the ingest_sitemap MCP tool.
var ingestSitemapTool = mcp.NewTool("ingest_sitemap",
	mcp.WithDescription("Crawl every page listed in a sitemap and rebuild the knowledge base from it."),
	mcp.WithString("sitemap_url",
		mcp.Required(),
		mcp.Description("Absolute http(s) URL of the sitemap or sitemap index"),
	),
	mcp.WithBoolean("store_snapshot",
		mcp.Description("Persist the new knowledge base once it is built"),
	),
	mcp.WithBoolean("wait",
		mcp.Description("Block until ingestion finishes instead of returning a run id"),
	),
)

// knowledgeStatusTool defines the knowledge_status MCP tool.
var knowledgeStatusTool = mcp.NewTool("knowledge_status",
	mcp.WithDescription("Report whether a knowledge base is loaded, its size and the latest ingestion run."),
)
