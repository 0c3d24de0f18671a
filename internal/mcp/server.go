package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/siterag/internal/rag"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes the site knowledge base as tools.
type Server struct {
	svc *rag.Service
	mcp *server.MCPServer
}

// NewServer creates a new MCP server backed by svc.
func NewServer(svc *rag.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"siterag",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askSiteTool, s.handleAskSite)
	s.mcp.AddTool(searchSiteTool, s.handleSearchSite)
	s.mcp.AddTool(ingestSitemapTool, s.handleIngestSitemap)
	s.mcp.AddTool(knowledgeStatusTool, s.handleKnowledgeStatus)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
