package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/logger"
	mcpserver "github.com/ziadkadry99/siterag/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing ask_site, search_site,
ingest_sitemap and knowledge_status tools for AI agents. The saved snapshot is
loaded on start when one exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stdout carries the protocol; keep logs on stderr and quiet by default.
		if !cmd.Flags().Changed("log-level") {
			logger.SetupLogger("warn", logJSON)
		}
		ctx := context.Background()

		a, err := newApp(ctx, appOptions{needGenerator: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		loaded, err := a.loadSnapshot(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load snapshot: %v\n", err)
		} else if !loaded {
			fmt.Fprintf(os.Stderr, "No snapshot found. Call ingest_sitemap before asking questions.\n")
		}

		mcpserver.Version = Version

		st := a.svc.Status(ctx)
		fmt.Fprintf(os.Stderr, "siterag MCP server started on stdio (state=%s, documents=%d)\n", st.State, st.Documents)

		return mcpserver.NewServer(a.svc).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
