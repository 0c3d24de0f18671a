package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/config"
	"github.com/ziadkadry99/siterag/internal/logger"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "siterag",
	Short: "Answer questions about a website from its sitemap",
	Long: `siterag crawls every page listed in a website's sitemap, splits the pages
into heading-scoped chunks, embeds them and answers questions with an LLM
grounded on the best matching pages. The knowledge base is served over
HTTP, WebSocket and MCP, and can be snapshotted to disk or SQLite.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetupLogger(logLevel, logJSON)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}
