package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize siterag configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to pick providers, the default sitemap and the snapshot backend, and writes the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
