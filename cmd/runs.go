package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		runs, err := a.svc.Runs(ctx, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No ingestion runs recorded.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-9s  %s  %s\n", r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), r.SitemapURL)
			fmt.Printf("    pages=%d documents=%d chunks=%d\n", r.Pages, r.Documents, r.Chunks)
			if r.Error != "" {
				fmt.Printf("    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.Flags().Bool("json", false, "output runs as JSON")
	rootCmd.AddCommand(runsCmd)
}
