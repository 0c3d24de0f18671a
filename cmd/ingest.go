package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/progress"
	"github.com/ziadkadry99/siterag/internal/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [sitemap-url]",
	Short: "Crawl a sitemap and build the knowledge base",
	Long: `Resolves the sitemap (following sitemap indexes), crawls every page, embeds the
heading-scoped chunks and saves the resulting knowledge base as a snapshot.
Without an argument the sitemap_url from the config file is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("store-snapshot", true, "save the knowledge base snapshot when the build succeeds")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeSnapshot, _ := cmd.Flags().GetBool("store-snapshot")

	tracker := progress.NewTracker(progress.NewReporter())
	a, err := newApp(ctx, appOptions{progress: tracker.Progress})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sitemapURL := a.cfg.SitemapURL
	if len(args) == 1 {
		sitemapURL = args[0]
	}
	if sitemapURL == "" {
		return fmt.Errorf("no sitemap URL given and sitemap_url is not set in %s", cfgFile)
	}

	run, err := a.svc.Ingest(ctx, rag.IngestRequest{SitemapURL: sitemapURL, StoreSnapshot: storeSnapshot})
	tracker.Finish()
	if err != nil {
		return err
	}

	elapsed := time.Duration(0)
	if run.FinishedAt != nil {
		elapsed = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
	}
	fmt.Printf("Ingested %s in %s\n", sitemapURL, elapsed)
	fmt.Printf("  Run: %s\n", run.ID)
	fmt.Printf("  Pages: %d, documents: %d, chunks: %d\n", run.Pages, run.Documents, run.Chunks)
	if run.Error != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", run.Error)
	} else if storeSnapshot {
		fmt.Printf("  Snapshot: %s\n", a.snapshots.Location())
	}
	return nil
}
