package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect or verify the saved knowledge base snapshot",
}

var snapshotInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what the saved snapshot contains",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		kb, err := a.snapshots.Load(ctx)
		if errors.Is(err, snapshot.ErrNotFound) {
			fmt.Printf("No snapshot at %s\n", a.snapshots.Location())
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Snapshot: %s\n", a.snapshots.Location())
		fmt.Printf("  Knowledge base: %s\n", kb.ID)
		fmt.Printf("  Source: %s\n", kb.SourceURL)
		fmt.Printf("  Embedding model: %s (%d dims)\n", kb.Model, kb.Dimensions())
		fmt.Printf("  Built at: %s\n", kb.BuiltAt.Format(time.RFC3339))
		fmt.Printf("  Pages crawled: %d, documents: %d, chunks: %d\n",
			kb.Stats.PagesCrawled, len(kb.Documents), kb.NumChunks())
		return nil
	},
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Copy the configured snapshot to a snapshot file",
	Long:  `Loads the snapshot from the configured backend and writes it to the given file, for example to move a sqlite-backed knowledge base to another host.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		if _, err := a.svc.LoadSnapshot(ctx); err != nil {
			return err
		}
		dst := snapshot.NewFileStore(args[0])
		if err := dst.Save(ctx, a.svc.Current()); err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s\n", a.snapshots.Location(), dst.Location())
		return nil
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Replace the configured snapshot with a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		kb, err := snapshot.NewFileStore(args[0]).Load(ctx)
		if err != nil {
			return err
		}
		if err := a.snapshots.Save(ctx, kb); err != nil {
			return err
		}
		fmt.Printf("Imported %s into %s (%d documents)\n", args[0], a.snapshots.Location(), len(kb.Documents))
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotInfoCmd, snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}
