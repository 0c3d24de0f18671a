package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/rag"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against the saved knowledge base",
	Long: `Loads the saved snapshot, retrieves the best matching pages and generates an answer
grounded on them. With --search only the retrieved pages are printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntP("k", "k", 0, "number of pages to retrieve (default from config)")
	queryCmd.Flags().Bool("search", false, "only list matching pages, skip answer generation")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := strings.Join(args, " ")

	k, _ := cmd.Flags().GetInt("k")
	searchOnly, _ := cmd.Flags().GetBool("search")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(ctx, appOptions{needGenerator: !searchOnly})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	loaded, err := a.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	if !loaded {
		return fmt.Errorf("no snapshot at %s\nRun `siterag ingest` first to build the knowledge base", a.snapshots.Location())
	}

	if searchOnly {
		results, err := a.svc.Search(ctx, question, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if jsonOutput {
			return printJSON(toSearchJSON(results))
		}
		printSearchResults(results)
		return nil
	}

	ans, err := a.svc.Ask(ctx, question, k)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyKnowledgeBase) {
			return fmt.Errorf("%w\nRun `siterag ingest` first", err)
		}
		return err
	}
	if jsonOutput {
		return printJSON(ans)
	}

	fmt.Println(strings.TrimSpace(ans.Response))
	if len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range ans.Sources {
			fmt.Printf("  %d. [%.1f%%] %s\n", i+1, src.Score*100, src.URL)
		}
	}
	return nil
}

type searchResultJSON struct {
	Rank    int     `json:"rank"`
	Score   float32 `json:"score"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet,omitempty"`
}

func toSearchJSON(results []knowledge.ScoredDocument) []searchResultJSON {
	out := make([]searchResultJSON, len(results))
	for i, r := range results {
		out[i] = searchResultJSON{
			Rank:    i + 1,
			Score:   r.Score,
			URL:     r.URL,
			Snippet: truncate(strings.TrimSpace(r.Snippet), 200),
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSearchResults(results []knowledge.ScoredDocument) {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return
	}
	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("  %d. [%.1f%%] %s\n", i+1, r.Score*100, r.URL)
		if snippet := strings.TrimSpace(r.Snippet); snippet != "" {
			fmt.Printf("     %s\n", truncate(strings.ReplaceAll(snippet, "\n", " "), 120))
		}
		fmt.Println()
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
