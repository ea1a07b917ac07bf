package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Rank corpus chunks against a query",
	Long: `Scores every chunk by how often the query's terms occur in it and
prints the best matches. Terms of three characters or fewer are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if searchTopK > 0 {
		cfg.Corpus.TopK = searchTopK
	}
	loader, _, cleanup, err := mustLoad(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	index := retrieval.NewIndex(loader, nil, cfg.Corpus.TopK, nil)
	results, err := index.Search(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Printf("No chunks match (terms: %v).\n", retrieval.Normalize(args[0]))
		return nil
	}
	for i, r := range results {
		cmd.Printf("  [%d] chunk %d, score %d\n", i+1, r.Chunk.Index, r.Score)
		cmd.Printf("      %s\n", preview(r.Chunk.Text, 120))
	}
	return nil
}
