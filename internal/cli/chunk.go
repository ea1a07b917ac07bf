package cli

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

var chunkJSON bool

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Print the corpus chunks",
	Args:  cobra.NoArgs,
	RunE:  runChunk,
}

func init() {
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output chunks as JSON")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, c, cleanup, err := mustLoad(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if chunkJSON {
		data, err := json.MarshalIndent(c.Chunks, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal chunks: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%d chunks (max %d characters, fingerprint %s)\n\n", len(c.Chunks), cfg.Corpus.ChunkSize, c.Fingerprint)
	for _, ch := range c.Chunks {
		cmd.Printf("  [%d] %d chars: %s\n", ch.Index, utf8.RuneCountInString(ch.Text), preview(ch.Text, 72))
	}
	return nil
}
