package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

var ingestSourceID string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Store a document in PostgreSQL as a corpus source",
	Long: `Reads a text file and upserts it into the corpus_documents table under
--source-id. Running chat services keep the corpus they already loaded and
pick up the new document on restart.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceID, "source-id", "", "document id (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id := ingestSourceID
	if id == "" {
		id = cfg.Corpus.SourceID
	}
	if id == "" {
		return errors.New("a source id is required")
	}

	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	if err := corpus.ValidateDocument(id, string(body)); err != nil {
		return fmt.Errorf("rejecting %s: %w", args[0], err)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	if err := corpus.NewPostgresSource(db).Put(cmd.Context(), id, string(body)); err != nil {
		return err
	}
	chunks := corpus.Split(string(body), cfg.Corpus.ChunkSize)
	cmd.Printf("Stored %s as %q (%d chunks at %d characters).\n", args[0], id, len(chunks), cfg.Corpus.ChunkSize)
	return nil
}
