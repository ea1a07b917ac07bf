// Package cli implements ragctl, a command-line companion for inspecting
// how the chat service chunks, searches and prompts over a corpus.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

var (
	configPath string
	corpusPath string
	chunkSize  int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Inspect corpus chunking, retrieval and prompt assembly",
	Long: `ragctl runs the chat service's retrieval pipeline locally.
It loads the configured corpus, or the file given with --corpus, and shows
the chunks, the ranked excerpts for a query, or the exact prompt that would
be sent to the model.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(logLevel, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&corpusPath, "corpus", "", "corpus file, overrides the configured source")
	rootCmd.PersistentFlags().IntVar(&chunkSize, "size", 0, "maximum chunk size in characters (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if corpusPath != "" {
		cfg.Corpus.Source = config.SourceFile
		cfg.Corpus.Path = corpusPath
	}
	if chunkSize > 0 {
		cfg.Corpus.ChunkSize = chunkSize
	}
	return cfg, nil
}

// openLoader builds a loader for the configured corpus. The returned
// cleanup closes any database connection it opened.
func openLoader(cfg *config.Config) (*corpus.Loader, func(), error) {
	if cfg.Corpus.Source != config.SourcePostgres {
		return corpus.NewLoader(corpus.FileSource{Path: cfg.Corpus.Path}, cfg.Corpus.Path, cfg.Corpus.ChunkSize), func() {}, nil
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	loader := corpus.NewLoader(corpus.NewPostgresSource(db), cfg.Corpus.SourceID, cfg.Corpus.ChunkSize)
	return loader, func() { db.Close() }, nil
}

// mustLoad loads the corpus and fails loudly, unlike the server which
// degrades to answering without excerpts.
func mustLoad(ctx context.Context, cfg *config.Config) (*corpus.Loader, *corpus.Corpus, func(), error) {
	loader, cleanup, err := openLoader(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := loader.Load(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("loading corpus: %w", err)
	}
	return loader, c, cleanup, nil
}

func preview(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
