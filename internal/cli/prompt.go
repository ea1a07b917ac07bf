package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval"
)

var promptNoRAG bool

var promptCmd = &cobra.Command{
	Use:   "prompt [message]",
	Short: "Show the messages that would be sent to the model",
	Long: `Builds the prompt for a single message in a fresh session and prints
it as JSON, together with the chosen policy and the source excerpts.
No model is called.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompt,
}

func init() {
	promptCmd.Flags().BoolVar(&promptNoRAG, "no-rag", false, "skip retrieval and use the generic system message")
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader, cleanup, err := openLoader(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	index := retrieval.NewIndex(loader, nil, cfg.Corpus.TopK, nil)
	assembler := prompt.NewAssembler(index, memory.NewStore())
	result, err := assembler.Build(cmd.Context(), cfg.Chat.DefaultSessionID, args[0], !promptNoRAG)
	if err != nil {
		return fmt.Errorf("building prompt: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prompt: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
