package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

var (
	keyName      string
	keyRateLimit int
	keyExpiresIn time.Duration
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the chat API",
	Long: `Creates, revokes and lists the keys accepted by the chat service when
auth.enabled is set. Keys are stored hashed in PostgreSQL.`,
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke [key]",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active API keys",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyList,
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&keyName, "name", "", "name for the key (required)")
	apikeyCreateCmd.Flags().IntVar(&keyRateLimit, "rate-limit", 0, "requests per minute, 0 for the server default")
	apikeyCreateCmd.Flags().DurationVar(&keyExpiresIn, "expires-in", 0, "lifetime such as 720h, 0 for no expiry")
	apikeyCreateCmd.MarkFlagRequired("name")

	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd, apikeyListCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func openKeyStore() (*auth.KeyStore, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return auth.NewKeyStore(db), func() { db.Close() }, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openKeyStore()
	if err != nil {
		return err
	}
	defer cleanup()

	var expiresAt *time.Time
	if keyExpiresIn > 0 {
		t := time.Now().Add(keyExpiresIn)
		expiresAt = &t
	}
	key, err := store.CreateKey(cmd.Context(), keyName, keyRateLimit, expiresAt)
	if err != nil {
		return err
	}

	cmd.Println("API key created. It is shown only once.")
	cmd.Println()
	cmd.Printf("  Key:        %s\n", key)
	cmd.Printf("  Name:       %s\n", keyName)
	cmd.Printf("  Rate limit: %s\n", formatRateLimit(keyRateLimit))
	cmd.Printf("  Expires:    %s\n", formatExpiry(expiresAt))
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openKeyStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.RevokeKey(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, auth.ErrInvalidKey) {
			return errors.New("no active key matches")
		}
		return err
	}
	cmd.Println("API key revoked.")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openKeyStore()
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := store.ListKeys(cmd.Context())
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		cmd.Println("No active API keys.")
		return nil
	}
	cmd.Printf("%-8s  %-24s  %-14s  %s\n", "ID", "Name", "Rate limit", "Expires")
	for _, k := range keys {
		cmd.Printf("%-8s  %-24s  %-14s  %s\n", k.ID, k.Name, formatRateLimit(k.RateLimit), formatExpiry(k.ExpiresAt))
	}
	cmd.Printf("\nTotal: %d active key(s)\n", len(keys))
	return nil
}

func formatRateLimit(perMinute int) string {
	if perMinute <= 0 {
		return "default"
	}
	return fmt.Sprintf("%d req/min", perMinute)
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
