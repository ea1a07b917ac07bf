package corpus

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "groundedchat_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "groundedchat"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgresSourceRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	if _, err := db.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS corpus_documents (
		source_id TEXT PRIMARY KEY, body TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.DB.Exec(`DELETE FROM corpus_documents WHERE source_id = 'test-handbook'`) })

	src := NewPostgresSource(db)
	if _, err := src.Read(ctx, "test-handbook"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before insert, got %v", err)
	}

	if err := src.Put(ctx, "test-handbook", "first version"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := src.Put(ctx, "test-handbook", "Remote work requires manager approval."); err != nil {
		t.Fatalf("Put (update): %v", err)
	}

	loader := NewLoader(src, "test-handbook", DefaultChunkSize)
	c, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Text != "Remote work requires manager approval." {
		t.Errorf("expected updated body, got %q", c.Text)
	}
	if len(c.Chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(c.Chunks))
	}
}
