package aggregator

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
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

func TestSaveAndListSnapshots(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	if _, err := db.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS chat_analytics_snapshots (
		id BIGSERIAL PRIMARY KEY, data JSONB NOT NULL, captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.DB.Exec(`TRUNCATE chat_analytics_snapshots`) })

	s := NewStore(db)
	if err := s.SaveSnapshot(ctx, analytics.AggregatedStats{TotalTurns: 3}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot(ctx, analytics.AggregatedStats{TotalTurns: 9}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	latest, err := s.LatestSnapshot(ctx)
	if err != nil || latest == nil {
		t.Fatalf("LatestSnapshot: %v %v", latest, err)
	}
	if latest.TotalTurns != 9 {
		t.Errorf("expected latest total 9, got %d", latest.TotalTurns)
	}

	list, err := s.ListSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(list))
	}
}
