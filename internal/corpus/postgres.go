package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

// PostgresSource reads corpus documents from PostgreSQL.
//
// It requires a `corpus_documents` table:
//
//	CREATE TABLE corpus_documents (
//	    source_id  TEXT PRIMARY KEY,
//	    body       TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresSource struct {
	db *postgres.Client
}

func NewPostgresSource(db *postgres.Client) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Read(ctx context.Context, id string) (string, error) {
	var body string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT body FROM corpus_documents WHERE source_id = $1`, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("querying corpus document %s: %w", id, err)
	}
	return body, nil
}

// Put validates and stores or replaces the document body for id. A running
// Loader keeps whatever it already loaded; the new body is picked up on the
// next start.
func (s *PostgresSource) Put(ctx context.Context, id, body string) error {
	if err := ValidateDocument(id, body); err != nil {
		return err
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO corpus_documents (source_id, body, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (source_id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
			id, body,
		)
		if err != nil {
			return fmt.Errorf("upserting corpus document %s: %w", id, err)
		}
		return nil
	})
}
