// Package auth authenticates chat API clients with API keys. Raw keys are
// random 32-byte hex strings handed out once; only their SHA-256 digests are
// stored in PostgreSQL.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo describes a stored key. RateLimit is in chat requests per minute;
// zero means the server default.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// KeyStore manages keys in the api_keys table:
//
//	CREATE TABLE api_keys (
//	    id         BIGSERIAL PRIMARY KEY,
//	    key_hash   TEXT UNIQUE NOT NULL,
//	    name       TEXT NOT NULL,
//	    rate_limit INTEGER NOT NULL DEFAULT 0,
//	    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    expires_at TIMESTAMPTZ
//	);
type KeyStore struct {
	db     *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewKeyStore(db *postgres.Client) *KeyStore {
	return &KeyStore{
		db:     db,
		logger: logger.WithComponent("apikey-store"),
		now:    time.Now,
	}
}

// Validate looks up an active key by the digest of rawKey.
func (s *KeyStore) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var info KeyInfo
	var id int64
	var expiresAt sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&id, &info.Name, &info.RateLimit, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	info.ID = fmt.Sprintf("%d", id)

	if expiresAt.Valid {
		if expiresAt.Time.Before(s.now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// CreateKey stores a new key and returns the raw value. It cannot be
// recovered later.
func (s *KeyStore) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)`,
		HashKey(rawKey), name, rateLimit, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	s.logger.Info("api key created", "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

// RevokeKey deactivates the key. Revoking an unknown key returns
// ErrInvalidKey.
func (s *KeyStore) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows == 0 {
		return ErrInvalidKey
	}
	s.logger.Info("api key revoked")
	return nil
}

// ListKeys returns the active keys, newest first.
func (s *KeyStore) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, created_at, expires_at
		 FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	keys := []KeyInfo{}
	for rows.Next() {
		var k KeyInfo
		var id int64
		var expiresAt sql.NullTime
		if err := rows.Scan(&id, &k.Name, &k.RateLimit, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		k.ID = fmt.Sprintf("%d", id)
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
