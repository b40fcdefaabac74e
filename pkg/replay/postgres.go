package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is a Store backed by a Postgres table, suitable for
// multi-instance deployments that share a database. First-writer-wins
// atomicity comes from the unique index on (issuer, kid, nonce) plus
// ON CONFLICT DO NOTHING: exactly one concurrent INSERT affects a row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB. Callers own the
// connection's lifecycle; PostgresStore never closes it.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table and its unique index if they
// do not already exist. Safe to call on every startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS peac_replay_nonces (
			issuer     TEXT NOT NULL,
			kid        TEXT NOT NULL,
			nonce      TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (issuer, kid, nonce)
		)
	`)
	return err
}

// Seen implements Store. The INSERT ... ON CONFLICT DO NOTHING either
// inserts a fresh row (not seen before: rows affected == 1) or is a
// no-op against an existing row (seen before: rows affected == 0).
// Expired rows that have not yet been reaped still count as seen for
// safety — the ttl only governs how long before a periodic reaper may
// remove the row, never how long replay protection is honored.
func (s *PostgresStore) Seen(ctx context.Context, issuer, kid, nonce string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO peac_replay_nonces (issuer, kid, nonce, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (issuer, kid, nonce) DO NOTHING
	`, issuer, kid, nonce, time.Now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("replay: postgres insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replay: postgres rows affected: %w", err)
	}

	return n == 0, nil
}

// Reap deletes expired rows and returns how many were removed. Intended
// to be called periodically out-of-band; it is never required for
// correctness, only for table size.
func (s *PostgresStore) Reap(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM peac_replay_nonces WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("replay: postgres reap: %w", err)
	}
	return res.RowsAffected()
}
