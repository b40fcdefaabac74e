package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by an embedded modernc.org/sqlite
// database, for single-binary deployments that still want replay
// protection to survive a process restart without standing up a
// separate database server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB opened against the
// "sqlite" driver and creates the backing table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS replay_nonces (
			issuer     TEXT NOT NULL,
			kid        TEXT NOT NULL,
			nonce      TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			PRIMARY KEY (issuer, kid, nonce)
		)
	`)
	return err
}

// Seen implements Store. INSERT OR IGNORE is sqlite's equivalent of
// ON CONFLICT DO NOTHING against the primary key; rows affected
// distinguishes a fresh insert from a no-op against an existing row.
func (s *SQLiteStore) Seen(ctx context.Context, issuer, kid, nonce string, ttl time.Duration) (bool, error) {
	expiresAt := time.Now().Add(ttl).UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO replay_nonces (issuer, kid, nonce, expires_at) VALUES (?, ?, ?, ?)`,
		issuer, kid, nonce, expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("replay: sqlite insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replay: sqlite rows affected: %w", err)
	}

	return n == 0, nil
}

// Reap deletes expired rows and returns how many were removed.
func (s *SQLiteStore) Reap(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_nonces WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("replay: sqlite reap: %w", err)
	}
	return res.RowsAffected()
}
