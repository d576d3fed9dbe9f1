package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the backend needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresBackend struct {
	db        Querier
	sessionID string
}

func NewPostgresBackend(db Querier, sessionID string) *PostgresBackend {
	return &PostgresBackend{db: db, sessionID: sessionID}
}

func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS session_entries (
  session_id TEXT NOT NULL,
  key        TEXT NOT NULL,
  value      BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (session_id, key)
)`)
	return err
}

func (p *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.db.QueryRow(ctx, `
SELECT value FROM session_entries WHERE session_id=$1 AND key=$2
`, p.sessionID, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (p *PostgresBackend) Save(ctx context.Context, key string, value []byte) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO session_entries (session_id, key, value, updated_at)
VALUES ($1,$2,$3,now())
ON CONFLICT (session_id, key) DO UPDATE SET
  value = EXCLUDED.value,
  updated_at = EXCLUDED.updated_at
`, p.sessionID, key, value)
	return err
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM session_entries WHERE session_id=$1 AND key=$2`, p.sessionID, key)
	return err
}
