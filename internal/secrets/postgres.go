package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the secrets table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS secrets (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL key/value table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on top of db. The caller owns db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a connection pool for dsn and verifies it with a ping.
// The caller must Close the returned pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("secrets: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("secrets: ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate executes the [Schema] DDL, creating the secrets table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("secrets: migrate: %w", err)
	}
	return nil
}

// Lookup implements [Store].
func (s *PostgresStore) Lookup(ctx context.Context, name string) (string, error) {
	const query = `SELECT value FROM secrets WHERE key = $1`

	var value string
	if err := s.db.QueryRow(ctx, query, name).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("secrets: postgres lookup %q: %w", name, err)
	}
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set inserts or replaces a secret.
func (s *PostgresStore) Set(ctx context.Context, name, value string) error {
	const query = `
		INSERT INTO secrets (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("secrets: postgres set %q: %w", name, err)
	}
	return nil
}

// Delete removes a secret. Deleting a missing key is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM secrets WHERE key = $1`, name); err != nil {
		return fmt.Errorf("secrets: postgres delete %q: %w", name, err)
	}
	return nil
}

// Ping implements [Pinger].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

var (
	_ Writer = (*PostgresStore)(nil)
	_ Pinger = (*PostgresStore)(nil)
)
