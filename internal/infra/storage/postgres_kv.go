package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 5 * time.Minute
)

// NewPostgresConnection opens and pings a PostgreSQL connection suitable for
// the document store.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// PostgresKV stores each document as one row in a documents table. The table
// is created on startup if missing; the engine is the only writer by design.
type PostgresKV struct {
	db *sql.DB
}

func NewPostgresKV(ctx context.Context, db *sql.DB) (*PostgresKV, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS documents (
               key        TEXT PRIMARY KEY,
               doc        JSONB NOT NULL,
               updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("error ensuring documents table: %w", err)
	}
	return &PostgresKV{db: db}, nil
}

func (s *PostgresKV) Load(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT doc FROM documents WHERE key = $1`
	var doc []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error loading document %s: %w", key, err)
	}
	return doc, nil
}

func (s *PostgresKV) Save(ctx context.Context, key string, doc []byte) error {
	const query = `INSERT INTO documents (key, doc, updated_at) VALUES ($1, $2, NOW())
               ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, key, doc); err != nil {
		return fmt.Errorf("error saving document %s: %w", key, err)
	}
	return nil
}
