package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is a Store backed by a single PostgreSQL table, for
// deployments where several processes share one persistence layer.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// PostgresConfig holds connection settings for a PostgresStore.
type PostgresConfig struct {
	URL          string
	Table        string
	MaxOpenConns int
	MaxIdleConns int
}

const defaultKVTable = "kv_entries"

// NewPostgresStore opens a connection pool and ensures the storage table exists.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.Table == "" {
		cfg.Table = defaultKVTable
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if !validTableName(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db, table: cfg.Table}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// validTableName accepts plain identifiers only; the table name is
// interpolated into DDL/DML and must never come from request input.
func validTableName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// GetBatch returns the values for the given keys.
func (s *PostgresStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query := fmt.Sprintf("SELECT key, value FROM %s WHERE key = ANY($1)", s.table)
	rows, err := s.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	return result, nil
}

// PutBatch upserts all entries inside one transaction.
func (s *PostgresStore) PutBatch(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table)
	for key, value := range entries {
		if _, err := tx.ExecContext(ctx, query, key, value); err != nil {
			return fmt.Errorf("failed to upsert key %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// DeleteBatch removes the given keys in one statement.
func (s *PostgresStore) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE key = ANY($1)", s.table)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

// List returns all keys with the given prefix, sorted ascending.
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf("SELECT key FROM %s WHERE key LIKE $1 ORDER BY key", s.table)
	rows, err := s.db.QueryContext(ctx, query, likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Clear removes every key with the given prefix.
func (s *PostgresStore) Clear(ctx context.Context, prefix string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key LIKE $1", s.table)
	if _, err := s.db.ExecContext(ctx, query, likePattern(prefix)); err != nil {
		return fmt.Errorf("failed to clear prefix %q: %w", prefix, err)
	}
	return nil
}

// likePattern escapes LIKE wildcards so a literal prefix matches literally.
func likePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
