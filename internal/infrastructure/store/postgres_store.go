package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS state (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	version    BIGINT NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT false,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE state ADD COLUMN IF NOT EXISTS deleted BOOLEAN NOT NULL DEFAULT false`

// PostgresStore keeps records in a single key/value table with a version column.
// Deleted rows stay as tombstones so a key's version never repeats.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the state table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Item, error) {
	var (
		value   []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, version FROM state WHERE key = $1 AND NOT deleted",
		key,
	).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return &Item{Key: key, Value: json.RawMessage(value), Version: version}, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state (key, value, version, updated_at)
		 VALUES ($1, $2, 1, now())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, version = state.version + 1, deleted = false, updated_at = now()`,
		key, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE state SET value = 'null', version = version + 1, deleted = true, updated_at = now()
		 WHERE key = $1 AND NOT deleted`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, value any, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	if expectedVersion == 0 {
		return s.create(ctx, key, data)
	}

	next := expectedVersion + 1
	res, err := s.db.ExecContext(ctx,
		`UPDATE state SET value = $2, version = $3, updated_at = now()
		 WHERE key = $1 AND version = $4 AND NOT deleted`,
		key, string(data), next, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to swap %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to swap %s: %w", key, err)
	}
	if affected == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

// create inserts key or revives its tombstone; a live row is a conflict.
func (s *PostgresStore) create(ctx context.Context, key string, data []byte) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO state (key, value, version, updated_at)
		 VALUES ($1, $2, 1, now())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, version = state.version + 1, deleted = false, updated_at = now()
		 WHERE state.deleted
		 RETURNING version`,
		key, string(data),
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to swap %s: %w", key, err)
	}
	return version, nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
