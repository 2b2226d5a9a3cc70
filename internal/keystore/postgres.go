package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/database"
)

// PostgresStore is a Store backed by the kv_store table.
// Used when no Redis address is configured.
type PostgresStore struct {
	db    database.DB
	clock clock.Clock
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db database.DB, clk clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, clock: clk}
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM kv_store WHERE key = $1 AND expires_at > $2`, key, s.clock.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store
func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, s.clock.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// SetNX implements Store. An expired row is overwritten as if absent.
func (s *PostgresStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE kv_store.expires_at <= $4`,
		key, value, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}
	return rows == 1, nil
}

// Delete implements Store
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Incr implements Store
func (s *PostgresStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.clock.Now()
	var count int64
	err := s.db.GetContext(ctx, &count, `
		INSERT INTO kv_store (key, value, expires_at) VALUES ($1, '1', $2)
		ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN kv_store.expires_at <= $3 THEN '1'
				ELSE (kv_store.value::bigint + 1)::text END,
			expires_at = CASE WHEN kv_store.expires_at <= $3 THEN EXCLUDED.expires_at
				ELSE kv_store.expires_at END
		RETURNING value::bigint`,
		key, now.Add(ttl), now)
	if err != nil {
		return 0, fmt.Errorf("kv incr %s: %w", key, err)
	}
	return count, nil
}

// PurgeExpired removes rows past their expiry and returns how many went
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE expires_at <= $1`, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("kv purge: %w", err)
	}
	return result.RowsAffected()
}
