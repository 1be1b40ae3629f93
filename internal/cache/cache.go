// Package cache provides the ephemeral cache store: availability snapshots
// serialized with msgpack and the scheduler's job history. Everything here is
// disposable; the cache database runs with synchronous=OFF.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is the availability cache backed by cache.db.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new cache store
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "cache").Logger(),
	}
}

// AvailabilityPrefix is the cache-key prefix for one location's availability
// snapshots. Every writer that changes stock at a location invalidates this
// prefix after its transaction commits.
func AvailabilityPrefix(locationID string) string {
	return "availability:" + locationID + ":"
}

// Get loads a cached value into v. Returns false on miss or expiry; expired
// rows are deleted opportunistically.
func (s *Store) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	var payload []byte
	var expiresAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT payload, expires_at FROM availability_cache WHERE cache_key = ?
	`, key).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	if time.Now().Unix() >= expiresAt {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM availability_cache WHERE cache_key = ?", key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to evict expired cache entry")
		}
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		s.log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		_, _ = s.db.ExecContext(ctx, "DELETE FROM availability_cache WHERE cache_key = ?", key)
		return false, nil
	}

	return true, nil
}

// Set stores a value under a key with a TTL.
func (s *Store) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO availability_cache (cache_key, payload, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, key, payload, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix removes every entry whose key starts with the prefix.
// Stock mutations call this so availability reads never serve stale counts.
func (s *Store) InvalidatePrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM availability_cache WHERE cache_key LIKE ? || '%'", prefix)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache prefix %s: %w", prefix, err)
	}
	return nil
}

// Purge removes all expired entries. The scheduler runs this periodically.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM availability_cache WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}
