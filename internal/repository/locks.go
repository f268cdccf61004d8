package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// acquireAdvisoryLocks takes transaction-scoped PostgreSQL advisory locks for
// each key. Keys are de-duplicated and taken in sorted order so concurrent
// bookings touching the same resources cannot deadlock. The locks are released
// when the surrounding transaction commits or rolls back; a positive timeout
// bounds the wait via lock_timeout.
func acquireAdvisoryLocks(ctx context.Context, tx sqlx.ExecerContext, timeout time.Duration, keys []string) error {
	if timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	unique := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := unique[key]; ok || key == "" {
			continue
		}
		unique[key] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	for _, key := range ordered {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
	}
	return nil
}
