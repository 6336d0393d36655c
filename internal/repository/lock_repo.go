package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
)

// StaleLockAge is how long a lock may be held before another owner may
// reclaim it.
const StaleLockAge = 30 * time.Minute

// AcquireLock takes the advisory lock key for owner. It fails with
// ErrLockHeld when a different owner holds a fresh lock. Re-acquiring a lock
// one already owns refreshes it.
func (q *Queries) AcquireLock(ctx context.Context, key, owner string, now time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO advisory_locks (key, owner, acquired_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at
		WHERE advisory_locks.owner = excluded.owner OR advisory_locks.acquired_at < ?`,
		key, owner, formatTime(now), formatTime(now.Add(-StaleLockAge)))
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	return nil
}

// ReleaseLock drops key if owner still holds it.
func (q *Queries) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM advisory_locks WHERE key = ? AND owner = ?", key, owner)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
