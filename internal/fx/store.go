// Package fx serves point-in-time FX snapshots and writes the daily one.
package fx

import (
	"context"
	"fmt"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
)

// SnapshotReader is the slice of the repository the lookup needs. Both the
// store and a transaction's queries satisfy it.
type SnapshotReader interface {
	FirstFxSnapshotFrom(ctx context.Context, t time.Time) (*domain.FxSnapshot, error)
	LastFxSnapshotUntil(ctx context.Context, t time.Time) (*domain.FxSnapshot, error)
}

// LatestAt returns the first snapshot created at or after t, else the most
// recent one created at or before t. ErrNoFxAvailable when neither exists.
func LatestAt(ctx context.Context, r SnapshotReader, t time.Time) (*domain.FxSnapshot, error) {
	snap, err := r.FirstFxSnapshotFrom(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("lookup fx snapshot: %w", err)
	}
	if snap != nil {
		return snap, nil
	}
	snap, err = r.LastFxSnapshotUntil(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("lookup fx snapshot: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("at %s: %w", t.Format(time.RFC3339), domain.ErrNoFxAvailable)
	}
	return snap, nil
}
