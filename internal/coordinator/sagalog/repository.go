package sagalog

import (
	"context"
	"time"
)

// Repository persists saga records. The table behind it is append-only:
// every Save adds a row, the newest row per saga wins.
type Repository interface {
	Save(ctx context.Context, rec *Record) error

	// GetLatest returns the newest record for sagaID or ErrNotFound.
	GetLatest(ctx context.Context, sagaID string) (*Record, error)

	// ListInFlight returns the newest record of every saga whose status is
	// not terminal and whose last transition happened before olderThan.
	ListInFlight(ctx context.Context, olderThan time.Time) ([]*Record, error)
}
