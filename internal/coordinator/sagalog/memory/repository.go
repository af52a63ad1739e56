// Package memory is an in-process sagalog.Repository for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog"
)

type Repository struct {
	mu   sync.Mutex
	rows map[string][]*sagalog.Record
}

func New() *Repository {
	return &Repository{rows: make(map[string][]*sagalog.Record)}
}

func (r *Repository) Save(_ context.Context, rec *sagalog.Record) error {
	c := rec.Clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rec.SagaID] = append(r.rows[rec.SagaID], c)
	return nil
}

func (r *Repository) GetLatest(_ context.Context, sagaID string) (*sagalog.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.rows[sagaID]
	if len(rows) == 0 {
		return nil, sagalog.ErrNotFound
	}
	return rows[len(rows)-1].Clone(), nil
}

func (r *Repository) ListInFlight(_ context.Context, olderThan time.Time) ([]*sagalog.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sagalog.Record
	for _, rows := range r.rows {
		last := rows[len(rows)-1]
		if last.Status.Terminal() || !last.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, last.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// History returns every row saved for sagaID, oldest first.
func (r *Repository) History(sagaID string) []*sagalog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*sagalog.Record, 0, len(r.rows[sagaID]))
	for _, rec := range r.rows[sagaID] {
		out = append(out, rec.Clone())
	}
	return out
}
