package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
)

type reservation struct {
	lines     map[string]int
	expiresAt time.Time
}

func (r *reservation) toDomain(id string) domain.Reservation {
	lines := make([]domain.HoldLine, 0, len(r.lines))
	for pid, q := range r.lines {
		lines = append(lines, domain.HoldLine{ProductID: pid, Quantity: q})
	}
	merged, _ := domain.MergeLines(lines)
	return domain.Reservation{ID: id, Lines: merged, ExpiresAt: r.expiresAt}
}

// Hold sets stock aside for reservationID. Either every line is held or
// none is. Holding again under an id that is still live returns the existing
// reservation. A ttl <= 0 uses the configured default.
func (l *Ledger) Hold(ctx context.Context, reservationID string, lines []domain.HoldLine, ttl time.Duration) (domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "ledger.Hold")
	defer span.End()

	if reservationID == "" {
		return domain.Reservation{}, &domain.ValidationError{Field: "reservationId", Reason: "is required"}
	}
	merged, err := domain.MergeLines(lines)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(merged) == 0 {
		return domain.Reservation{}, &domain.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	if ttl <= 0 {
		ttl = l.holdTTL
	}

	ids := make([]string, len(merged))
	for i, line := range merged {
		ids[i] = line.ProductID
	}
	unlock := l.locks.LockAll(ids)
	defer unlock()

	l.holdsMu.Lock()
	l.sweepLocked()
	if existing, ok := l.reservations[reservationID]; ok {
		res := existing.toDomain(reservationID)
		l.holdsMu.Unlock()
		return res, nil
	}
	l.holdsMu.Unlock()

	for _, line := range merged {
		p, err := l.store.Get(ctx, line.ProductID)
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("ledger: hold %s: %w", line.ProductID, err)
		}
		available := p.StockQuantity - l.heldQuantity(line.ProductID)
		if available < line.Quantity {
			return domain.Reservation{}, &domain.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: max(available, 0),
			}
		}
	}

	res := &reservation{lines: make(map[string]int, len(merged)), expiresAt: l.now().Add(ttl)}
	l.holdsMu.Lock()
	for _, line := range merged {
		res.lines[line.ProductID] = line.Quantity
		l.held[line.ProductID] += line.Quantity
	}
	l.reservations[reservationID] = res
	l.holdsMu.Unlock()

	slog.InfoContext(ctx, "stock held", "reservation_id", reservationID, "lines", len(merged), "expires_at", res.expiresAt)
	return res.toDomain(reservationID), nil
}

// Commit turns the held quantity of one product into a SUBTRACT. Committing
// the same line twice returns the first Mutation. An unknown or expired hold
// yields domain.ErrReservationNotFound.
func (l *Ledger) Commit(ctx context.Context, reservationID, productID string) (Mutation, error) {
	ctx, span := tracer.Start(ctx, "ledger.Commit")
	defer span.End()

	mutationID := reservationID + ":" + productID + ":commit"

	unlock := l.locks.Lock(productID)
	if m, ok := l.applied.Get(mutationID); ok {
		unlock()
		return m, nil
	}

	qty, ok := l.takeLine(reservationID, productID)
	if !ok {
		unlock()
		return Mutation{}, fmt.Errorf("ledger: commit %s/%s: %w", reservationID, productID, domain.ErrReservationNotFound)
	}

	m, err := l.applyLocked(ctx, productID, domain.OperationSubtract, qty)
	if err != nil {
		l.putLine(reservationID, productID, qty)
		unlock()
		return Mutation{}, err
	}
	l.applied.Add(mutationID, m)
	unlock()

	return m, l.emit(ctx, m)
}

// Release drops whatever is still held under reservationID. Releasing an
// unknown id is not an error.
func (l *Ledger) Release(ctx context.Context, reservationID string) int {
	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return 0
	}
	l.dropLocked(reservationID, res)
	slog.InfoContext(ctx, "hold released", "reservation_id", reservationID, "lines", len(res.lines))
	return len(res.lines)
}

func (l *Ledger) heldQuantity(productID string) int {
	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()
	l.sweepLocked()
	return l.held[productID]
}

func (l *Ledger) takeLine(reservationID, productID string) (int, bool) {
	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()
	l.sweepLocked()

	res, ok := l.reservations[reservationID]
	if !ok {
		return 0, false
	}
	qty, ok := res.lines[productID]
	if !ok {
		return 0, false
	}
	delete(res.lines, productID)
	l.held[productID] -= qty
	if l.held[productID] <= 0 {
		delete(l.held, productID)
	}
	if len(res.lines) == 0 {
		delete(l.reservations, reservationID)
	}
	return qty, true
}

func (l *Ledger) putLine(reservationID, productID string, qty int) {
	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		res = &reservation{lines: make(map[string]int), expiresAt: l.now().Add(l.holdTTL)}
		l.reservations[reservationID] = res
	}
	res.lines[productID] += qty
	l.held[productID] += qty
}

// sweepLocked drops expired reservations. holdsMu must be held.
func (l *Ledger) sweepLocked() {
	now := l.now()
	for id, res := range l.reservations {
		if !now.Before(res.expiresAt) {
			l.dropLocked(id, res)
			slog.Info("hold expired", "reservation_id", id)
		}
	}
}

func (l *Ledger) dropLocked(id string, res *reservation) {
	for pid, q := range res.lines {
		l.held[pid] -= q
		if l.held[pid] <= 0 {
			delete(l.held, pid)
		}
	}
	delete(l.reservations, id)
}
