// Package ledger owns quantity-on-hand for every product. All stock
// movements, holds included, go through it so that mutations of one product
// are serialized.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const maxVersionRetries = 5

var tracer = otel.Tracer("github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ledger")

type Options struct {
	LowStockThreshold int
	AlertMode         AlertMode
	// HoldTTL applies to holds placed without an explicit ttl.
	HoldTTL time.Duration
	// MutationCacheSize bounds how many mutation ids are remembered for
	// replay detection.
	MutationCacheSize int
}

type MutationRequest struct {
	ProductID string
	Quantity  int
	Operation string
	// MutationID makes the request idempotent when set.
	MutationID string
}

// Mutation is the outcome of one applied delta.
type Mutation struct {
	Product   domain.Product
	Previous  int
	Current   int
	Requested int
	// Applied is the delta actually applied after the zero floor.
	Applied   int
	Operation domain.Operation
	At        time.Time
}

type Ledger struct {
	store     ports.ProductStore
	publisher events.Publisher
	monitor   Monitor
	holdTTL   time.Duration
	locks     *keyedMutex
	applied   *lru.Cache[string, Mutation]

	holdsMu      sync.Mutex
	reservations map[string]*reservation
	held         map[string]int

	now func() time.Time
}

func New(store ports.ProductStore, publisher events.Publisher, opts Options) (*Ledger, error) {
	if opts.MutationCacheSize <= 0 {
		opts.MutationCacheSize = 4096
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 2 * time.Minute
	}
	if opts.AlertMode == "" {
		opts.AlertMode = AlertLevel
	}
	applied, err := lru.New[string, Mutation](opts.MutationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: mutation cache: %w", err)
	}
	return &Ledger{
		store:        store,
		publisher:    publisher,
		monitor:      Monitor{Threshold: opts.LowStockThreshold, Mode: opts.AlertMode},
		holdTTL:      opts.HoldTTL,
		locks:        newKeyedMutex(),
		applied:      applied,
		reservations: make(map[string]*reservation),
		held:         make(map[string]int),
		now:          time.Now,
	}, nil
}

// Monitor returns the low-stock predicate in use.
func (l *Ledger) Monitor() Monitor {
	return l.monitor
}

// CheckAvailability reports whether quantity units are on hand and not held.
// Unknown products are simply unavailable.
func (l *Ledger) CheckAvailability(ctx context.Context, productID string, quantity int) bool {
	unlock := l.locks.Lock(productID)
	defer unlock()

	p, err := l.store.Get(ctx, productID)
	if err != nil {
		if !errors.Is(err, domain.ErrProductNotFound) {
			slog.WarnContext(ctx, "availability check failed", "product_id", productID, "error", err)
		}
		return false
	}
	return p.StockQuantity-l.heldQuantity(productID) >= quantity
}

// ApplyDelta adds or subtracts stock. SUBTRACT floors at zero and reports the
// clamped amount in Mutation.Applied.
//
// After the store write the monitor is evaluated, stock-changed is published
// and, if the monitor fired, low-stock-alert is published. A publish failure
// is returned as *events.PublishError together with the committed Mutation.
func (l *Ledger) ApplyDelta(ctx context.Context, req MutationRequest) (Mutation, error) {
	ctx, span := tracer.Start(ctx, "ledger.ApplyDelta")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.String("stock.operation", req.Operation),
		attribute.Int("stock.quantity", req.Quantity),
	)

	op, err := domain.ParseOperation(req.Operation)
	if err != nil {
		return Mutation{}, err
	}
	if req.Quantity <= 0 {
		return Mutation{}, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	unlock := l.locks.Lock(req.ProductID)
	if req.MutationID != "" {
		if m, ok := l.applied.Get(req.MutationID); ok {
			unlock()
			slog.InfoContext(ctx, "mutation replayed", "mutation_id", req.MutationID, "product_id", req.ProductID)
			return m, nil
		}
	}

	m, err := l.applyLocked(ctx, req.ProductID, op, req.Quantity)
	if err != nil {
		unlock()
		return Mutation{}, err
	}
	if req.MutationID != "" {
		l.applied.Add(req.MutationID, m)
	}
	unlock()

	return m, l.emit(ctx, m)
}

// applyLocked must be called with the product lock held. The version check
// catches writers outside this process.
func (l *Ledger) applyLocked(ctx context.Context, productID string, op domain.Operation, quantity int) (Mutation, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		p, err := l.store.Get(ctx, productID)
		if err != nil {
			return Mutation{}, err
		}

		next, applied := op.Apply(p.StockQuantity, quantity)
		updated, err := l.store.SetQuantity(ctx, productID, p.Version, next)
		if errors.Is(err, domain.ErrVersionConflict) {
			slog.DebugContext(ctx, "version conflict, retrying", "product_id", productID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return Mutation{}, fmt.Errorf("ledger: set quantity of %s: %w", productID, err)
		}

		slog.InfoContext(ctx, "stock updated",
			"product_id", productID,
			"operation", op,
			"previous", p.StockQuantity,
			"current", next,
		)
		return Mutation{
			Product:   updated,
			Previous:  p.StockQuantity,
			Current:   next,
			Requested: quantity,
			Applied:   applied,
			Operation: op,
			At:        l.now().UTC(),
		}, nil
	}
	return Mutation{}, fmt.Errorf("ledger: update %s: %w after %d attempts", productID, domain.ErrVersionConflict, maxVersionRetries)
}

func (l *Ledger) emit(ctx context.Context, m Mutation) error {
	alert := l.monitor.Evaluate(m.Previous, m.Current)

	var errs []error
	err := l.publisher.Publish(ctx, events.StockChanged{
		ProductID:        m.Product.ID,
		ProductName:      m.Product.Name,
		PreviousQuantity: m.Previous,
		CurrentQuantity:  m.Current,
		Quantity:         m.Requested,
		Applied:          m.Applied,
		Operation:        string(m.Operation),
		ProductVersion:   m.Product.Version,
		Timestamp:        m.At,
	})
	if err != nil {
		errs = append(errs, asPublishError(events.StockChanged{}, err))
	}

	if alert {
		slog.WarnContext(ctx, "low stock", "product_id", m.Product.ID, "current", m.Current, "threshold", l.monitor.Threshold)
		err := l.publisher.Publish(ctx, events.LowStockAlert{
			ProductID:    m.Product.ID,
			ProductName:  m.Product.Name,
			CurrentStock: m.Current,
			Threshold:    l.monitor.Threshold,
			Timestamp:    m.At,
		})
		if err != nil {
			errs = append(errs, asPublishError(events.LowStockAlert{}, err))
		}
	}

	if len(errs) > 0 {
		slog.ErrorContext(ctx, "stock event not published", "product_id", m.Product.ID, "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

func asPublishError(e events.Event, err error) error {
	var pe *events.PublishError
	if errors.As(err, &pe) {
		return pe
	}
	return &events.PublishError{Type: e.EventType(), RoutingKey: e.RoutingKey(), Err: err}
}
