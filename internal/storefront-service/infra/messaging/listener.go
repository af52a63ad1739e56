// Package messaging consumes warehouse events on the storefront side.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/broker"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"golang.org/x/sync/errgroup"
)

// ProductCache is the part of the catalog a stock change invalidates.
type ProductCache interface {
	Invalidate(ctx context.Context, productID string) error
}

// StockListener applies stock-changed and low-stock-alert events. Each
// envelope has its side effects at most once while its claim lives, however
// often it is delivered.
type StockListener struct {
	products ProductCache
	view     *StockView
	dedupe   Deduper
	notifier ports.LowStockNotifier
}

func NewStockListener(products ProductCache, view *StockView, dedupe Deduper, notifier ports.LowStockNotifier) *StockListener {
	return &StockListener{products: products, view: view, dedupe: dedupe, notifier: notifier}
}

// Run consumes both warehouse queues until ctx is cancelled.
func (l *StockListener) Run(ctx context.Context, b *broker.Broker, prefetch int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, queue := range []string{events.QueueStockChanged, events.QueueLowStockAlert} {
		queue := queue
		g.Go(func() error {
			return b.Consume(ctx, queue, prefetch, l.Handle)
		})
	}
	return g.Wait()
}

// Handle is a broker.Handler.
func (l *StockListener) Handle(ctx context.Context, d broker.Delivery) error {
	env, err := events.Parse(d.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", broker.ErrDiscard, err)
	}
	e, err := events.Decode(env)
	if err != nil {
		return fmt.Errorf("%w: %v", broker.ErrDiscard, err)
	}

	first, err := l.dedupe.Claim(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("messaging: claim %s: %w", env.ID, err)
	}
	if !first {
		slog.DebugContext(ctx, "duplicate event ignored", "event_id", env.ID, "type", env.Type)
		return nil
	}

	if err := l.apply(ctx, e); err != nil {
		if relErr := l.dedupe.Release(ctx, env.ID); relErr != nil {
			slog.ErrorContext(ctx, "release event claim", "event_id", env.ID, "error", relErr)
		}
		return err
	}
	return nil
}

func (l *StockListener) apply(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.StockChanged:
		if err := l.products.Invalidate(ctx, ev.ProductID); err != nil {
			return fmt.Errorf("messaging: invalidate %s: %w", ev.ProductID, err)
		}
		if !l.view.Apply(ev) {
			slog.DebugContext(ctx, "stale stock change ignored", "product_id", ev.ProductID, "version", ev.ProductVersion)
		}
		return nil
	case events.LowStockAlert:
		l.view.MarkLow(ev)
		return l.notifier.NotifyLowStock(ctx, ev)
	default:
		slog.DebugContext(ctx, "event not handled here", "type", e.EventType())
		return nil
	}
}
