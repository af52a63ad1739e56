package broker

import (
	"context"
	"log/slog"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
)

// LogPublisher writes events to the log instead of a broker. It is used when
// no RabbitMQ URL is configured.
type LogPublisher struct {
	source string
}

func NewLogPublisher(source string) *LogPublisher {
	return &LogPublisher{source: source}
}

func (p *LogPublisher) Publish(ctx context.Context, e events.Event) error {
	env, err := events.Wrap(p.source, e)
	if err != nil {
		return &events.PublishError{Type: e.EventType(), RoutingKey: e.RoutingKey(), Err: err}
	}
	slog.InfoContext(ctx, "event (no broker configured)",
		"type", env.Type,
		"id", env.ID,
		"exchange", e.Exchange(),
		"routing_key", e.RoutingKey(),
		"payload", string(env.Payload),
	)
	return nil
}
