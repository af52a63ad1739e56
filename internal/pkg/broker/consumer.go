package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrDiscard tells Consume to reject a message without requeueing it.
// Handlers return it for bodies that can never be processed.
var ErrDiscard = errors.New("broker: discard message")

// Delivery is the part of an AMQP delivery handlers care about.
type Delivery struct {
	MessageID   string
	RoutingKey  string
	Redelivered bool
	Body        []byte
}

// Handler processes one delivery. A nil error acks, ErrDiscard rejects,
// any other error nacks with requeue.
type Handler func(ctx context.Context, d Delivery) error

const reconsumeDelay = 2 * time.Second

// Consume reads queue with manual acknowledgements until ctx is cancelled.
// A dropped channel is reopened after a short delay.
func (b *Broker) Consume(ctx context.Context, queue string, prefetch int, handler Handler) error {
	for {
		err := b.consumeOnce(ctx, queue, prefetch, handler)
		if ctx.Err() != nil {
			return nil
		}
		slog.WarnContext(ctx, "consumer stopped, retrying", "queue", queue, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconsumeDelay):
		}
	}
}

func (b *Broker) consumeOnce(ctx context.Context, queue string, prefetch int, handler Handler) error {
	b.mu.Lock()
	conn, err := b.connLocked()
	b.mu.Unlock()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open consumer channel: %w", err)
	}
	defer ch.Close()

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("broker: set qos: %w", err)
		}
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: consume %s: %w", queue, err)
	}
	slog.InfoContext(ctx, "listening for events", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("broker: delivery channel for %s closed", queue)
			}
			b.dispatch(ctx, queue, d, handler)
		}
	}
}

func (b *Broker) dispatch(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	carrier := make(TraceCarrier)
	for k, v := range d.Headers {
		carrier[k] = v
	}
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

	spanCtx, span := b.tracer.Start(parentCtx, queue+" receive", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingDestinationName(d.Exchange),
			semconv.MessagingRabbitmqDestinationRoutingKey(d.RoutingKey),
		),
	)
	defer span.End()

	err := handler(spanCtx, Delivery{
		MessageID:   d.MessageId,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
		Body:        d.Body,
	})

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			slog.ErrorContext(spanCtx, "ack failed", "queue", queue, "error", ackErr)
		}
	case errors.Is(err, ErrDiscard):
		span.RecordError(err)
		span.SetStatus(codes.Error, "message discarded")
		slog.WarnContext(spanCtx, "discarding message", "queue", queue, "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		slog.ErrorContext(spanCtx, "handler failed, requeueing", "queue", queue, "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, true)
	}
}
