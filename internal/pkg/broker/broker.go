// Package broker moves events.Envelope values over RabbitMQ.
//
// Publishing runs the channel in confirm mode so that "broker unreachable" and
// "broker refused" both surface to the caller as *events.PublishError. Trace
// context travels in the AMQP headers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
)

const defaultConfirmTimeout = 5 * time.Second

// TraceCarrier adapts AMQP headers to the OTel TextMapCarrier interface.
type TraceCarrier map[string]interface{}

func (c TraceCarrier) Get(key string) string {
	if val, ok := c[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (c TraceCarrier) Set(key, val string) {
	c[key] = val
}

func (c TraceCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Broker owns one AMQP connection. Publishing is serialised on a single
// confirm-mode channel; each consumer gets its own channel.
type Broker struct {
	url            string
	source         string
	confirmTimeout time.Duration
	tracer         trace.Tracer

	mu       sync.Mutex
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	confirms chan amqp.Confirmation
	chClosed chan *amqp.Error
}

// Dial connects to RabbitMQ. source is stamped on every published envelope.
func Dial(url, source string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker: connect to RabbitMQ: %w", err)
	}
	return &Broker{
		url:            url,
		source:         source,
		confirmTimeout: defaultConfirmTimeout,
		tracer:         otel.Tracer(source + ".broker"),
		conn:           conn,
	}, nil
}

// Close releases the channel and the connection.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubCh != nil {
		b.pubCh.Close()
		b.pubCh = nil
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// DeclareTopology declares the durable topic exchanges, durable queues and
// bindings. Declarations are idempotent, so both services may declare the
// same topology.
func (b *Broker) DeclareTopology(bindings []events.Binding) error {
	b.mu.Lock()
	conn, err := b.connLocked()
	b.mu.Unlock()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open channel: %w", err)
	}
	defer ch.Close()

	for _, bd := range bindings {
		if err := ch.ExchangeDeclare(bd.Exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("broker: declare exchange %s: %w", bd.Exchange, err)
		}
		if _, err := ch.QueueDeclare(bd.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("broker: declare queue %s: %w", bd.Queue, err)
		}
		if err := ch.QueueBind(bd.Queue, bd.RoutingKey, bd.Exchange, false, nil); err != nil {
			return fmt.Errorf("broker: bind %s to %s: %w", bd.Queue, bd.Exchange, err)
		}
	}
	return nil
}

// Publish implements events.Publisher.
func (b *Broker) Publish(ctx context.Context, e events.Event) error {
	exchange, key := e.Exchange(), e.RoutingKey()
	spanCtx, span := b.tracer.Start(ctx, exchange+" publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingDestinationName(exchange),
			semconv.MessagingRabbitmqDestinationRoutingKey(key),
		),
	)
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		return &events.PublishError{Type: e.EventType(), RoutingKey: key, Err: err}
	}

	env, err := events.Wrap(b.source, e)
	if err != nil {
		return fail(err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fail(fmt.Errorf("marshal envelope: %w", err))
	}

	headers := make(TraceCarrier)
	otel.GetTextMapPropagator().Inject(spanCtx, headers)

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.channelLocked()
	if err != nil {
		return fail(err)
	}

	err = ch.Publish(exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Type:         string(env.Type),
		Timestamp:    env.OccurredAt,
		Body:         body,
		Headers:      amqp.Table(headers),
	})
	if err != nil {
		b.resetLocked()
		return fail(err)
	}

	timer := time.NewTimer(b.confirmTimeout)
	defer timer.Stop()

	select {
	case c, ok := <-b.confirms:
		if !ok {
			b.resetLocked()
			return fail(errors.New("channel closed before confirm"))
		}
		if !c.Ack {
			return fail(errors.New("broker nacked message"))
		}
	case <-ctx.Done():
		// The pending confirm would desynchronise delivery tags on reuse.
		b.resetLocked()
		return fail(ctx.Err())
	case <-timer.C:
		b.resetLocked()
		return fail(errors.New("timed out waiting for publisher confirm"))
	}

	slog.DebugContext(ctx, "published event", "type", env.Type, "id", env.ID, "routing_key", key)
	return nil
}

func (b *Broker) connLocked() (*amqp.Connection, error) {
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("broker: reconnect to RabbitMQ: %w", err)
	}
	b.conn = conn
	b.pubCh = nil
	return conn, nil
}

func (b *Broker) channelLocked() (*amqp.Channel, error) {
	if b.pubCh != nil {
		select {
		case <-b.chClosed:
			b.pubCh = nil
		default:
			return b.pubCh, nil
		}
	}

	conn, err := b.connLocked()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("broker: enable confirms: %w", err)
	}
	b.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	b.chClosed = ch.NotifyClose(make(chan *amqp.Error, 1))
	b.pubCh = ch
	return ch, nil
}

func (b *Broker) resetLocked() {
	if b.pubCh != nil {
		b.pubCh.Close()
		b.pubCh = nil
	}
}
