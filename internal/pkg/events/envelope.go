package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEvent is returned by Decode for a (type, version) pair outside the
// closed schema.
var ErrUnknownEvent = errors.New("events: unknown event type or version")

// Envelope is the wire format of every message body.
type Envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Version    int             `json:"version"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap builds an envelope with a fresh id. The id is what consumers
// de-duplicate on, so a redelivered message carries the same id.
func Wrap(source string, e Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", e.EventType(), err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       e.EventType(),
		Version:    e.SchemaVersion(),
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}, nil
}

// Parse unmarshals a message body into an envelope.
func Parse(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: parse envelope: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return Envelope{}, fmt.Errorf("events: parse envelope: missing id or type")
	}
	return env, nil
}

// Decode turns an envelope into its typed payload.
func Decode(env Envelope) (Event, error) {
	var (
		e   Event
		err error
	)
	switch {
	case env.Type == TypeStockChanged && env.Version == 1:
		var p StockChanged
		err = json.Unmarshal(env.Payload, &p)
		e = p
	case env.Type == TypeLowStockAlert && env.Version == 1:
		var p LowStockAlert
		err = json.Unmarshal(env.Payload, &p)
		e = p
	case env.Type == TypeOrderCreated && env.Version == 1:
		var p OrderCreated
		err = json.Unmarshal(env.Payload, &p)
		e = p
	case env.Type == TypeOrderStatusChanged && env.Version == 1:
		var p OrderStatusChanged
		err = json.Unmarshal(env.Payload, &p)
		e = p
	default:
		return nil, fmt.Errorf("%w: %s v%d", ErrUnknownEvent, env.Type, env.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("events: decode %s payload: %w", env.Type, err)
	}
	return e, nil
}
