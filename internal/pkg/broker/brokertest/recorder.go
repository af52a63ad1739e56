// Package brokertest provides an in-memory events.Publisher for tests.
package brokertest

import (
	"context"
	"sync"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
)

// Recorder keeps every published event in order. When Err is set, Publish
// records nothing and returns a *events.PublishError wrapping it.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return &events.PublishError{Type: e.EventType(), RoutingKey: e.RoutingKey(), Err: r.Err}
	}
	r.events = append(r.events, e)
	return nil
}

// Fail makes subsequent publishes fail with err (nil restores success).
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.Err = err
	r.mu.Unlock()
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// OfType returns the published events with the given type.
func (r *Recorder) OfType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range r.Events() {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
