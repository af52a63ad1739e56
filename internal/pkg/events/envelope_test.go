package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndDecodeStockChanged(t *testing.T) {
	in := StockChanged{
		ProductID:        "p-1",
		ProductName:      "Keyboard",
		PreviousQuantity: 12,
		CurrentQuantity:  9,
		Quantity:         3,
		Applied:          3,
		Operation:        "SUBTRACT",
		ProductVersion:   4,
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	env, err := Wrap("warehouse-service", in)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, TypeStockChanged, env.Type)
	assert.Equal(t, 1, env.Version)

	body, err := json.Marshal(env)
	require.NoError(t, err)

	parsed, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, env.ID, parsed.ID)

	out, err := Decode(parsed)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeKeepsDecimalPrecision(t *testing.T) {
	in := OrderCreated{
		OrderID:     "o-1",
		TotalAmount: decimal.RequireFromString("1799.98"),
		Items: []OrderItem{{
			ProductID:  "p-1",
			Quantity:   2,
			UnitPrice:  decimal.RequireFromString("899.99"),
			TotalPrice: decimal.RequireFromString("1799.98"),
		}},
	}
	env, err := Wrap("storefront-service", in)
	require.NoError(t, err)

	out, err := Decode(env)
	require.NoError(t, err)

	got, ok := out.(OrderCreated)
	require.True(t, ok)
	assert.True(t, got.TotalAmount.Equal(in.TotalAmount))
	assert.True(t, got.Items[0].UnitPrice.Equal(in.Items[0].UnitPrice))
}

func TestDecodeRejectsUnknownVariants(t *testing.T) {
	_, err := Decode(Envelope{ID: "x", Type: TypeStockChanged, Version: 2, Payload: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	_, err = Decode(Envelope{ID: "x", Type: "inventory-reserved", Version: 1, Payload: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestParseRejectsBodiesWithoutIdentity(t *testing.T) {
	_, err := Parse([]byte(`{"type":"stock-changed","version":1}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestEveryEventRoutesToADeclaredBinding(t *testing.T) {
	bindings := append(append([]Binding{}, OrderBindings...), WarehouseBindings...)
	for _, e := range []Event{StockChanged{}, LowStockAlert{}, OrderCreated{}, OrderStatusChanged{}} {
		found := false
		for _, b := range bindings {
			if b.Exchange == e.Exchange() && b.RoutingKey == e.RoutingKey() {
				found = true
			}
		}
		assert.True(t, found, "no binding for %s", e.EventType())
	}
}
