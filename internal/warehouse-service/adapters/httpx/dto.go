package httpx

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ProductRequest is used for create and update. StockQuantity is ignored on
// update.
type ProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

type StockUpdateRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

// StockUpdateResponse is the updated product plus what the mutation did.
type StockUpdateResponse struct {
	ProductResponse
	PreviousQuantity int    `json:"previousQuantity"`
	Requested        int    `json:"requested"`
	Applied          int    `json:"applied"`
	Operation        string `json:"operation"`
}

type HoldItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type HoldRequest struct {
	ReservationID string     `json:"reservationId"`
	Items         []HoldItem `json:"items"`
	TTLSeconds    int        `json:"ttlSeconds"`
}

type ReservationResponse struct {
	ReservationID string     `json:"reservationId"`
	Items         []HoldItem `json:"items"`
	ExpiresAt     time.Time  `json:"expiresAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	// Set for insufficient_stock.
	ProductID string `json:"productId,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// Error codes shared with the storefront client.
const (
	CodeProductNotFound     = "product_not_found"
	CodeReservationNotFound = "reservation_not_found"
	CodeInvalidOperation    = "invalid_operation"
	CodeInvalidRequest      = "invalid_request"
	CodeInsufficientStock   = "insufficient_stock"
	CodeInternal            = "internal_error"
)
