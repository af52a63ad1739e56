package warehouse

import (
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"github.com/shopspring/decimal"
)

// Wire types of the warehouse API. Only the fields the storefront reads are
// declared.

const (
	codeProductNotFound     = "product_not_found"
	codeReservationNotFound = "reservation_not_found"
	codeInsufficientStock   = "insufficient_stock"
)

type productResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

func (p productResponse) toDomain() domain.Product {
	return domain.Product{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
	}
}

type stockUpdateRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

type stockUpdateResponse struct {
	productResponse
	PreviousQuantity int `json:"previousQuantity"`
	Applied          int `json:"applied"`
}

func (r stockUpdateResponse) toLevel() ports.StockLevel {
	return ports.StockLevel{
		ProductID: r.ID,
		Previous:  r.PreviousQuantity,
		Current:   r.StockQuantity,
		Applied:   r.Applied,
	}
}

type holdItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type holdRequest struct {
	ReservationID string     `json:"reservationId"`
	Items         []holdItem `json:"items"`
	TTLSeconds    int        `json:"ttlSeconds"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
}
