package domain

import "github.com/shopspring/decimal"

// Product is the storefront's read-only view of a warehouse product.
type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
}
