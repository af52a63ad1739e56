package domain

import (
	"sort"
	"time"
)

type HoldLine struct {
	ProductID string
	Quantity  int
}

// Reservation is a set of stock holds placed under one id (the order id).
// Held stock is not available to other holds until committed, released or
// expired.
type Reservation struct {
	ID        string
	Lines     []HoldLine
	ExpiresAt time.Time
}

// MergeLines sums quantities per product and returns them sorted by id.
func MergeLines(lines []HoldLine) ([]HoldLine, error) {
	sums := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, &ValidationError{Field: "productId", Reason: "is required"}
		}
		if l.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		sums[l.ProductID] += l.Quantity
	}
	out := make([]HoldLine, 0, len(sums))
	for id, q := range sums {
		out = append(out, HoldLine{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
