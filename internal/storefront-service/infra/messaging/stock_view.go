package messaging

import (
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
)

// StockLevel is the storefront's last known stock of one product.
type StockLevel struct {
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	Version     int64     `json:"version"`
	LowStock    bool      `json:"lowStock"`
	Threshold   int       `json:"threshold,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StockView is built only from warehouse events. It never moves backwards:
// a stock-changed event older than the stored version is ignored.
type StockView struct {
	mu     sync.RWMutex
	levels map[string]StockLevel
}

func NewStockView() *StockView {
	return &StockView{levels: make(map[string]StockLevel)}
}

// Apply records e and reports whether it was newer than what the view had.
func (v *StockView) Apply(e events.StockChanged) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	cur, ok := v.levels[e.ProductID]
	if ok && e.ProductVersion <= cur.Version {
		return false
	}
	cur.ProductID = e.ProductID
	cur.ProductName = e.ProductName
	cur.Quantity = e.CurrentQuantity
	cur.Version = e.ProductVersion
	cur.UpdatedAt = e.Timestamp
	if cur.LowStock && cur.Quantity > cur.Threshold {
		cur.LowStock = false
	}
	v.levels[e.ProductID] = cur
	return true
}

// MarkLow flags the product unless a later stock change already lifted it
// above the alert's threshold.
func (v *StockView) MarkLow(a events.LowStockAlert) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	cur, ok := v.levels[a.ProductID]
	if ok && cur.UpdatedAt.After(a.Timestamp) && cur.Quantity > a.Threshold {
		return false
	}
	if !ok {
		cur = StockLevel{
			ProductID:   a.ProductID,
			ProductName: a.ProductName,
			Quantity:    a.CurrentStock,
			UpdatedAt:   a.Timestamp,
		}
	}
	cur.LowStock = true
	cur.Threshold = a.Threshold
	v.levels[a.ProductID] = cur
	return true
}

func (v *StockView) Get(productID string) (StockLevel, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	l, ok := v.levels[productID]
	return l, ok
}

// LowStock returns flagged products ordered by id.
func (v *StockView) LowStock() []StockLevel {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]StockLevel, 0)
	for _, l := range v.levels {
		if l.LowStock {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
