package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/messaging"
)

// Catalog is implemented by app.Catalog.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CheckStock(ctx context.Context, id string, quantity int) (bool, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListAvailable(ctx context.Context) ([]domain.Product, error)
	Search(ctx context.Context, name string) ([]domain.Product, error)
}

type LowStockView interface {
	LowStock() []messaging.StockLevel
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

func (h *Handler) CheckStock(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "quantity must be an integer")
		return
	}
	ok, err := h.catalog.CheckStock(r.Context(), chi.URLParam(r, "id"), qty)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeProducts(w, r)(h.catalog.ListProducts(r.Context()))
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	writeProducts(w, r)(h.catalog.ListAvailable(r.Context()))
}

func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	writeProducts(w, r)(h.catalog.Search(r.Context(), r.URL.Query().Get("name")))
}

// LowStock lists the products the warehouse reported low, as seen through
// its events.
func (h *Handler) LowStock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.view.LowStock())
}

func writeProducts(w http.ResponseWriter, r *http.Request) func([]domain.Product, error) {
	return func(products []domain.Product, err error) {
		if err != nil {
			fail(w, r, err)
			return
		}
		out := make([]ProductResponse, 0, len(products))
		for _, p := range products {
			out = append(out, mapProduct(p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func mapProduct(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
	}
}
