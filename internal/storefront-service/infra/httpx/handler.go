package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/reqmeta"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/app"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
)

// OrderService is the order side of app.Fulfillment.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd app.CreateOrderCommand) (*domain.Order, error)
	CancelOrder(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	OrdersByCustomer(ctx context.Context, email string) ([]*domain.Order, error)
	OrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	OrdersByDateRange(ctx context.Context, from, to time.Time) ([]*domain.Order, error)
	CountByStatus(ctx context.Context, status domain.OrderStatus) (int64, error)
}

// Handler serves the order API and the storefront product proxy.
type Handler struct {
	orders  OrderService
	catalog Catalog
	view    LowStockView
}

func NewHandler(orders OrderService, catalog Catalog, view LowStockView) *Handler {
	return &Handler{orders: orders, catalog: catalog, view: view}
}

// CreateOrder places an order. A repeated X-Idempotency-Key returns the
// order created the first time.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]app.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, app.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	slog.InfoContext(r.Context(), "creating order", "request_id", reqmeta.RequestID(r.Context()), "customer_email", req.CustomerEmail)

	// The saga must not stop half way because the client went away.
	ctx := context.WithoutCancel(r.Context())
	order, err := h.orders.CreateOrder(ctx, app.CreateOrderCommand{
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		Items:          items,
		IdempotencyKey: reqmeta.IdempotencyKey(r.Context()),
	})
	if err != nil && !isPublishError(err) {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrder(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	writeOrders(w, r)(h.orders.ListOrders(r.Context()))
}

func (h *Handler) OrdersByCustomer(w http.ResponseWriter, r *http.Request) {
	writeOrders(w, r)(h.orders.OrdersByCustomer(r.Context(), chi.URLParam(r, "email")))
}

func (h *Handler) OrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, r)(h.orders.OrdersByStatus(r.Context(), status))
}

// OrdersByDateRange expects RFC3339 startDate and endDate, both inclusive.
func (h *Handler) OrdersByDateRange(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "startDate must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "endDate must be RFC3339")
		return
	}
	writeOrders(w, r)(h.orders.OrdersByDateRange(r.Context(), from, to))
}

func (h *Handler) CountByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		fail(w, r, err)
		return
	}
	n, err := h.orders.CountByStatus(r.Context(), status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Status: string(status), Count: n})
}

// UpdateStatus sets ?status= without transition checks.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		fail(w, r, err)
		return
	}
	order, err := h.orders.UpdateStatus(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"), status)
	if err != nil && !isPublishError(err) {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.orders.CancelOrder(context.WithoutCancel(r.Context()), id)
	if err != nil && !isPublishError(err) {
		fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_transition", "Unable to cancel order")
		return
	}
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func writeOrders(w http.ResponseWriter, r *http.Request) func([]*domain.Order, error) {
	return func(orders []*domain.Order, err error) {
		if err != nil {
			fail(w, r, err)
			return
		}
		out := make([]OrderResponse, 0, len(orders))
		for _, o := range orders {
			out = append(out, mapOrder(o))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// fail maps application errors to HTTP responses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *domain.ValidationError
		notFound     *domain.ProductNotFoundError
		insufficient *domain.InsufficientStockError
		upstream     *domain.UpstreamUnavailableError
		transition   *domain.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "insufficient_stock",
			Message:   err.Error(),
			ProductID: insufficient.ProductID,
			Requested: insufficient.Requested,
		})
	case errors.As(err, &upstream):
		slog.WarnContext(r.Context(), "warehouse unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "warehouse_unavailable", err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// isPublishError is true when err only reports an undelivered event; the
// state change it belongs to is committed and logged.
func isPublishError(err error) bool {
	var pe *events.PublishError
	return errors.As(err, &pe)
}

func mapOrder(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			LineTotal:   it.LineTotal,
		}
	}
	return OrderResponse{
		ID:            o.ID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Items:         items,
		TotalAmount:   o.TotalAmount,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
