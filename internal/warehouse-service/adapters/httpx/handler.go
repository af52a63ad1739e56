package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/reqmeta"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ledger"
)

// StockLedger is the part of the ledger exposed over HTTP.
type StockLedger interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) bool
	ApplyDelta(ctx context.Context, req ledger.MutationRequest) (ledger.Mutation, error)
	Hold(ctx context.Context, reservationID string, lines []domain.HoldLine, ttl time.Duration) (domain.Reservation, error)
	Commit(ctx context.Context, reservationID, productID string) (ledger.Mutation, error)
	Release(ctx context.Context, reservationID string) int

	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListAvailable(ctx context.Context) ([]domain.Product, error)
	Search(ctx context.Context, name string) ([]domain.Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)
	CreateProduct(ctx context.Context, d domain.ProductDetails, quantity int) (domain.Product, error)
	UpdateDetails(ctx context.Context, id string, d domain.ProductDetails) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Handler exposes the stock facade and the catalog.
type Handler struct {
	ledger           StockLedger
	defaultThreshold int
}

func NewHandler(l StockLedger, defaultThreshold int) *Handler {
	return &Handler{ledger: l, defaultThreshold: defaultThreshold}
}

// CheckStock answers GET /api/products/{id}/stock-check?quantity=N with a
// bare JSON boolean.
func (h *Handler) CheckStock(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "quantity must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, h.ledger.CheckAvailability(r.Context(), chi.URLParam(r, "id"), qty))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

// UpdateStock applies an ADD or SUBTRACT. The X-Idempotency-Key header, when
// present, makes retries safe.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req StockUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "productId is required")
		return
	}

	m, err := h.ledger.ApplyDelta(r.Context(), ledger.MutationRequest{
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Operation:  req.Operation,
		MutationID: reqmeta.IdempotencyKey(r.Context()),
	})
	if err != nil && !isPublishError(err) {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapMutation(m))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.ledger.ListProducts)
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.ledger.ListAvailable)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "name is required")
		return
	}
	h.list(w, r, func(ctx context.Context) ([]domain.Product, error) {
		return h.ledger.Search(ctx, name)
	})
}

func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.defaultThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "threshold must be an integer")
			return
		}
		threshold = n
	}
	h.list(w, r, func(ctx context.Context) ([]domain.Product, error) {
		return h.ledger.ListLowStock(ctx, threshold)
	})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	p, err := h.ledger.CreateProduct(r.Context(), details(req), req.StockQuantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapProduct(p))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	p, err := h.ledger.UpdateDetails(r.Context(), chi.URLParam(r, "id"), details(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	var req HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	lines := make([]domain.HoldLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.HoldLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	res, err := h.ledger.Hold(r.Context(), req.ReservationID, lines, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapReservation(res))
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	m, err := h.ledger.Commit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	if err != nil && !isPublishError(err) {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapMutation(m))
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.ledger.Release(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context) ([]domain.Product, error)) {
	products, err := fn(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, mapProduct(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// fail maps ledger errors to HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidOp    *domain.InvalidOperationError
		insufficient *domain.InsufficientStockError
		validation   *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, CodeProductNotFound, err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, CodeReservationNotFound, err.Error())
	case errors.As(err, &invalidOp):
		writeError(w, http.StatusBadRequest, CodeInvalidOperation, err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     CodeInsufficientStock,
			Message:   err.Error(),
			ProductID: insufficient.ProductID,
			Requested: insufficient.Requested,
			Available: &available,
		})
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// isPublishError is true when err only reports undelivered events. The
// mutation itself succeeded and the ledger already logged the failure.
func isPublishError(err error) bool {
	var pe *events.PublishError
	return errors.As(err, &pe)
}

func details(req ProductRequest) domain.ProductDetails {
	return domain.ProductDetails{Name: req.Name, Description: req.Description, Price: req.Price}
}

func mapProduct(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func mapMutation(m ledger.Mutation) StockUpdateResponse {
	return StockUpdateResponse{
		ProductResponse:  mapProduct(m.Product),
		PreviousQuantity: m.Previous,
		Requested:        m.Requested,
		Applied:          m.Applied,
		Operation:        string(m.Operation),
	}
}

func mapReservation(res domain.Reservation) ReservationResponse {
	items := make([]HoldItem, len(res.Lines))
	for i, l := range res.Lines {
		items[i] = HoldItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return ReservationResponse{ReservationID: res.ID, Items: items, ExpiresAt: res.ExpiresAt}
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
