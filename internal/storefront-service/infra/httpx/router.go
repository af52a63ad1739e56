package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/reqmeta"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(reqmeta.Attach)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", handler.ListOrders)
		r.Post("/", handler.CreateOrder)
		r.Get("/customer/{email}", handler.OrdersByCustomer)
		r.Get("/status/{status}", handler.OrdersByStatus)
		r.Get("/date-range", handler.OrdersByDateRange)
		r.Get("/count/{status}", handler.CountByStatus)
		r.Get("/{id}", handler.GetOrder)
		r.Put("/{id}/status", handler.UpdateStatus)
		r.Put("/{id}/cancel", handler.CancelOrder)
	})

	r.Route("/api/storefront/products", func(r chi.Router) {
		r.Get("/", handler.ListProducts)
		r.Get("/available", handler.ListAvailable)
		r.Get("/search", handler.SearchProducts)
		r.Get("/low-stock", handler.LowStock)
		r.Get("/{id}", handler.GetProduct)
		r.Get("/{id}/stock-check", handler.CheckStock)
	})

	return otelhttp.NewHandler(r, "storefront-service")
}
