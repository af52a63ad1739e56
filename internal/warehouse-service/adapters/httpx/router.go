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

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", handler.ListProducts)
		r.Post("/", handler.CreateProduct)
		r.Get("/available", handler.ListAvailable)
		r.Get("/search", handler.Search)
		r.Get("/low-stock", handler.ListLowStock)
		r.Put("/stock", handler.UpdateStock)
		r.Get("/{id}", handler.GetProduct)
		r.Put("/{id}", handler.UpdateProduct)
		r.Delete("/{id}", handler.DeleteProduct)
		r.Get("/{id}/stock-check", handler.CheckStock)
	})

	r.Route("/api/reservations", func(r chi.Router) {
		r.Post("/", handler.Hold)
		r.Delete("/{id}", handler.Release)
		r.Post("/{id}/items/{productId}/commit", handler.Commit)
	})

	return otelhttp.NewHandler(r, "warehouse-service")
}
