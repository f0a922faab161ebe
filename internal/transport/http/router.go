// Package httptransport assembles the HTTP surface: middleware chain,
// operational endpoints, and the payment routes.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	paymenthandler "github.com/Bikorwhat/ecommerce/internal/payment/handler"
	"github.com/Bikorwhat/ecommerce/internal/platform/middleware"
)

// NewRouter wires all public endpoints. Business logic stays behind the
// payment handler; transport concerns stay here.
func NewRouter(logger *slog.Logger, payments *paymenthandler.Handler, authenticator middleware.TokenAuthenticator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Device)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	payments.Register(r, authenticator)

	return r
}
