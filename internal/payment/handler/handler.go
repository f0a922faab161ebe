// Package handler exposes the payment workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bikorwhat/ecommerce/internal/auth"
	"github.com/Bikorwhat/ecommerce/internal/payment"
	"github.com/Bikorwhat/ecommerce/internal/payment/khalti"
	"github.com/Bikorwhat/ecommerce/internal/platform/middleware"
	dErrors "github.com/Bikorwhat/ecommerce/pkg/domain-errors"
)

const maxRequestSize = 1 << 20

// PaymentService is the workflow behind the HTTP surface.
type PaymentService interface {
	Initiate(ctx context.Context, principal *auth.AuthenticatedPrincipal, req payment.InitiateRequest) (*payment.InitiateResponse, error)
	Verify(ctx context.Context, principal *auth.AuthenticatedPrincipal, req payment.VerifyRequest) (map[string]any, error)
	History(ctx context.Context, principal *auth.AuthenticatedPrincipal) ([]payment.PurchaseRecord, error)
}

// Handler serves the /khalti routes.
type Handler struct {
	logger   *slog.Logger
	payments PaymentService
}

func New(logger *slog.Logger, payments PaymentService) *Handler {
	return &Handler{logger: logger, payments: payments}
}

// Register mounts the payment routes behind the authentication guard.
func (h *Handler) Register(r chi.Router, authenticator middleware.TokenAuthenticator) {
	r.Route("/khalti", func(r chi.Router) {
		r.Use(middleware.RequireAuth(authenticator, h.logger))
		r.Post("/initiate/", h.initiate)
		r.Post("/verify/", h.verify)
		r.Get("/history/", h.history)
	})
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req payment.InitiateRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.payments.Initiate(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req payment.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload, err := h.payments.Verify(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	records, err := h.payments.History(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(out); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps workflow failures onto the uniform error envelope. The
// gateway's own status and body are logged but never relayed verbatim.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *khalti.GatewayError
	if errors.As(err, &gwErr) {
		h.logger.ErrorContext(r.Context(), "payment gateway failure",
			"status", gwErr.StatusCode,
			"body", gwErr.Body,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment gateway request failed"})
		return
	}

	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "payment request failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}
	h.writeJSON(w, status, map[string]string{"error": dErrors.MessageOf(err)})
}
