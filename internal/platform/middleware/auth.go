package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Bikorwhat/ecommerce/internal/auth"
	"github.com/Bikorwhat/ecommerce/internal/auth/jwks"
	dErrors "github.com/Bikorwhat/ecommerce/pkg/domain-errors"
)

// TokenAuthenticator validates a bearer token and resolves its principal.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.AuthenticatedPrincipal, error)
}

type contextKeyPrincipal struct{}

// GetPrincipal retrieves the authenticated principal from the context. It
// is non-nil on any handler guarded by RequireAuth.
func GetPrincipal(ctx context.Context) *auth.AuthenticatedPrincipal {
	if principal, ok := ctx.Value(contextKeyPrincipal{}).(*auth.AuthenticatedPrincipal); ok {
		return principal
	}
	return nil
}

// WithPrincipal injects a principal into a context. Useful for handler
// tests that don't run the full middleware chain.
func WithPrincipal(ctx context.Context, principal *auth.AuthenticatedPrincipal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, principal)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q}`, message))
}

// RequireAuth rejects requests without a valid bearer token. A signing key
// fetch failure is answered 503 so clients can distinguish provider outage
// from a bad credential.
func RequireAuth(authenticator TokenAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, present, err := auth.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, dErrors.MessageOf(err))
				return
			}
			if !present {
				writeJSONError(w, http.StatusUnauthorized, "authorization required")
				return
			}

			principal, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				var fetchErr *jwks.KeyFetchError
				if errors.As(err, &fetchErr) {
					logger.ErrorContext(ctx, "signing key fetch failed",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeJSONError(w, http.StatusServiceUnavailable, "unable to verify credentials")
					return
				}
				logger.WarnContext(ctx, "unauthorized request",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, dErrors.MessageOf(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}
