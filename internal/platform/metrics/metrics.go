// Package metrics registers the Prometheus instruments for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TokensValidated   *prometheus.CounterVec
	KeyRingRefreshes  *prometheus.CounterVec
	UsersCreated      prometheus.Counter
	PaymentsInitiated prometheus.Counter
	PaymentsCompleted prometheus.Counter
	DuplicateVerifies prometheus.Counter
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensValidated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_tokens_validated_total",
			Help: "Bearer token validations by outcome.",
		}, []string{"outcome"}),
		KeyRingRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_keyring_refreshes_total",
			Help: "JWKS key ring refreshes by outcome.",
		}, []string{"outcome"}),
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "shop_users_created_total",
			Help: "Local user records created on first sight of a subject.",
		}),
		PaymentsInitiated: factory.NewCounter(prometheus.CounterOpts{
			Name: "shop_payments_initiated_total",
			Help: "Payment initiations accepted by the gateway.",
		}),
		PaymentsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "shop_payments_completed_total",
			Help: "Completed payments recorded in the purchase ledger.",
		}),
		DuplicateVerifies: factory.NewCounter(prometheus.CounterOpts{
			Name: "shop_duplicate_verifies_total",
			Help: "Verify calls rejected because the payment index was already recorded.",
		}),
	}
}
