// Package store persists the purchase ledger. All backends enforce the
// same contract: a payment index is recorded at most once, ever.
package store

import (
	"context"
	"errors"

	"github.com/Bikorwhat/ecommerce/internal/payment"
)

// ErrDuplicatePurchase reports an insert for a payment index that is
// already in the ledger.
var ErrDuplicatePurchase = errors.New("purchase already recorded")

// PurchaseStore is the durable ledger backend. Insert assigns the record's
// ID and PurchaseDate on success.
type PurchaseStore interface {
	Insert(ctx context.Context, record *payment.PurchaseRecord) error
	// ListBySubject returns the subject's purchases, newest first.
	ListBySubject(ctx context.Context, subjectID string) ([]payment.PurchaseRecord, error)
}
