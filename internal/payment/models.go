// Package payment defines the purchase ledger types and the request and
// response shapes of the payment workflow.
package payment

import (
	"encoding/json"
	"time"
)

// PurchaseRecord is one settled purchase in the ledger, keyed by the
// gateway's payment index. The owning subject and the customer snapshot are
// internal bookkeeping and never appear in response bodies.
type PurchaseRecord struct {
	ID           int64           `json:"id"`
	SubjectID    string          `json:"-"`
	UserEmail    string          `json:"-"`
	UserName     string          `json:"-"`
	PurchaseDate time.Time       `json:"purchase_date"`
	TotalAmount  float64         `json:"total_amount"`
	Items        json.RawMessage `json:"items"`
	PaymentIndex string          `json:"pidx"`
	Status       string          `json:"status"`
	OrderID      string          `json:"purchase_order_id"`
}

// InitiateRequest is the client's payment initiation payload. Amount is in
// rupees; items are carried through opaquely to the eventual ledger record.
type InitiateRequest struct {
	Amount        *float64        `json:"amount"`
	OrderID       string          `json:"purchase_order_id"`
	OrderName     string          `json:"purchase_order_name"`
	CustomerPhone string          `json:"customer_phone"`
	Items         json.RawMessage `json:"items"`
}

// InitiateResponse carries the gateway's payment index and the URL the
// client redirects the customer to.
type InitiateResponse struct {
	PaymentIndex string `json:"pidx"`
	PaymentURL   string `json:"payment_url"`
}

// VerifyRequest asks the service to confirm a payment by its index.
type VerifyRequest struct {
	PaymentIndex string          `json:"pidx"`
	Items        json.RawMessage `json:"items"`
}
