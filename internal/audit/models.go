package audit

import "time"

// Actions recorded by this service.
const (
	ActionUserCreated      = "user.created"
	ActionPaymentInitiated = "payment.initiated"
	ActionPaymentCompleted = "payment.completed"
	ActionDuplicateVerify  = "payment.duplicate_verify"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time
	SubjectID    string
	Action       string
	PaymentIndex string
	AmountMajor  float64
	Device       string
	Detail       string
}
