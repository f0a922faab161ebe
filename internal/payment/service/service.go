// Package service implements the payment workflow: initiate a transaction
// with the gateway, verify its final state, and settle it into the
// purchase ledger exactly once.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/Bikorwhat/ecommerce/internal/audit"
	"github.com/Bikorwhat/ecommerce/internal/auth"
	"github.com/Bikorwhat/ecommerce/internal/auth/device"
	"github.com/Bikorwhat/ecommerce/internal/payment"
	"github.com/Bikorwhat/ecommerce/internal/payment/khalti"
	"github.com/Bikorwhat/ecommerce/internal/payment/store"
	"github.com/Bikorwhat/ecommerce/internal/platform/metrics"
	dErrors "github.com/Bikorwhat/ecommerce/pkg/domain-errors"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Gateway is the ePayment provider the service initiates and verifies
// transactions against.
type Gateway interface {
	Initiate(ctx context.Context, req khalti.InitiateRequest) (*khalti.InitiateResponse, error)
	Lookup(ctx context.Context, paymentIndex string) (*khalti.LookupResponse, error)
}

// Ledger is the durable purchase store.
type Ledger interface {
	Insert(ctx context.Context, record *payment.PurchaseRecord) error
	ListBySubject(ctx context.Context, subjectID string) ([]payment.PurchaseRecord, error)
}

// The gateway rejects amounts below Rs. 10, so the service refuses them
// before spending a network call.
const minAmountPaisa = 1000

const (
	defaultPhone     = "9800000001"
	defaultOrderName = "Order"
)

var (
	errAmountRequired = dErrors.New(dErrors.CodeBadRequest, "amount is required")
	errAmountTooSmall = dErrors.New(dErrors.CodeBadRequest, "amount must be at least Rs. 10")
	errMissingPidx    = dErrors.New(dErrors.CodeBadRequest, "pidx is required")
)

// Service orchestrates the payment workflow for authenticated principals.
type Service struct {
	gateway     Gateway
	ledger      Ledger
	frontendURL string
	metrics     *metrics.Metrics
	audit       *audit.Publisher
	logger      *slog.Logger
}

// New builds a Service. The audit publisher may be nil.
func New(gateway Gateway, ledger Ledger, frontendURL string, m *metrics.Metrics, publisher *audit.Publisher, logger *slog.Logger) *Service {
	return &Service{
		gateway:     gateway,
		ledger:      ledger,
		frontendURL: frontendURL,
		metrics:     m,
		audit:       publisher,
		logger:      logger,
	}
}

// Initiate registers a payment with the gateway on behalf of the principal
// and returns the hosted payment page details. Nothing is written to the
// ledger at this stage.
func (s *Service) Initiate(ctx context.Context, principal *auth.AuthenticatedPrincipal, req payment.InitiateRequest) (*payment.InitiateResponse, error) {
	if req.Amount == nil {
		return nil, errAmountRequired
	}
	amountPaisa := int64(math.Round(*req.Amount * 100))
	if amountPaisa < minAmountPaisa {
		return nil, errAmountTooSmall
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	orderName := req.OrderName
	if orderName == "" {
		orderName = defaultOrderName
	}
	phone := req.CustomerPhone
	if phone == "" {
		phone = defaultPhone
	}

	resp, err := s.gateway.Initiate(ctx, khalti.InitiateRequest{
		ReturnURL:   s.frontendURL + "/payment/success",
		WebsiteURL:  s.frontendURL,
		AmountPaisa: amountPaisa,
		OrderID:     orderID,
		OrderName:   orderName,
		Customer: khalti.Customer{
			Name:  customerName(principal),
			Email: customerEmail(principal),
			Phone: phone,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	s.metrics.PaymentsInitiated.Inc()
	s.emit(ctx, principal, audit.ActionPaymentInitiated, resp.PaymentIndex, float64(amountPaisa)/100, "")
	s.logger.InfoContext(ctx, "payment initiated",
		"pidx", resp.PaymentIndex, "order_id", orderID, "amount_paisa", amountPaisa)

	return &payment.InitiateResponse{
		PaymentIndex: resp.PaymentIndex,
		PaymentURL:   resp.PaymentURL,
	}, nil
}

// Verify confirms a transaction with the gateway. A completed payment is
// settled into the ledger exactly once; the returned payload is the
// gateway's response, augmented with the ledger record id on settlement.
// Any non-completed status is relayed as-is with no ledger write.
func (s *Service) Verify(ctx context.Context, principal *auth.AuthenticatedPrincipal, req payment.VerifyRequest) (map[string]any, error) {
	if req.PaymentIndex == "" {
		return nil, errMissingPidx
	}

	lookup, err := s.gateway.Lookup(ctx, req.PaymentIndex)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	if lookup.Status != khalti.StatusCompleted {
		s.logger.InfoContext(ctx, "payment not completed",
			"pidx", req.PaymentIndex, "status", lookup.Status)
		return lookup.Raw, nil
	}

	items := req.Items
	if len(items) == 0 {
		items = json.RawMessage("[]")
	}
	record := &payment.PurchaseRecord{
		SubjectID:    principal.SubjectID,
		UserEmail:    customerEmail(principal),
		UserName:     customerName(principal),
		TotalAmount:  float64(lookup.TotalAmountPaisa) / 100,
		Items:        items,
		PaymentIndex: req.PaymentIndex,
		Status:       lookup.Status,
		OrderID:      lookup.OrderID,
	}

	if err := s.ledger.Insert(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicatePurchase) {
			s.metrics.DuplicateVerifies.Inc()
			s.emit(ctx, principal, audit.ActionDuplicateVerify, req.PaymentIndex, record.TotalAmount, "")
			return nil, dErrors.Wrap(dErrors.CodeConflict, "payment already recorded", err)
		}
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	s.metrics.PaymentsCompleted.Inc()
	s.emit(ctx, principal, audit.ActionPaymentCompleted, req.PaymentIndex, record.TotalAmount, "")
	s.logger.InfoContext(ctx, "payment settled",
		"pidx", req.PaymentIndex, "purchase_id", record.ID, "amount", record.TotalAmount)

	payload := make(map[string]any, len(lookup.Raw)+1)
	for k, v := range lookup.Raw {
		payload[k] = v
	}
	payload["purchase_id"] = record.ID
	return payload, nil
}

// History returns the principal's purchases, newest first.
func (s *Service) History(ctx context.Context, principal *auth.AuthenticatedPrincipal) ([]payment.PurchaseRecord, error) {
	records, err := s.ledger.ListBySubject(ctx, principal.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	if records == nil {
		records = []payment.PurchaseRecord{}
	}
	return records, nil
}

func (s *Service) emit(ctx context.Context, principal *auth.AuthenticatedPrincipal, action, pidx string, amount float64, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, audit.Event{
		SubjectID:    principal.SubjectID,
		Action:       action,
		PaymentIndex: pidx,
		AmountMajor:  amount,
		Device:       device.GetDisplayName(ctx),
		Detail:       detail,
	})
}

func customerName(principal *auth.AuthenticatedPrincipal) string {
	if principal.DisplayName != "" {
		return principal.DisplayName
	}
	return principal.Username
}

func customerEmail(principal *auth.AuthenticatedPrincipal) string {
	if principal.Email != "" {
		return principal.Email
	}
	return principal.Username + "@example.com"
}
