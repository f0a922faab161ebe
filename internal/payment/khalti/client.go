// Package khalti is a thin client for the Khalti ePayment API. It speaks
// the two-call protocol: initiate to obtain a hosted payment page, lookup
// to confirm the final state of a transaction.
package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Bikorwhat/ecommerce/internal/payment/khalti"

// StatusCompleted is the gateway's terminal success state. Comparison is
// exact; "completed" or "COMPLETED" do not settle a payment.
const StatusCompleted = "Completed"

const (
	requestTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

// Customer identifies the paying customer to the gateway.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// InitiateRequest is the gateway's initiation payload. Amount is in paisa.
type InitiateRequest struct {
	ReturnURL   string   `json:"return_url"`
	WebsiteURL  string   `json:"website_url"`
	AmountPaisa int64    `json:"amount"`
	OrderID     string   `json:"purchase_order_id"`
	OrderName   string   `json:"purchase_order_name"`
	Customer    Customer `json:"customer_info"`
}

// InitiateResponse is the gateway's answer to a successful initiation.
type InitiateResponse struct {
	PaymentIndex string `json:"pidx"`
	PaymentURL   string `json:"payment_url"`
}

// LookupResponse is the gateway's view of a transaction. Raw preserves the
// full response body so callers can relay fields this client does not
// model.
type LookupResponse struct {
	PaymentIndex     string
	Status           string
	TotalAmountPaisa int64
	OrderID          string
	Raw              map[string]any
}

// GatewayError reports a non-2xx gateway response or a transport failure.
// The body is retained for logging; it is never relayed to API clients.
type GatewayError struct {
	StatusCode int
	Body       string
	cause      error
}

func (e *GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("khalti request failed: %v", e.cause)
	}
	return fmt.Sprintf("khalti returned status %d", e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.cause }

// Client calls the Khalti ePayment API. The secret key is sent as
// "Authorization: Key <secret>" on every request.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default transport, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func NewClient(baseURL, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: requestTimeout},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initiate registers a payment with the gateway and returns the hosted
// payment page details.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	ctx, span := c.tracer.Start(ctx, "khalti.Initiate",
		trace.WithAttributes(attribute.Int64("khalti.amount_paisa", req.AmountPaisa)))
	defer span.End()

	var resp InitiateResponse
	if err := c.post(ctx, "/epayment/initiate/", req, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("khalti.pidx", resp.PaymentIndex))
	return &resp, nil
}

// Lookup fetches the authoritative state of a transaction by its payment
// index.
func (c *Client) Lookup(ctx context.Context, paymentIndex string) (*LookupResponse, error) {
	ctx, span := c.tracer.Start(ctx, "khalti.Lookup",
		trace.WithAttributes(attribute.String("khalti.pidx", paymentIndex)))
	defer span.End()

	raw := map[string]any{}
	payload := map[string]string{"pidx": paymentIndex}
	if err := c.post(ctx, "/epayment/lookup/", payload, &raw); err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp := &LookupResponse{Raw: raw}
	if v, ok := raw["pidx"].(string); ok {
		resp.PaymentIndex = v
	}
	if v, ok := raw["status"].(string); ok {
		resp.Status = v
	}
	if v, ok := raw["total_amount"].(float64); ok {
		resp.TotalAmountPaisa = int64(v)
	}
	if v, ok := raw["purchase_order_id"].(string); ok {
		resp.OrderID = v
	}
	span.SetAttributes(attribute.String("khalti.status", resp.Status))
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayError{cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &GatewayError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, Body: string(respBody), cause: err}
	}
	return nil
}
