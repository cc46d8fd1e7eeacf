package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// IntentRequest carries everything a provider needs to open a payment.
type IntentRequest struct {
	OrderID         string
	Amount          cart.Money
	Currency        string
	ExpiresAtSec    int
	CallbackBaseURL string
	IdempotencyKey  string
}

// IntentResponse is the provider's handle for an opened payment.
type IntentResponse struct {
	Provider          string
	ProviderPaymentID string
	ClientSecret      string
	RedirectURL       string
	Status            Status
}

// ConfirmRequest carries the client-side completion proof back to the provider.
type ConfirmRequest struct {
	ProviderPaymentID string
	// ConfirmationToken is provider-specific: a payment method for Stripe,
	// a payer approval for PayPal, a signature for Razorpay.
	ConfirmationToken string
	Amount            cart.Money
	Currency          string
}

// RefundRequest asks the provider to return funds.
type RefundRequest struct {
	ProviderPaymentID string
	ProviderRefundKey string
	Amount            cart.Money
	Currency          string
	Reason            string
}

// RefundResponse is the provider's acknowledgement of a refund.
type RefundResponse struct {
	ProviderRefundID string
	Status           Status
}

// WebhookResult is the normalised outcome of webhook verification.
type WebhookResult struct {
	Valid           bool
	EventID         string
	OrderID         string
	ProviderPayment string
	Amount          cart.Money
	Currency        string
	Status          Status
	ProviderPayload []byte
	Err             error
}

// Provider abstracts an upstream payment gateway. Implementations normalise
// provider-specific statuses and amount formats at this boundary so the rest
// of the system deals only in canonical statuses and minor units.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	Process(ctx context.Context, req ConfirmRequest) (Status, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResponse, error)
	GetStatus(ctx context.Context, providerPaymentID string) (Status, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error)
}

// ProviderError carries the provider-reported failure detail alongside the
// canonical code the API surfaces.
type ProviderError struct {
	Provider   string
	Code       string
	Field      string
	HTTPStatus int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(provider, code string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, HTTPStatus: status, Err: err}
}
