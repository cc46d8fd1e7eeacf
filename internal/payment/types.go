package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProcessing        Status = "PROCESSING"
	StatusAuthorized        Status = "AUTHORIZED"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
	StatusFailed            Status = "FAILED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
	StatusDisputed          Status = "DISPUTED"
)

// Terminal reports whether the status admits no further provider transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// ParseStatus normalises a stored status string.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Payment is the persisted payment record for an order.
type Payment struct {
	ID                uuid.UUID  `json:"id"`
	OrderID           uuid.UUID  `json:"orderId"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"providerPaymentId,omitempty"`
	Amount            cart.Money `json:"amount"`
	AmountRefunded    cart.Money `json:"amountRefunded"`
	Currency          string     `json:"currency"`
	Status            Status     `json:"status"`
	FailureCode       string     `json:"failureCode,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Refundable returns how much of the payment can still be refunded.
func (p Payment) Refundable() cart.Money {
	left := p.Amount - p.AmountRefunded
	if left < 0 {
		return 0
	}
	return left
}

// Intent is the client-facing handle for completing a payment.
type Intent struct {
	PaymentID    uuid.UUID `json:"paymentId"`
	Provider     string    `json:"provider"`
	ClientSecret string    `json:"clientSecret,omitempty"`
	RedirectURL  string    `json:"redirectUrl,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Refund is a persisted refund against a payment.
type Refund struct {
	ID                uuid.UUID  `json:"id"`
	PaymentID         uuid.UUID  `json:"paymentId"`
	ProviderRefundID  string     `json:"providerRefundId,omitempty"`
	Amount            cart.Money `json:"amount"`
	Reason            string     `json:"reason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Event is an append-only audit record of a payment state change.
type Event struct {
	ID        uuid.UUID `json:"id"`
	PaymentID uuid.UUID `json:"paymentId"`
	Status    Status    `json:"status"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
