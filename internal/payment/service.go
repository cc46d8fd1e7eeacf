package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/obs"
)

// Store is the persistence boundary for payments.
type Store interface {
	OrderCharge(ctx context.Context, orderID uuid.UUID) (amount cart.Money, currency string, err error)
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	LatestPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status Status, providerPaymentID, failureCode string) error
	ApplyRefund(ctx context.Context, r *Refund, newStatus Status) error
	InsertEvent(ctx context.Context, e *Event) error
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID) error
	MarkOrderCanceled(ctx context.Context, orderID uuid.UUID) error
}

// ErrNotFound is returned by stores when a payment does not exist.
var ErrNotFound = errors.New("payment not found")

// Poller schedules a deferred status check for an uncertain payment.
type Poller interface {
	SchedulePoll(ctx context.Context, paymentID uuid.UUID, provider string, attempt int) error
}

// Service drives the payment lifecycle against the configured providers.
type Service struct {
	Store           Store
	Providers       map[string]Provider
	DefaultProvider string
	IntentTTL       time.Duration
	CallbackBaseURL string
	Poll            Poller
	Log             zerolog.Logger
}

func (s *Service) provider(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = s.DefaultProvider
	}
	p, ok := s.Providers[key]
	if !ok {
		return nil, common.NewAppError("PROVIDER_NOT_SUPPORTED",
			fmt.Sprintf("payment provider %q is not configured", key), 400, nil)
	}
	return p, nil
}

// CreateIntent opens a payment for the order. An existing non-terminal payment
// for the same order and provider is reused instead of opening a second charge.
func (s *Service) CreateIntent(ctx context.Context, orderID uuid.UUID, providerName string) (*Intent, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("payment.provider", provider.Name()),
		attribute.String("payment.order_id", orderID.String()),
	)

	amount, currency, err := s.Store.OrderCharge(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewAppError("ORDER_NOT_FOUND", "order not found", 404, nil)
		}
		return nil, fmt.Errorf("load order charge: %w", err)
	}
	if amount <= 0 {
		return nil, common.NewAppError("NOTHING_TO_PAY", "order total is zero", 422, nil)
	}

	if existing, err := s.Store.LatestPaymentByOrder(ctx, orderID); err == nil &&
		existing.Provider == provider.Name() && !existing.Status.Terminal() &&
		(existing.ExpiresAt == nil || existing.ExpiresAt.After(time.Now())) {
		obs.PaymentIntentTotal.WithLabelValues(provider.Name(), "reused").Inc()
		return s.intentFor(existing), nil
	}

	p := &Payment{
		ID:       uuid.New(),
		OrderID:  orderID,
		Provider: provider.Name(),
		Amount:   amount,
		Currency: currency,
		Status:   StatusPending,
	}
	expiresAt := time.Now().Add(s.intentTTL())
	p.ExpiresAt = &expiresAt

	resp, err := provider.CreateIntent(ctx, IntentRequest{
		OrderID:         orderID.String(),
		Amount:          amount,
		Currency:        currency,
		ExpiresAtSec:    int(s.intentTTL().Seconds()),
		CallbackBaseURL: s.CallbackBaseURL,
		IdempotencyKey:  p.ID.String(),
	})
	if err != nil {
		// The idempotency key already reached the provider, so a transport
		// failure does not prove the intent was never opened. Keep the
		// payment open and let the poller settle it.
		if uncertainOutcome(err) {
			p.Status = StatusProcessing
			if err := s.Store.CreatePayment(ctx, p); err != nil {
				return nil, fmt.Errorf("persist payment: %w", err)
			}
			s.record(ctx, p.ID, p.Status, nil)
			if s.Poll != nil {
				if perr := s.Poll.SchedulePoll(ctx, p.ID, p.Provider, 1); perr != nil {
					s.Log.Error().Err(perr).Str("payment_id", p.ID.String()).Msg("schedule payment poll")
				}
			}
			obs.PaymentIntentTotal.WithLabelValues(provider.Name(), "uncertain").Inc()
			return s.intentFor(p), nil
		}
		obs.PaymentIntentTotal.WithLabelValues(provider.Name(), "provider_error").Inc()
		return nil, s.surfaceProviderError(err)
	}

	p.ProviderPaymentID = resp.ProviderPaymentID
	if resp.Status != "" {
		p.Status = resp.Status
	}
	if err := s.Store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	s.record(ctx, p.ID, p.Status, nil)

	obs.PaymentIntentTotal.WithLabelValues(provider.Name(), "created").Inc()
	intent := s.intentFor(p)
	intent.ClientSecret = resp.ClientSecret
	intent.RedirectURL = resp.RedirectURL
	return intent, nil
}

// Confirm completes a pending payment with the client-collected proof. When
// the provider cannot give a definite answer the payment stays PROCESSING and
// a deferred status poll is scheduled rather than guessing an outcome.
func (s *Service) Confirm(ctx context.Context, paymentID uuid.UUID, confirmationToken string) (*Payment, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID.String()))

	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, common.NewAppError("PAYMENT_FINALIZED",
			fmt.Sprintf("payment is already %s", p.Status), 409, nil)
	}
	provider, err := s.provider(p.Provider)
	if err != nil {
		return nil, err
	}

	status, err := provider.Process(ctx, ConfirmRequest{
		ProviderPaymentID: p.ProviderPaymentID,
		ConfirmationToken: confirmationToken,
		Amount:            p.Amount,
		Currency:          p.Currency,
	})
	if err != nil {
		if !uncertainOutcome(err) {
			// definite rejection
			var perr *ProviderError
			errors.As(err, &perr)
			s.transition(ctx, p, StatusFailed, perr.Code)
			obs.PaymentIntentTotal.WithLabelValues(p.Provider, "declined").Inc()
			return nil, s.surfaceProviderError(err)
		}
		// outcome unknown: keep the charge open and let the poller settle it
		s.transition(ctx, p, StatusProcessing, "")
		if s.Poll != nil {
			if perr := s.Poll.SchedulePoll(ctx, p.ID, p.Provider, 1); perr != nil {
				s.Log.Error().Err(perr).Str("payment_id", p.ID.String()).Msg("schedule payment poll")
			}
		}
		obs.PaymentIntentTotal.WithLabelValues(p.Provider, "uncertain").Inc()
		return p, nil
	}

	s.applyStatus(ctx, p, status, "")
	obs.PaymentIntentTotal.WithLabelValues(p.Provider, strings.ToLower(string(status))).Inc()
	return p, nil
}

// Refund returns part or all of a completed payment to the buyer.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID, amount cart.Money, reason string) (*Refund, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID.String()))

	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case StatusCompleted, StatusPartiallyRefunded:
	default:
		return nil, common.NewAppError("NOT_REFUNDABLE",
			fmt.Sprintf("payment in status %s cannot be refunded", p.Status), 422, nil)
	}
	if amount <= 0 {
		amount = p.Refundable()
	}
	if amount > p.Refundable() {
		return nil, common.NewAppError("REFUND_EXCEEDS_BALANCE",
			fmt.Sprintf("refundable balance is %d", p.Refundable()), 422, nil)
	}

	provider, err := s.provider(p.Provider)
	if err != nil {
		return nil, err
	}

	refund := &Refund{
		ID:        uuid.New(),
		PaymentID: p.ID,
		Amount:    amount,
		Reason:    reason,
	}
	resp, err := provider.Refund(ctx, RefundRequest{
		ProviderPaymentID: p.ProviderPaymentID,
		ProviderRefundKey: refund.ID.String(),
		Amount:            amount,
		Currency:          p.Currency,
		Reason:            reason,
	})
	if err != nil {
		obs.PaymentRefundTotal.WithLabelValues(p.Provider, "provider_error").Inc()
		return nil, s.surfaceProviderError(err)
	}
	refund.ProviderRefundID = resp.ProviderRefundID

	newStatus := StatusPartiallyRefunded
	if p.AmountRefunded+amount >= p.Amount {
		newStatus = StatusRefunded
	}
	if err := s.Store.ApplyRefund(ctx, refund, newStatus); err != nil {
		return nil, fmt.Errorf("persist refund: %w", err)
	}
	s.record(ctx, p.ID, newStatus, nil)

	obs.PaymentRefundTotal.WithLabelValues(p.Provider, "ok").Inc()
	return refund, nil
}

// Get returns the payment by id.
func (s *Service) Get(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	return s.getPayment(ctx, paymentID)
}

// ResolvePoll re-checks an uncertain payment against the provider. It reports
// whether the payment reached a terminal state.
func (s *Service) ResolvePoll(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if p.Status != StatusProcessing {
		obs.PaymentPollTotal.WithLabelValues(p.Provider, "already_settled").Inc()
		return true, nil
	}
	provider, err := s.provider(p.Provider)
	if err != nil {
		return false, err
	}

	status, err := provider.GetStatus(ctx, p.ProviderPaymentID)
	if err != nil {
		obs.PaymentPollTotal.WithLabelValues(p.Provider, "provider_error").Inc()
		return false, err
	}
	if status == StatusProcessing || status == StatusPending {
		obs.PaymentPollTotal.WithLabelValues(p.Provider, "still_pending").Inc()
		return false, nil
	}

	s.applyStatus(ctx, p, status, "")
	obs.PaymentPollTotal.WithLabelValues(p.Provider, strings.ToLower(string(status))).Inc()
	return status.Terminal(), nil
}

// applyStatus persists a status transition and its order-level side effects.
func (s *Service) applyStatus(ctx context.Context, p *Payment, status Status, failureCode string) {
	wasCompleted := p.Status == StatusCompleted
	s.transition(ctx, p, status, failureCode)

	switch status {
	case StatusCompleted:
		if !wasCompleted {
			if err := s.Store.MarkOrderPaid(ctx, p.OrderID); err != nil {
				s.Log.Error().Err(err).Str("order_id", p.OrderID.String()).Msg("mark order paid")
			}
		}
	case StatusFailed, StatusCancelled:
		if err := s.Store.MarkOrderCanceled(ctx, p.OrderID); err != nil {
			s.Log.Error().Err(err).Str("order_id", p.OrderID.String()).Msg("mark order canceled")
		}
	}
}

func (s *Service) transition(ctx context.Context, p *Payment, status Status, failureCode string) {
	if err := s.Store.UpdatePaymentStatus(ctx, p.ID, status, p.ProviderPaymentID, failureCode); err != nil {
		s.Log.Error().Err(err).Str("payment_id", p.ID.String()).Msg("update payment status")
		return
	}
	p.Status = status
	p.FailureCode = failureCode
	s.record(ctx, p.ID, status, nil)
}

func (s *Service) record(ctx context.Context, paymentID uuid.UUID, status Status, payload []byte) {
	err := s.Store.InsertEvent(ctx, &Event{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Status:    status,
		Payload:   payload,
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("insert payment event")
	}
}

func (s *Service) getPayment(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	p, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewAppError("PAYMENT_NOT_FOUND", "payment not found", 404, nil)
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return p, nil
}

func (s *Service) intentFor(p *Payment) *Intent {
	intent := &Intent{
		PaymentID: p.ID,
		Provider:  p.Provider,
	}
	if p.ExpiresAt != nil {
		intent.ExpiresAt = *p.ExpiresAt
	}
	return intent
}

func (s *Service) intentTTL() time.Duration {
	if s.IntentTTL > 0 {
		return s.IntentTTL
	}
	return 15 * time.Minute
}

// uncertainOutcome reports whether a provider call failed without settling
// the charge. A 4xx answer is a definite rejection; 5xx answers and transport
// errors leave the provider-side state unknown.
func uncertainOutcome(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.HTTPStatus >= 500 || perr.HTTPStatus == 0
	}
	return true
}

func (s *Service) surfaceProviderError(err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		status := perr.HTTPStatus
		if status >= 500 || status == 0 {
			status = 502
		}
		appErr := common.NewAppError(perr.Code, perr.Error(), status, err)
		if perr.Field != "" {
			return appErr.WithDetails(map[string]string{"field": perr.Field})
		}
		return appErr
	}
	return err
}
