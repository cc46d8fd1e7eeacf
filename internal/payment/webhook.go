package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/events"
	"github.com/Caqil/oncart-backend/internal/lock"
	"github.com/Caqil/oncart-backend/internal/obs"
)

// Webhook handles provider callbacks: signature verification, replay
// suppression, and settlement.
type Webhook struct {
	Store     Store
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Locker    lock.Locker
	LockTTL   time.Duration
	Events    *events.Bus
	Log       zerolog.Logger
}

// Handle processes POST /api/v1/webhooks/payment/{provider}.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "unknown_provider").Inc()
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	result, err := provider.VerifyWebhook(r, body)
	if err != nil {
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "verify_error").Inc()
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "invalid_signature").Inc()
		msg := "signature verification failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", msg, nil)
		return
	}

	// Event-id replay suppression. Providers redeliver; the first delivery
	// wins and duplicates are acknowledged without side effects.
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := h.replayKey(providerKey, result, body)
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			obs.PaymentWebhookTotal.WithLabelValues(providerKey, "replay_store_error").Inc()
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			obs.PaymentWebhookTotal.WithLabelValues(providerKey, "duplicate").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	orderID, err := uuid.Parse(result.OrderID)
	if err != nil {
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "invalid_order_id").Inc()
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order identifier", nil)
		return
	}

	lockTTL := h.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	err = h.Locker.WithLock(r.Context(), "settle:"+orderID.String(), lockTTL, func(ctx context.Context) error {
		return h.settle(ctx, providerKey, orderID, result)
	})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			obs.PaymentWebhookTotal.WithLabelValues(providerKey, strings.ToLower(appErr.Code)).Inc()
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		obs.PaymentWebhookTotal.WithLabelValues(providerKey, "settle_error").Inc()
		h.Log.Error().Err(err).Str("order_id", orderID.String()).Msg("webhook settlement failed")
		common.JSONError(w, http.StatusInternalServerError, "SETTLEMENT_ERROR", "failed to process webhook", nil)
		return
	}

	obs.PaymentWebhookTotal.WithLabelValues(providerKey, "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h Webhook) settle(ctx context.Context, providerKey string, orderID uuid.UUID, result WebhookResult) error {
	p, err := h.Store.LatestPaymentByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NewAppError("PAYMENT_NOT_FOUND", "payment not found", 404, nil)
		}
		return fmt.Errorf("load payment: %w", err)
	}

	if result.Amount > 0 && result.Amount != p.Amount {
		return common.NewAppError("AMOUNT_MISMATCH",
			fmt.Sprintf("provider reported %d, expected %d", result.Amount, p.Amount), 400, nil)
	}
	if result.Currency != "" && !strings.EqualFold(result.Currency, p.Currency) {
		return common.NewAppError("CURRENCY_MISMATCH",
			fmt.Sprintf("provider reported %s, expected %s", result.Currency, p.Currency), 400, nil)
	}

	newStatus := result.Status
	shouldSettle := newStatus == StatusCompleted && p.Status != StatusCompleted
	if p.Status.Terminal() && !shouldSettle && newStatus != StatusRefunded && newStatus != StatusDisputed {
		// late delivery for an already finalised payment
		return nil
	}

	if err := h.Store.UpdatePaymentStatus(ctx, p.ID, newStatus, result.ProviderPayment, ""); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if err := h.Store.InsertEvent(ctx, &Event{
		ID:        uuid.New(),
		PaymentID: p.ID,
		Status:    newStatus,
		Payload:   result.ProviderPayload,
	}); err != nil {
		h.Log.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("insert payment event")
	}

	payload := map[string]any{
		"orderId":   orderID.String(),
		"paymentId": p.ID.String(),
		"provider":  providerKey,
		"status":    string(newStatus),
	}
	switch newStatus {
	case StatusCompleted:
		if shouldSettle {
			if err := h.Store.MarkOrderPaid(ctx, orderID); err != nil {
				return fmt.Errorf("mark order paid: %w", err)
			}
			h.Events.Emit(ctx, events.TopicOrderPaid, orderID, payload)
		}
	case StatusFailed, StatusCancelled:
		if err := h.Store.MarkOrderCanceled(ctx, orderID); err != nil {
			return fmt.Errorf("mark order canceled: %w", err)
		}
		h.Events.Emit(ctx, events.TopicPaymentFailed, orderID, payload)
		h.Events.Emit(ctx, events.TopicOrderCanceled, orderID, payload)
	case StatusRefunded:
		h.Events.Emit(ctx, events.TopicPaymentRefunded, orderID, payload)
	case StatusDisputed:
		h.Events.Emit(ctx, events.TopicPaymentDisputed, orderID, payload)
	}
	return nil
}

// replayKey prefers the provider event id; bodies without one fall back to a
// content hash.
func (h Webhook) replayKey(providerKey string, result WebhookResult, body []byte) string {
	if result.EventID != "" {
		return fmt.Sprintf("wh:%s:%s", providerKey, result.EventID)
	}
	return fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256HexBytes(body))
}
