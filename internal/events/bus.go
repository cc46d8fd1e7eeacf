package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topic names a domain event.
type Topic string

const (
	TopicOrderPaid       Topic = "order.paid"
	TopicOrderCanceled   Topic = "order.canceled"
	TopicPaymentFailed   Topic = "payment.failed"
	TopicPaymentExpired  Topic = "payment.expired"
	TopicPaymentRefunded Topic = "payment.refunded"
	TopicPaymentDisputed Topic = "payment.disputed"
)

// Notifier receives emitted events. Implementations must not block; slow
// delivery belongs behind a queue.
type Notifier interface {
	Notify(ctx context.Context, topic Topic, orderID uuid.UUID, payload map[string]any) error
}

// Store appends emitted events to durable storage before fan-out.
type Store interface {
	RecordEvent(ctx context.Context, topic string, orderID uuid.UUID, payload map[string]any) error
}

// Bus records domain events and fans them out to the registered notifiers.
// Delivery is best effort; a failing store or notifier is logged and never
// interrupts the caller.
type Bus struct {
	Log       zerolog.Logger
	Store     Store
	Notifiers []Notifier
}

// Emit records the event and publishes it to every notifier.
func (b *Bus) Emit(ctx context.Context, topic Topic, orderID uuid.UUID, payload map[string]any) {
	if b == nil {
		return
	}
	if b.Store != nil {
		if err := b.Store.RecordEvent(ctx, string(topic), orderID, payload); err != nil {
			b.Log.Warn().Err(err).
				Str("topic", string(topic)).
				Str("order_id", orderID.String()).
				Msg("record domain event")
		}
	}
	for _, n := range b.Notifiers {
		if err := n.Notify(ctx, topic, orderID, payload); err != nil {
			b.Log.Warn().Err(err).
				Str("topic", string(topic)).
				Str("order_id", orderID.String()).
				Msg("event notifier failed")
		}
	}
}
