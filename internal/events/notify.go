package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EmailSender delivers a rendered message to a recipient.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailNotifier turns payment lifecycle events into buyer emails. Events with
// no email address in the payload are skipped.
type EmailNotifier struct {
	Sender EmailSender
}

func (n EmailNotifier) Notify(ctx context.Context, topic Topic, orderID uuid.UUID, payload map[string]any) error {
	email, _ := payload["email"].(string)
	if email == "" || n.Sender == nil {
		return nil
	}

	var subject, body string
	switch topic {
	case TopicOrderPaid:
		subject = "Your order is confirmed"
		body = fmt.Sprintf("Payment for order %s was received.", orderID)
	case TopicOrderCanceled:
		subject = "Your order was canceled"
		body = fmt.Sprintf("Order %s was canceled because payment did not complete.", orderID)
	case TopicPaymentFailed:
		subject = "Payment failed"
		body = fmt.Sprintf("The payment for order %s failed. You can retry from your orders page.", orderID)
	case TopicPaymentRefunded:
		subject = "Your refund is on its way"
		body = fmt.Sprintf("A refund for order %s has been issued.", orderID)
	default:
		return nil
	}
	return n.Sender.Send(ctx, email, subject, body)
}

// LogNotifier records every event, useful as an always-on audit trail.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, topic Topic, orderID uuid.UUID, payload map[string]any) error {
	n.Log.Info().
		Str("topic", string(topic)).
		Str("order_id", orderID.String()).
		Fields(payload).
		Msg("domain event")
	return nil
}
