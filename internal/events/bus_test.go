package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to      string
	subject string
}

type memSender struct {
	sent []sentMail
	err  error
}

func (m *memSender) Send(_ context.Context, to, subject, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject})
	return nil
}

func TestEmailNotifierSendsForLifecycleTopics(t *testing.T) {
	t.Parallel()

	sender := &memSender{}
	n := EmailNotifier{Sender: sender}
	orderID := uuid.New()
	payload := map[string]any{"email": "buyer@example.com"}

	require.NoError(t, n.Notify(context.Background(), TopicOrderPaid, orderID, payload))
	require.NoError(t, n.Notify(context.Background(), TopicPaymentFailed, orderID, payload))
	require.Len(t, sender.sent, 2)
	require.Equal(t, "buyer@example.com", sender.sent[0].to)
	require.Equal(t, "Your order is confirmed", sender.sent[0].subject)
}

func TestEmailNotifierSkipsWithoutAddress(t *testing.T) {
	t.Parallel()

	sender := &memSender{}
	n := EmailNotifier{Sender: sender}

	require.NoError(t, n.Notify(context.Background(), TopicOrderPaid, uuid.New(), nil))
	require.Empty(t, sender.sent)
}

func TestEmailNotifierIgnoresUnknownTopic(t *testing.T) {
	t.Parallel()

	sender := &memSender{}
	n := EmailNotifier{Sender: sender}
	payload := map[string]any{"email": "buyer@example.com"}

	require.NoError(t, n.Notify(context.Background(), Topic("inventory.low"), uuid.New(), payload))
	require.Empty(t, sender.sent)
}

type recordedEvent struct {
	topic   string
	orderID uuid.UUID
}

type memEventStore struct {
	events []recordedEvent
	err    error
}

func (m *memEventStore) RecordEvent(_ context.Context, topic string, orderID uuid.UUID, _ map[string]any) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, recordedEvent{topic: topic, orderID: orderID})
	return nil
}

func TestBusEmitRecordsBeforeFanOut(t *testing.T) {
	t.Parallel()

	store := &memEventStore{}
	sender := &memSender{}
	bus := &Bus{
		Log:       zerolog.Nop(),
		Store:     store,
		Notifiers: []Notifier{EmailNotifier{Sender: sender}},
	}

	orderID := uuid.New()
	bus.Emit(context.Background(), TopicOrderPaid, orderID, map[string]any{"email": "buyer@example.com"})

	require.Equal(t, []recordedEvent{{topic: "order.paid", orderID: orderID}}, store.events)
	require.Len(t, sender.sent, 1)
}

func TestBusEmitSurvivesFailingStore(t *testing.T) {
	t.Parallel()

	sender := &memSender{}
	bus := &Bus{
		Log:       zerolog.Nop(),
		Store:     &memEventStore{err: errors.New("db down")},
		Notifiers: []Notifier{EmailNotifier{Sender: sender}},
	}

	bus.Emit(context.Background(), TopicOrderPaid, uuid.New(), map[string]any{"email": "buyer@example.com"})
	require.Len(t, sender.sent, 1)
}

func TestBusEmitSurvivesFailingNotifier(t *testing.T) {
	t.Parallel()

	failing := EmailNotifier{Sender: &memSender{err: errors.New("smtp down")}}
	healthy := &memSender{}
	bus := &Bus{
		Log:       zerolog.Nop(),
		Notifiers: []Notifier{failing, EmailNotifier{Sender: healthy}},
	}

	payload := map[string]any{"email": "buyer@example.com"}
	bus.Emit(context.Background(), TopicOrderPaid, uuid.New(), payload)

	require.Len(t, healthy.sent, 1)
}
