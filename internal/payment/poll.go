package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskTypeStatusPoll is the asynq task type for uncertain-payment polls.
const TaskTypeStatusPoll = "payment:status_poll"

type pollPayload struct {
	PaymentID string `json:"paymentId"`
	Provider  string `json:"provider"`
	Attempt   int    `json:"attempt"`
}

// AsynqPoller schedules status polls on the task queue. The task id is the
// payment id, so rescheduling an already queued payment is a no-op.
type AsynqPoller struct {
	Client      *asynq.Client
	Delay       time.Duration
	MaxAttempts int
}

func (p AsynqPoller) SchedulePoll(ctx context.Context, paymentID uuid.UUID, provider string, attempt int) error {
	payload, err := json.Marshal(pollPayload{
		PaymentID: paymentID.String(),
		Provider:  provider,
		Attempt:   attempt,
	})
	if err != nil {
		return err
	}
	delay := p.Delay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	task := asynq.NewTask(TaskTypeStatusPoll, payload)
	_, err = p.Client.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("%s:%d", paymentID, attempt)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// PollHandler resolves uncertain payments on the worker. A still-pending
// payment is rescheduled until the attempt budget runs out, after which the
// payment is left PROCESSING for manual review.
type PollHandler struct {
	Service     *Service
	Poller      AsynqPoller
	MaxAttempts int
	Log         zerolog.Logger
}

func (h PollHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload pollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode poll payload: %w", err)
	}
	paymentID, err := uuid.Parse(payload.PaymentID)
	if err != nil {
		return fmt.Errorf("parse payment id: %w", err)
	}

	settled, err := h.Service.ResolvePoll(ctx, paymentID)
	if err != nil {
		h.Log.Warn().Err(err).
			Str("payment_id", payload.PaymentID).
			Int("attempt", payload.Attempt).
			Msg("payment status poll failed")
	}
	if settled {
		return nil
	}

	maxAttempts := h.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if payload.Attempt >= maxAttempts {
		h.Log.Error().
			Str("payment_id", payload.PaymentID).
			Int("attempts", payload.Attempt).
			Msg("payment still unresolved after poll budget, leaving for review")
		return nil
	}
	return h.Poller.SchedulePoll(ctx, paymentID, payload.Provider, payload.Attempt+1)
}
