package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/payment"
)

// Store is the pgx-backed persistence layer for orders and payments.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// OrderCharge returns the payable amount and currency for an order.
func (s *Store) OrderCharge(ctx context.Context, orderID uuid.UUID) (cart.Money, string, error) {
	var amount cart.Money
	var currency string
	err := s.pool.QueryRow(ctx,
		`SELECT total_amount, currency FROM orders WHERE id = $1`, orderID).
		Scan(&amount, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", payment.ErrNotFound
		}
		return 0, "", fmt.Errorf("select order: %w", err)
	}
	return amount, currency, nil
}

// CreatePayment inserts a new payment row.
func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, provider, provider_payment_id, amount, currency, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrderID, p.Provider, p.ProviderPaymentID, p.Amount, p.Currency, string(p.Status), p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, order_id, provider, COALESCE(provider_payment_id, ''), amount,
	amount_refunded, currency, status, COALESCE(failure_code, ''), expires_at, created_at, updated_at`

func (s *Store) scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	var status string
	err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.ProviderPaymentID, &p.Amount,
		&p.AmountRefunded, &p.Currency, &status, &p.FailureCode, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = payment.ParseStatus(status)
	return &p, nil
}

// GetPayment loads a payment by id.
func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return s.scanPayment(row)
}

// LatestPaymentByOrder loads the most recent payment for an order.
func (s *Store) LatestPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID)
	return s.scanPayment(row)
}

// UpdatePaymentStatus transitions a payment, recording the provider id when it
// was not known at creation time.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID, failureCode string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    provider_payment_id = COALESCE(NULLIF($3, ''), provider_payment_id),
		    failure_code = NULLIF($4, ''),
		    updated_at = now()
		WHERE id = $1`,
		id, string(status), providerPaymentID, failureCode)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// ApplyRefund records a refund and bumps the payment's refunded total in one
// transaction.
func (s *Store) ApplyRefund(ctx context.Context, r *payment.Refund, newStatus payment.Status) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO refunds (id, payment_id, provider_refund_id, amount, reason)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))`,
		r.ID, r.PaymentID, r.ProviderRefundID, r.Amount, r.Reason)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET amount_refunded = amount_refunded + $2, status = $3, updated_at = now()
		WHERE id = $1`,
		r.PaymentID, r.Amount, string(newStatus))
	if err != nil {
		return fmt.Errorf("update refunded amount: %w", err)
	}
	return tx.Commit(ctx)
}

// InsertEvent appends a payment audit event.
func (s *Store) InsertEvent(ctx context.Context, e *payment.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_events (id, payment_id, status, payload)
		VALUES ($1, $2, $3, $4)`,
		e.ID, e.PaymentID, string(e.Status), e.Payload)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// RecordEvent appends a domain event row for audit and async consumers.
func (s *Store) RecordEvent(ctx context.Context, topic string, orderID uuid.UUID, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO domain_events (id, topic, order_id, payload)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), topic, orderID, data)
	if err != nil {
		return fmt.Errorf("insert domain event: %w", err)
	}
	return nil
}

// MarkOrderPaid settles the order after a completed payment.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = 'PAID', updated_at = now()
		WHERE id = $1 AND status = 'PENDING_PAYMENT'`, orderID)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}

// MarkOrderCanceled releases an order whose payment failed. Orders already
// paid are left untouched.
func (s *Store) MarkOrderCanceled(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = 'CANCELED', updated_at = now()
		WHERE id = $1 AND status = 'PENDING_PAYMENT'`, orderID)
	if err != nil {
		return fmt.Errorf("mark order canceled: %w", err)
	}
	return nil
}
