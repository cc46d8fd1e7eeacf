package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/obs"
)

func init() {
	obs.MustRegisterDomainMetrics("test", nil)
}

type fakeProvider struct {
	name          string
	intentErr     error
	processStatus Status
	processErr    error
	statusResult  Status
	statusErr     error
	refundStatus  Status
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if f.intentErr != nil {
		return IntentResponse{}, f.intentErr
	}
	return IntentResponse{
		Provider:          f.name,
		ProviderPaymentID: "prov_" + req.OrderID,
		ClientSecret:      "secret_" + req.OrderID,
		Status:            StatusPending,
	}, nil
}

func (f *fakeProvider) Process(context.Context, ConfirmRequest) (Status, error) {
	if f.processErr != nil {
		return StatusFailed, f.processErr
	}
	return f.processStatus, nil
}

func (f *fakeProvider) Refund(_ context.Context, req RefundRequest) (RefundResponse, error) {
	return RefundResponse{ProviderRefundID: "rf_" + req.ProviderRefundKey, Status: f.refundStatus}, nil
}

func (f *fakeProvider) GetStatus(context.Context, string) (Status, error) {
	if f.statusErr != nil {
		return StatusProcessing, f.statusErr
	}
	return f.statusResult, nil
}

func (f *fakeProvider) VerifyWebhook(*http.Request, []byte) (WebhookResult, error) {
	return WebhookResult{}, nil
}

type memPoller struct {
	mu    sync.Mutex
	polls []uuid.UUID
}

func (p *memPoller) SchedulePoll(_ context.Context, paymentID uuid.UUID, _ string, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls = append(p.polls, paymentID)
	return nil
}

func newService(store *memStore, provider *fakeProvider, poller Poller) *Service {
	return &Service{
		Store:           store,
		Providers:       map[string]Provider{provider.name: provider},
		DefaultProvider: provider.name,
		IntentTTL:       15 * time.Minute,
		Poll:            poller,
		Log:             zerolog.Nop(),
	}
}

func TestCreateIntentPersistsPayment(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 99_00
	svc := newService(store, &fakeProvider{name: "stripe"}, nil)

	orderID := uuid.New()
	intent, err := svc.CreateIntent(context.Background(), orderID, "")
	require.NoError(t, err)
	require.Equal(t, "stripe", intent.Provider)
	require.NotEmpty(t, intent.ClientSecret)

	p, err := store.LatestPaymentByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.EqualValues(t, 99_00, p.Amount)
	require.Equal(t, StatusPending, p.Status)
}

func TestCreateIntentReusesOpenPayment(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 99_00
	svc := newService(store, &fakeProvider{name: "stripe"}, nil)

	orderID := uuid.New()
	first, err := svc.CreateIntent(context.Background(), orderID, "stripe")
	require.NoError(t, err)
	second, err := svc.CreateIntent(context.Background(), orderID, "stripe")
	require.NoError(t, err)
	require.Equal(t, first.PaymentID, second.PaymentID)
}

func TestCreateIntentZeroTotal(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newService(store, &fakeProvider{name: "stripe"}, nil)

	_, err := svc.CreateIntent(context.Background(), uuid.New(), "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOTHING_TO_PAY", appErr.Code)
}

func TestCreateIntentUncertainOutcomeSchedulesPoll(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 99_00
	provider := &fakeProvider{
		name:      "stripe",
		intentErr: newProviderError("stripe", "PROVIDER_UNREACHABLE", http.StatusBadGateway, errors.New("timeout")),
	}
	poller := &memPoller{}
	svc := newService(store, provider, poller)

	orderID := uuid.New()
	intent, err := svc.CreateIntent(context.Background(), orderID, "")
	require.NoError(t, err)

	p, err := store.LatestPaymentByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, p.Status)
	require.Equal(t, intent.PaymentID, p.ID)

	poller.mu.Lock()
	defer poller.mu.Unlock()
	require.Equal(t, []uuid.UUID{intent.PaymentID}, poller.polls)
}

func TestCreateIntentDefiniteRejectionPersistsNothing(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 99_00
	provider := &fakeProvider{
		name:      "stripe",
		intentErr: newProviderError("stripe", "INVALID_CURRENCY", 400, errors.New("bad currency")),
	}
	svc := newService(store, provider, nil)

	orderID := uuid.New()
	_, err := svc.CreateIntent(context.Background(), orderID, "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_CURRENCY", appErr.Code)

	_, err = store.LatestPaymentByOrder(context.Background(), orderID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmCompletedMarksOrderPaid(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 50_00
	provider := &fakeProvider{name: "stripe", processStatus: StatusCompleted}
	svc := newService(store, provider, nil)

	orderID := uuid.New()
	intent, err := svc.CreateIntent(context.Background(), orderID, "")
	require.NoError(t, err)

	p, err := svc.Confirm(context.Background(), intent.PaymentID, "pm_card")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, p.Status)
	require.True(t, store.paid(orderID))
}

func TestConfirmDeclinedSurfacesProviderCode(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 50_00
	provider := &fakeProvider{
		name:       "stripe",
		processErr: newProviderError("stripe", "CARD_DECLINED", 402, errors.New("card declined")),
	}
	svc := newService(store, provider, nil)

	intent, err := svc.CreateIntent(context.Background(), uuid.New(), "")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), intent.PaymentID, "pm_card")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CARD_DECLINED", appErr.Code)

	p, err := store.GetPayment(context.Background(), intent.PaymentID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, p.Status)
}

func TestConfirmUncertainOutcomeSchedulesPoll(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 50_00
	provider := &fakeProvider{
		name:       "stripe",
		processErr: newProviderError("stripe", "PROVIDER_UNREACHABLE", http.StatusBadGateway, errors.New("timeout")),
	}
	poller := &memPoller{}
	svc := newService(store, provider, poller)

	orderID := uuid.New()
	intent, err := svc.CreateIntent(context.Background(), orderID, "")
	require.NoError(t, err)

	p, err := svc.Confirm(context.Background(), intent.PaymentID, "pm_card")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, p.Status)
	require.False(t, store.paid(orderID))

	poller.mu.Lock()
	defer poller.mu.Unlock()
	require.Equal(t, []uuid.UUID{intent.PaymentID}, poller.polls)
}

func TestResolvePollSettlesPayment(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 50_00
	provider := &fakeProvider{
		name:          "stripe",
		processErr:    newProviderError("stripe", "PROVIDER_UNREACHABLE", http.StatusBadGateway, errors.New("timeout")),
		statusResult:  StatusCompleted,
		processStatus: StatusCompleted,
	}
	svc := newService(store, provider, &memPoller{})

	orderID := uuid.New()
	intent, err := svc.CreateIntent(context.Background(), orderID, "")
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), intent.PaymentID, "pm_card")
	require.NoError(t, err)

	settled, err := svc.ResolvePoll(context.Background(), intent.PaymentID)
	require.NoError(t, err)
	require.True(t, settled)
	require.True(t, store.paid(orderID))
}

func TestRefundFullAndPartial(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 100_00
	provider := &fakeProvider{name: "stripe", processStatus: StatusCompleted, refundStatus: StatusRefunded}
	svc := newService(store, provider, nil)

	intent, err := svc.CreateIntent(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), intent.PaymentID, "pm_card")
	require.NoError(t, err)

	refund, err := svc.Refund(context.Background(), intent.PaymentID, 30_00, "damaged item")
	require.NoError(t, err)
	require.EqualValues(t, 30_00, refund.Amount)

	p, err := store.GetPayment(context.Background(), intent.PaymentID)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyRefunded, p.Status)

	_, err = svc.Refund(context.Background(), intent.PaymentID, 0, "full")
	require.NoError(t, err)
	p, err = store.GetPayment(context.Background(), intent.PaymentID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, p.Status)
	require.EqualValues(t, 0, p.Refundable())
}

func TestRefundExceedingBalanceRejected(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.orderCharge = 100_00
	provider := &fakeProvider{name: "stripe", processStatus: StatusCompleted, refundStatus: StatusRefunded}
	svc := newService(store, provider, nil)

	intent, err := svc.CreateIntent(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), intent.PaymentID, "pm_card")
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), intent.PaymentID, 150_00, "too much")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "REFUND_EXCEEDS_BALANCE", appErr.Code)
}
