package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/resilience"
)

const razorpayAPIBase = "https://api.razorpay.com/v1"

// Razorpay implements Provider against the Razorpay Orders API. Amounts are
// integers in the currency's smallest unit (paise for INR).
type Razorpay struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	HTTP          resilience.HTTPClient
}

func (rz Razorpay) Name() string { return "razorpay" }

func (rz Razorpay) apiBase() string {
	if strings.TrimSpace(rz.BaseURL) != "" {
		return strings.TrimRight(rz.BaseURL, "/")
	}
	return razorpayAPIBase
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateIntent opens a Razorpay order. The returned order id is what the
// client-side checkout widget consumes.
func (rz Razorpay) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	payload := map[string]any{
		"amount":   int64(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.OrderID,
		"notes":    map[string]string{"order_id": req.OrderID},
	}

	var order razorpayOrder
	if err := rz.call(ctx, http.MethodPost, "/orders", payload, req.IdempotencyKey, &order); err != nil {
		return IntentResponse{}, err
	}
	return IntentResponse{
		Provider:          rz.Name(),
		ProviderPaymentID: order.ID,
		ClientSecret:      order.ID,
		Status:            razorpayStatus(order.Status),
	}, nil
}

// Process verifies the checkout confirmation signature: HMAC-SHA256 over
// "<order-id>|<razorpay-payment-id>" with the key secret. The token arrives as
// "<razorpay-payment-id>:<signature>" from the client callback.
func (rz Razorpay) Process(_ context.Context, req ConfirmRequest) (Status, error) {
	paymentID, signature, ok := strings.Cut(req.ConfirmationToken, ":")
	if !ok || paymentID == "" || signature == "" {
		return StatusFailed, newProviderError(rz.Name(), "INVALID_CONFIRMATION", http.StatusBadRequest,
			errors.New("malformed confirmation token"))
	}

	mac := hmac.New(sha256.New, []byte(rz.KeySecret))
	fmt.Fprintf(mac, "%s|%s", req.ProviderPaymentID, paymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return StatusFailed, newProviderError(rz.Name(), "SIGNATURE_MISMATCH", http.StatusBadRequest,
			errors.New("confirmation signature verification failed"))
	}
	return StatusCompleted, nil
}

// Refund returns funds against a captured payment id.
func (rz Razorpay) Refund(ctx context.Context, req RefundRequest) (RefundResponse, error) {
	payload := map[string]any{}
	if req.Amount > 0 {
		payload["amount"] = int64(req.Amount)
	}
	if req.Reason != "" {
		payload["notes"] = map[string]string{"reason": req.Reason}
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/payments/%s/refund", url.PathEscape(req.ProviderPaymentID))
	if err := rz.call(ctx, http.MethodPost, path, payload, req.ProviderRefundKey, &refund); err != nil {
		return RefundResponse{}, err
	}
	status := StatusRefunded
	if refund.Status == "failed" {
		status = StatusFailed
	}
	return RefundResponse{ProviderRefundID: refund.ID, Status: status}, nil
}

// GetStatus fetches the order state, used by the uncertain-payment poller.
func (rz Razorpay) GetStatus(ctx context.Context, providerPaymentID string) (Status, error) {
	var order razorpayOrder
	path := "/orders/" + url.PathEscape(providerPaymentID)
	if err := rz.call(ctx, http.MethodGet, path, nil, "", &order); err != nil {
		return StatusProcessing, err
	}
	return razorpayStatus(order.Status), nil
}

// VerifyWebhook checks X-Razorpay-Signature: HMAC-SHA256 over the raw body.
func (rz Razorpay) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	signature := strings.TrimSpace(r.Header.Get("X-Razorpay-Signature"))
	if signature == "" {
		return WebhookResult{Valid: false, Err: errors.New("missing signature header")}, nil
	}

	mac := hmac.New(sha256.New, []byte(rz.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return WebhookResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var event struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID       string `json:"id"`
					OrderID  string `json:"order_id"`
					Amount   int64  `json:"amount"`
					Currency string `json:"currency"`
					Status   string `json:"status"`
					Notes    struct {
						OrderID string `json:"order_id"`
					} `json:"notes"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookResult{Valid: false, Err: err}, nil
	}

	entity := event.Payload.Payment.Entity
	eventID := r.Header.Get("X-Razorpay-Event-Id")
	return WebhookResult{
		Valid:           true,
		EventID:         eventID,
		OrderID:         entity.Notes.OrderID,
		ProviderPayment: entity.OrderID,
		Amount:          cart.Money(entity.Amount),
		Currency:        strings.ToUpper(entity.Currency),
		Status:          razorpayEventStatus(event.Event, entity.Status),
		ProviderPayload: body,
	}, nil
}

func (rz Razorpay) call(ctx context.Context, method, path string, payload any, idemKey string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rz.apiBase()+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(rz.KeyID, rz.KeySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("X-Razorpay-Idempotency", idemKey)
	}

	resp, err := rz.HTTP.Do(ctx, req)
	if err != nil {
		return newProviderError(rz.Name(), "PROVIDER_UNREACHABLE", http.StatusBadGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newProviderError(rz.Name(), "PROVIDER_READ_ERROR", http.StatusBadGateway, err)
	}
	if resp.StatusCode >= 400 {
		var failure struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
				Field       string `json:"field"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &failure)
		perr := newProviderError(rz.Name(), firstNonEmpty(strings.ToUpper(failure.Error.Code), "PROVIDER_ERROR"),
			resp.StatusCode, errors.New(firstNonEmpty(failure.Error.Description, resp.Status)))
		perr.Field = failure.Error.Field
		return perr
	}
	return json.Unmarshal(data, out)
}

func razorpayStatus(status string) Status {
	switch strings.ToLower(status) {
	case "paid", "captured":
		return StatusCompleted
	case "authorized":
		return StatusAuthorized
	case "created", "attempted":
		return StatusPending
	case "failed":
		return StatusFailed
	case "refunded":
		return StatusRefunded
	default:
		return StatusProcessing
	}
}

func razorpayEventStatus(event, entityStatus string) Status {
	switch event {
	case "payment.captured", "order.paid":
		return StatusCompleted
	case "payment.failed":
		return StatusFailed
	case "refund.processed":
		return StatusRefunded
	case "payment.dispute.created":
		return StatusDisputed
	default:
		return razorpayStatus(entityStatus)
	}
}
