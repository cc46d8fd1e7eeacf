package payment

import (
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
	"strconv"
	"strings"
	"time"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/resilience"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// Stripe implements Provider against the Stripe PaymentIntents API.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTP          resilience.HTTPClient
	// Tolerance bounds the accepted age of a signed webhook timestamp.
	Tolerance time.Duration
}

func (s Stripe) Name() string { return "stripe" }

func (s Stripe) apiBase() string {
	if strings.TrimSpace(s.BaseURL) != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return stripeAPIBase
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	LastError    *struct {
		Code  string `json:"code"`
		Param string `json:"param"`
	} `json:"last_payment_error"`
}

// CreateIntent opens a PaymentIntent. The order id travels in metadata so
// webhooks can be correlated without a local lookup by provider id.
func (s Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(int64(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("automatic_payment_methods[enabled]", "true")

	var intent stripeIntent
	if err := s.call(ctx, http.MethodPost, "/payment_intents", form, req.IdempotencyKey, &intent); err != nil {
		return IntentResponse{}, err
	}
	return IntentResponse{
		Provider:          s.Name(),
		ProviderPaymentID: intent.ID,
		ClientSecret:      intent.ClientSecret,
		Status:            stripeStatus(intent.Status),
	}, nil
}

// Process confirms the intent with the payment method the client collected.
func (s Stripe) Process(ctx context.Context, req ConfirmRequest) (Status, error) {
	form := url.Values{}
	if req.ConfirmationToken != "" {
		form.Set("payment_method", req.ConfirmationToken)
	}
	var intent stripeIntent
	path := fmt.Sprintf("/payment_intents/%s/confirm", url.PathEscape(req.ProviderPaymentID))
	if err := s.call(ctx, http.MethodPost, path, form, "", &intent); err != nil {
		return StatusFailed, err
	}
	return stripeStatus(intent.Status), nil
}

// Refund returns funds against a completed intent.
func (s Stripe) Refund(ctx context.Context, req RefundRequest) (RefundResponse, error) {
	form := url.Values{}
	form.Set("payment_intent", req.ProviderPaymentID)
	if req.Amount > 0 {
		form.Set("amount", strconv.FormatInt(int64(req.Amount), 10))
	}
	if req.Reason != "" {
		form.Set("reason", req.Reason)
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := s.call(ctx, http.MethodPost, "/refunds", form, req.ProviderRefundKey, &refund); err != nil {
		return RefundResponse{}, err
	}
	status := StatusRefunded
	if refund.Status == "failed" {
		status = StatusFailed
	}
	return RefundResponse{ProviderRefundID: refund.ID, Status: status}, nil
}

// GetStatus fetches the current intent state, used by the uncertain-payment poller.
func (s Stripe) GetStatus(ctx context.Context, providerPaymentID string) (Status, error) {
	var intent stripeIntent
	path := "/payment_intents/" + url.PathEscape(providerPaymentID)
	if err := s.call(ctx, http.MethodGet, path, nil, "", &intent); err != nil {
		return StatusProcessing, err
	}
	return stripeStatus(intent.Status), nil
}

// VerifyWebhook checks the Stripe-Signature header: HMAC-SHA256 over
// "<timestamp>.<body>" with the endpoint secret, within the tolerance window.
func (s Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	header := r.Header.Get("Stripe-Signature")
	ts, sigs := parseStripeSignature(header)
	if ts == "" || len(sigs) == 0 {
		return WebhookResult{Valid: false, Err: errors.New("missing signature header")}, nil
	}

	epoch, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return WebhookResult{Valid: false, Err: errors.New("malformed signature timestamp")}, nil
	}
	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if age := time.Since(time.Unix(epoch, 0)); age > tolerance || age < -tolerance {
		return WebhookResult{Valid: false, Err: errors.New("signature timestamp outside tolerance")}, nil
	}

	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return WebhookResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
				Metadata struct {
					OrderID string `json:"order_id"`
				} `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookResult{Valid: false, Err: err}, nil
	}

	obj := event.Data.Object
	return WebhookResult{
		Valid:           true,
		EventID:         event.ID,
		OrderID:         obj.Metadata.OrderID,
		ProviderPayment: obj.ID,
		Amount:          cart.Money(obj.Amount),
		Currency:        strings.ToUpper(obj.Currency),
		Status:          stripeEventStatus(event.Type, obj.Status),
		ProviderPayload: body,
	}, nil
}

func parseStripeSignature(header string) (ts string, sigs []string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	return ts, sigs
}

func (s Stripe) call(ctx context.Context, method, path string, form url.Values, idemKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.apiBase()+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.SecretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return newProviderError(s.Name(), "PROVIDER_UNREACHABLE", http.StatusBadGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newProviderError(s.Name(), "PROVIDER_READ_ERROR", http.StatusBadGateway, err)
	}
	if resp.StatusCode >= 400 {
		var failure struct {
			Error struct {
				Code  string `json:"code"`
				Param string `json:"param"`
				Msg   string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &failure)
		perr := newProviderError(s.Name(), stripeErrorCode(failure.Error.Code), resp.StatusCode,
			errors.New(firstNonEmpty(failure.Error.Msg, resp.Status)))
		perr.Field = failure.Error.Param
		return perr
	}
	return json.Unmarshal(data, out)
}

func stripeErrorCode(code string) string {
	switch code {
	case "card_declined":
		return "CARD_DECLINED"
	case "expired_card":
		return "CARD_EXPIRED"
	case "insufficient_funds":
		return "INSUFFICIENT_FUNDS"
	case "amount_too_small":
		return "AMOUNT_TOO_SMALL"
	case "":
		return "PROVIDER_ERROR"
	default:
		return strings.ToUpper(code)
	}
}

func stripeStatus(status string) Status {
	switch status {
	case "succeeded":
		return StatusCompleted
	case "processing":
		return StatusProcessing
	case "requires_capture":
		return StatusAuthorized
	case "canceled":
		return StatusCancelled
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return StatusPending
	default:
		return StatusProcessing
	}
}

func stripeEventStatus(eventType, objectStatus string) Status {
	switch eventType {
	case "payment_intent.succeeded":
		return StatusCompleted
	case "payment_intent.payment_failed":
		return StatusFailed
	case "payment_intent.canceled":
		return StatusCancelled
	case "charge.refunded":
		return StatusRefunded
	case "charge.dispute.created":
		return StatusDisputed
	default:
		return stripeStatus(objectStatus)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
