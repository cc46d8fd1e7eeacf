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
	"sync"
	"time"

	"github.com/Caqil/oncart-backend/internal/resilience"
)

// PayPal implements Provider against the PayPal Orders v2 API. Amounts cross
// the wire as decimal strings in major units.
type PayPal struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	BaseURL       string
	Sandbox       bool
	HTTP          resilience.HTTPClient

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func (p *PayPal) Name() string { return "paypal" }

func (p *PayPal) apiBase() string {
	if strings.TrimSpace(p.BaseURL) != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	if p.Sandbox {
		return "https://api-m.sandbox.paypal.com"
	}
	return "https://api-m.paypal.com"
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

// CreateIntent opens a PayPal order and surfaces the payer approval link.
func (p *PayPal) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderID,
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         FormatAmount(req.Amount, req.Currency),
			},
		}},
	}
	if req.CallbackBaseURL != "" {
		payload["payment_source"] = map[string]any{
			"paypal": map[string]any{
				"experience_context": map[string]string{
					"return_url": req.CallbackBaseURL + "/payments/paypal/return",
					"cancel_url": req.CallbackBaseURL + "/payments/paypal/cancel",
				},
			},
		}
	}

	var order paypalOrder
	if err := p.call(ctx, http.MethodPost, "/v2/checkout/orders", payload, req.IdempotencyKey, &order); err != nil {
		return IntentResponse{}, err
	}
	return IntentResponse{
		Provider:          p.Name(),
		ProviderPaymentID: order.ID,
		RedirectURL:       paypalLink(order, "payer-action", "approve"),
		Status:            paypalStatus(order.Status),
	}, nil
}

// Process captures an approved order.
func (p *PayPal) Process(ctx context.Context, req ConfirmRequest) (Status, error) {
	var order paypalOrder
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(req.ProviderPaymentID))
	if err := p.call(ctx, http.MethodPost, path, map[string]any{}, "", &order); err != nil {
		return StatusFailed, err
	}
	return paypalStatus(order.Status), nil
}

// Refund returns a captured amount. PayPal refunds address the capture id,
// which the caller passes as ProviderPaymentID after settlement.
func (p *PayPal) Refund(ctx context.Context, req RefundRequest) (RefundResponse, error) {
	payload := map[string]any{}
	if req.Amount > 0 {
		payload["amount"] = map[string]string{
			"currency_code": strings.ToUpper(req.Currency),
			"value":         FormatAmount(req.Amount, req.Currency),
		}
	}
	if req.Reason != "" {
		payload["note_to_payer"] = req.Reason
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v2/payments/captures/%s/refund", url.PathEscape(req.ProviderPaymentID))
	if err := p.call(ctx, http.MethodPost, path, payload, req.ProviderRefundKey, &refund); err != nil {
		return RefundResponse{}, err
	}
	status := StatusRefunded
	if refund.Status == "FAILED" || refund.Status == "CANCELLED" {
		status = StatusFailed
	}
	return RefundResponse{ProviderRefundID: refund.ID, Status: status}, nil
}

// GetStatus fetches the current order state.
func (p *PayPal) GetStatus(ctx context.Context, providerPaymentID string) (Status, error) {
	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(providerPaymentID)
	if err := p.call(ctx, http.MethodGet, path, nil, "", &order); err != nil {
		return StatusProcessing, err
	}
	return paypalStatus(order.Status), nil
}

// VerifyWebhook checks the transmission signature. Deployments without
// certificate pinning configure a shared webhook secret and PayPal-compatible
// HMAC over "<transmission-id>|<timestamp>|<body-sha>"; the full
// certificate-chain verification is delegated to the gateway in front.
func (p *PayPal) VerifyWebhook(r *http.Request, body []byte) (WebhookResult, error) {
	transmissionID := r.Header.Get("Paypal-Transmission-Id")
	timestamp := r.Header.Get("Paypal-Transmission-Time")
	signature := r.Header.Get("Paypal-Transmission-Sig")
	if transmissionID == "" || timestamp == "" || signature == "" {
		return WebhookResult{Valid: false, Err: errors.New("missing transmission headers")}, nil
	}

	bodySum := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte(p.WebhookSecret))
	fmt.Fprintf(mac, "%s|%s|%s", transmissionID, timestamp, hex.EncodeToString(bodySum[:]))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return WebhookResult{Valid: false, Err: errors.New("invalid transmission signature")}, nil
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			PurchaseUnits []struct {
				ReferenceID string `json:"reference_id"`
			} `json:"purchase_units"`
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
			CustomID string `json:"custom_id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookResult{Valid: false, Err: err}, nil
	}

	orderID := event.Resource.CustomID
	if orderID == "" && len(event.Resource.PurchaseUnits) > 0 {
		orderID = event.Resource.PurchaseUnits[0].ReferenceID
	}
	amount, err := ParseAmount(event.Resource.Amount.Value, event.Resource.Amount.CurrencyCode)
	if err != nil {
		return WebhookResult{Valid: false, Err: err}, nil
	}
	return WebhookResult{
		Valid:           true,
		EventID:         event.ID,
		OrderID:         orderID,
		ProviderPayment: event.Resource.ID,
		Amount:          amount,
		Currency:        strings.ToUpper(event.Resource.Amount.CurrencyCode),
		Status:          paypalEventStatus(event.EventType, event.Resource.Status),
		ProviderPayload: body,
	}, nil
}

// token fetches and caches an OAuth client-credentials token.
func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Until(p.tokenExpiry) > time.Minute {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase()+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return "", newProviderError(p.Name(), "PROVIDER_UNREACHABLE", http.StatusBadGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return "", newProviderError(p.Name(), "AUTH_FAILED", resp.StatusCode, errors.New(resp.Status))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

func (p *PayPal) call(ctx context.Context, method, path string, payload any, idemKey string, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.apiBase()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("PayPal-Request-Id", idemKey)
	}

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return newProviderError(p.Name(), "PROVIDER_UNREACHABLE", http.StatusBadGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newProviderError(p.Name(), "PROVIDER_READ_ERROR", http.StatusBadGateway, err)
	}
	if resp.StatusCode >= 400 {
		var failure struct {
			Name    string `json:"name"`
			Details []struct {
				Issue string `json:"issue"`
				Field string `json:"field"`
			} `json:"details"`
		}
		_ = json.Unmarshal(data, &failure)
		code := "PROVIDER_ERROR"
		field := ""
		if len(failure.Details) > 0 {
			code = strings.ToUpper(firstNonEmpty(failure.Details[0].Issue, failure.Name, code))
			field = failure.Details[0].Field
		} else if failure.Name != "" {
			code = strings.ToUpper(failure.Name)
		}
		perr := newProviderError(p.Name(), code, resp.StatusCode, errors.New(resp.Status))
		perr.Field = field
		return perr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func paypalLink(order paypalOrder, rels ...string) string {
	for _, rel := range rels {
		for _, link := range order.Links {
			if link.Rel == rel {
				return link.Href
			}
		}
	}
	return ""
}

func paypalStatus(status string) Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return StatusCompleted
	case "APPROVED":
		return StatusAuthorized
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return StatusPending
	case "VOIDED":
		return StatusCancelled
	default:
		return StatusProcessing
	}
}

func paypalEventStatus(eventType, resourceStatus string) Status {
	switch eventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		return StatusCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		return StatusFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		return StatusRefunded
	case "CUSTOMER.DISPUTE.CREATED":
		return StatusDisputed
	default:
		return paypalStatus(resourceStatus)
	}
}
