package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func stripeSign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestStripeVerifyWebhook(t *testing.T) {
	t.Parallel()

	s := Stripe{WebhookSecret: "whsec_test"}
	body := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123",
			"amount": 4200,
			"currency": "usd",
			"status": "succeeded",
			"metadata": {"order_id": "9f2c7e1a-52b4-4f6e-9d3e-7a1b2c3d4e5f"}
		}}
	}`)
	ts := time.Now().Unix()

	r := httptest.NewRequest("POST", "/webhooks/payment/stripe", nil)
	r.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", ts, stripeSign("whsec_test", ts, body)))

	result, err := s.VerifyWebhook(r, body)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "evt_1", result.EventID)
	require.Equal(t, "9f2c7e1a-52b4-4f6e-9d3e-7a1b2c3d4e5f", result.OrderID)
	require.EqualValues(t, 4200, result.Amount)
	require.Equal(t, StatusCompleted, result.Status)
}

func TestStripeVerifyWebhookRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	s := Stripe{WebhookSecret: "whsec_test"}
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	ts := time.Now().Unix()
	sig := stripeSign("whsec_test", ts, body)

	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"amount":1}}}`)
	r := httptest.NewRequest("POST", "/webhooks/payment/stripe", nil)
	r.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))

	result, err := s.VerifyWebhook(r, tampered)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestStripeVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	s := Stripe{WebhookSecret: "whsec_test", Tolerance: time.Minute}
	body := []byte(`{"id":"evt_1"}`)
	stale := time.Now().Add(-time.Hour).Unix()

	r := httptest.NewRequest("POST", "/webhooks/payment/stripe", nil)
	r.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", stale, stripeSign("whsec_test", stale, body)))

	result, err := s.VerifyWebhook(r, body)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestRazorpayProcessSignature(t *testing.T) {
	t.Parallel()

	rz := Razorpay{KeySecret: "secret"}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("order_abc|pay_xyz"))
	sig := hex.EncodeToString(mac.Sum(nil))

	status, err := rz.Process(context.Background(), ConfirmRequest{
		ProviderPaymentID: "order_abc",
		ConfirmationToken: "pay_xyz:" + sig,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)

	_, err = rz.Process(context.Background(), ConfirmRequest{
		ProviderPaymentID: "order_abc",
		ConfirmationToken: "pay_xyz:" + strings.Repeat("0", len(sig)),
	})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "SIGNATURE_MISMATCH", perr.Code)
}

func TestRazorpayVerifyWebhook(t *testing.T) {
	t.Parallel()

	rz := Razorpay{WebhookSecret: "hooksecret"}
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_1",
			"order_id": "order_1",
			"amount": 125000,
			"currency": "INR",
			"status": "captured",
			"notes": {"order_id": "3e9d1a7c-0b2f-4c8d-a1e2-5f6a7b8c9d0e"}
		}}}
	}`)

	mac := hmac.New(sha256.New, []byte("hooksecret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	r := httptest.NewRequest("POST", "/webhooks/payment/razorpay", nil)
	r.Header.Set("X-Razorpay-Signature", sig)
	r.Header.Set("X-Razorpay-Event-Id", "evt_rz_1")

	result, err := rz.VerifyWebhook(r, body)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "evt_rz_1", result.EventID)
	require.Equal(t, "3e9d1a7c-0b2f-4c8d-a1e2-5f6a7b8c9d0e", result.OrderID)
	require.EqualValues(t, 125000, result.Amount)
	require.Equal(t, StatusCompleted, result.Status)

	r2 := httptest.NewRequest("POST", "/webhooks/payment/razorpay", nil)
	r2.Header.Set("X-Razorpay-Signature", strings.Repeat("0", 64))
	result2, err := rz.VerifyWebhook(r2, body)
	require.NoError(t, err)
	require.False(t, result2.Valid)
}

func TestPayPalVerifyWebhook(t *testing.T) {
	t.Parallel()

	p := &PayPal{WebhookSecret: "pp-secret"}
	body := []byte(`{
		"id": "WH-1",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "cap_1",
			"status": "COMPLETED",
			"custom_id": "b3d4c5e6-1a2b-4c3d-8e9f-0a1b2c3d4e5f",
			"amount": {"currency_code": "USD", "value": "42.00"}
		}
	}`)

	bodySum := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte("pp-secret"))
	fmt.Fprintf(mac, "tid-1|%s|%s", "2026-08-30T10:00:00Z", hex.EncodeToString(bodySum[:]))
	sig := hex.EncodeToString(mac.Sum(nil))

	r := httptest.NewRequest("POST", "/webhooks/payment/paypal", nil)
	r.Header.Set("Paypal-Transmission-Id", "tid-1")
	r.Header.Set("Paypal-Transmission-Time", "2026-08-30T10:00:00Z")
	r.Header.Set("Paypal-Transmission-Sig", sig)

	result, err := p.VerifyWebhook(r, body)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "WH-1", result.EventID)
	require.EqualValues(t, 42_00, result.Amount)
	require.Equal(t, StatusCompleted, result.Status)
}

func TestParseStripeSignatureHeader(t *testing.T) {
	t.Parallel()

	ts, sigs := parseStripeSignature("t=1693000000,v1=abc,v1=def,v0=ignored")
	require.Equal(t, "1693000000", ts)
	require.Equal(t, []string{"abc", "def"}, sigs)

	parsed, err := strconv.ParseInt(ts, 10, 64)
	require.NoError(t, err)
	require.EqualValues(t, 1693000000, parsed)
}
