package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newStripeTestAdapter(t *testing.T, handler http.HandlerFunc) (*StripeAdapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter := NewStripeAdapter(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		BaseURL:       srv.URL,
	}, 5*time.Second)
	return adapter, srv
}

func TestStripeCreateIntent(t *testing.T) {
	var gotPath, gotAuth, gotIdem, gotAmount, gotOrderID string
	adapter, _ := newStripeTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		_ = r.ParseForm()
		gotAmount = r.PostForm.Get("amount")
		gotOrderID = r.PostForm.Get("metadata[order_id]")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"requires_confirmation","client_secret":"pi_123_secret"}`))
	})

	handle, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{
		AmountMinor:    2500,
		Currency:       "EUR",
		OrderID:        "ORD-1",
		IdempotencyKey: "req-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if gotPath != "/v1/payment_intents" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotIdem != "req-1" {
		t.Fatalf("idempotency key not forwarded, got %q", gotIdem)
	}
	if gotAmount != "2500" || gotOrderID != "ORD-1" {
		t.Fatalf("form not encoded as expected: amount=%q order=%q", gotAmount, gotOrderID)
	}
	if handle.IntentID != "pi_123" || handle.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if handle.RequiresAction {
		t.Fatalf("requires_confirmation must not flag RequiresAction")
	}
}

func TestStripeConfirmIntent_RequiresAction(t *testing.T) {
	adapter, _ := newStripeTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_123/confirm" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"requires_action","next_action":{"redirect_to_url":{"url":"https://auth.example/3ds"}}}`))
	})

	out, err := adapter.ConfirmIntent(context.Background(), "pi_123", "pm_1", "https://shop.example/return")
	if err != nil {
		t.Fatalf("ConfirmIntent returned error: %v", err)
	}
	if !out.RequiresAction {
		t.Fatalf("expected RequiresAction for requires_action status")
	}
	if out.ActionURL != "https://auth.example/3ds" {
		t.Fatalf("unexpected action url %q", out.ActionURL)
	}
}

func TestStripeErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		retryable bool
		message   string
	}{
		{402, `{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline"}}`, false, "Your card was declined."},
		{402, `{"error":{"type":"card_error","decline_code":"insufficient_funds"}}`, false, "Your card has insufficient funds."},
		{402, `{"error":{"type":"card_error","code":"expired_card"}}`, false, "Your card has expired."},
		{429, `{"error":{"type":"rate_limit_error"}}`, true, "Too many payment attempts. Please wait a moment and try again."},
		{500, `{}`, true, "The payment service is temporarily unavailable."},
	}

	for _, tt := range tests {
		adapter, _ := newStripeTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		})

		_, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{AmountMinor: 100, Currency: "EUR"})
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		pe := AsPaymentError(err, ErrCodeCreationFailed)
		if pe.Retryable != tt.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tt.status, pe.Retryable, tt.retryable)
		}
		if pe.Message != tt.message {
			t.Fatalf("status %d: message = %q, want %q", tt.status, pe.Message, tt.message)
		}
	}
}

func TestStripeUnreachableGatewayIsRetryable(t *testing.T) {
	adapter := NewStripeAdapter(StripeConfig{
		SecretKey: "sk_test_123",
		BaseURL:   "http://127.0.0.1:1",
	}, time.Second)

	_, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{AmountMinor: 100, Currency: "EUR"})
	if err == nil {
		t.Fatalf("expected error for unreachable gateway")
	}
	if pe := AsPaymentError(err, ErrCodeCreationFailed); !pe.Retryable {
		t.Fatalf("expected unreachable gateway error to be retryable, got %+v", pe)
	}
}

func TestStripeVerifyWebhook(t *testing.T) {
	adapter := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"}, time.Second)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded","metadata":{"order_id":"ORD-9"}}}}`)
	header := stripeSign(t, payload, "whsec_test", time.Now())

	event, err := adapter.VerifyWebhook(map[string]string{"Stripe-Signature": header}, payload)
	if err != nil {
		t.Fatalf("VerifyWebhook returned error: %v", err)
	}
	if event.EventID != "evt_1" || event.TransactionID != "pi_1" || event.OrderID != "ORD-9" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.NativeStatus != "succeeded" {
		t.Fatalf("unexpected native status %q", event.NativeStatus)
	}

	if _, err := adapter.VerifyWebhook(map[string]string{"Stripe-Signature": "t=1,v1=00"}, payload); err == nil {
		t.Fatalf("expected invalid signature to be rejected")
	}
}

func TestStripeVerifyWebhook_EventTypeOverridesStatus(t *testing.T) {
	adapter := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"}, time.Second)

	tests := []struct {
		eventType string
		want      string
	}{
		{"payment_intent.payment_failed", "failed"},
		{"charge.refunded", "refunded"},
		{"charge.dispute.created", "disputed"},
	}

	for _, tt := range tests {
		payload := []byte(`{"id":"evt_x","type":"` + tt.eventType + `","data":{"object":{"id":"pi_1","status":"succeeded","metadata":{}}}}`)
		header := stripeSign(t, payload, "whsec_test", time.Now())

		event, err := adapter.VerifyWebhook(map[string]string{"stripe-signature": header}, payload)
		if err != nil {
			t.Fatalf("%s: VerifyWebhook returned error: %v", tt.eventType, err)
		}
		if event.NativeStatus != tt.want {
			t.Fatalf("%s: native status = %q, want %q", tt.eventType, event.NativeStatus, tt.want)
		}
	}
}
