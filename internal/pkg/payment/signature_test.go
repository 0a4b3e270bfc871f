package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func stripeSign(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Now()

	header := stripeSign(t, payload, secret, now)
	if !VerifyStripeSignature(payload, header, secret, now) {
		t.Fatalf("expected fresh signature to validate")
	}
	if VerifyStripeSignature([]byte(`{"id":"evt_2"}`), header, secret, now) {
		t.Fatalf("expected signature over different payload to fail")
	}
	if VerifyStripeSignature(payload, header, "whsec_other", now) {
		t.Fatalf("expected wrong secret to fail")
	}
}

func TestVerifyStripeSignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Now()

	stale := stripeSign(t, payload, secret, now.Add(-10*time.Minute))
	if VerifyStripeSignature(payload, stale, secret, now) {
		t.Fatalf("expected signature outside tolerance to fail")
	}

	future := stripeSign(t, payload, secret, now.Add(10*time.Minute))
	if VerifyStripeSignature(payload, future, secret, now) {
		t.Fatalf("expected far-future timestamp to fail")
	}
}

func TestVerifyStripeSignature_MalformedHeader(t *testing.T) {
	payload := []byte(`{}`)
	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
		if VerifyStripeSignature(payload, header, "whsec_test", time.Now()) {
			t.Fatalf("expected malformed header %q to fail", header)
		}
	}
}

func TestVerifyHMACSignature(t *testing.T) {
	payload := []byte(`{"event_id":"e1"}`)
	secret := "shared-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !VerifyHMACSignature(payload, valid, secret) {
		t.Fatalf("expected valid signature to pass")
	}
	if VerifyHMACSignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifyHMACSignature(payload, valid, "") {
		t.Fatalf("expected empty secret to fail")
	}
	if VerifyHMACSignature(payload, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
}
