package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"
)

// stripeSignatureTolerance bounds how stale a signed webhook timestamp may
// be before we reject it as a replay.
const stripeSignatureTolerance = 5 * time.Minute

// VerifyStripeSignature checks a Stripe-style signature header of the form
// "t=<unix>,v1=<hex>[,v1=<hex>...]" against HMAC-SHA256 of "<t>.<body>".
func VerifyStripeSignature(payload []byte, signatureHeader, webhookSecret string, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	signed := append([]byte(timestamp+"."), payload...)
	for _, cand := range candidates {
		decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(cand)))
		if err != nil {
			continue
		}
		if verifyHMAC(signed, decoded, []byte(secret), sha256.New) {
			return true
		}
	}
	return false
}

// VerifyHMACSignature checks a plain hex-encoded HMAC-SHA256 of the raw
// body. Used by the wallet and bank-transfer webhook contracts.
func VerifyHMACSignature(payload []byte, signatureHex, secret string) bool {
	sig := strings.TrimSpace(signatureHex)
	sec := strings.TrimSpace(secret)
	if sig == "" || sec == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	return verifyHMAC(payload, decoded, []byte(sec), sha256.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
