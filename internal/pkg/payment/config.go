package payment

import (
	"strings"
	"time"

	"github.com/payflowhq/payflow/internal/pkg/env"
)

const (
	defaultStripeBaseURL = "https://api.stripe.com"
	defaultPayPalBaseURL = "https://api-m.paypal.com"

	// Outbound gateway calls must never hang indefinitely.
	defaultGatewayTimeout = 15 * time.Second
)

// EEA countries where strong customer authentication applies.
var defaultRegulatedCountries = []string{
	"AT", "BE", "BG", "CY", "CZ", "DE", "DK", "EE", "ES", "FI", "FR", "GR",
	"HR", "HU", "IE", "IT", "LT", "LU", "LV", "MT", "NL", "PL", "PT", "RO",
	"SE", "SI", "SK",
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

type PayPalConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	BaseURL       string
}

// BankTransferConfig holds the static remittance details handed to buyers.
type BankTransferConfig struct {
	AccountName   string
	IBAN          string
	BIC           string
	BankName      string
	WebhookSecret string
}

// Config is injected into the orchestrator and adapter constructors at
// startup; credentials are never read from the environment at import time.
type Config struct {
	Stripe             StripeConfig
	PayPal             PayPalConfig
	BankTransfer       BankTransferConfig
	RegulatedCountries []string
	ReturnURL          string
	GatewayTimeout     time.Duration
}

// ConfigFromEnv builds the payment configuration from the loaded env file.
func ConfigFromEnv() Config {
	regulated := defaultRegulatedCountries
	if raw := strings.TrimSpace(env.GetEnv("SCA_REGULATED_COUNTRIES", "")); raw != "" {
		regulated = nil
		for _, c := range strings.Split(raw, ",") {
			if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
				regulated = append(regulated, c)
			}
		}
	}

	return Config{
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
			BaseURL:       strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeBaseURL)),
		},
		PayPal: PayPalConfig{
			ClientID:      strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
			ClientSecret:  strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
			WebhookSecret: strings.TrimSpace(env.GetEnv("PAYPAL_WEBHOOK_SECRET", "")),
			BaseURL:       strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalBaseURL)),
		},
		BankTransfer: BankTransferConfig{
			AccountName:   strings.TrimSpace(env.GetEnv("BANK_ACCOUNT_NAME", "")),
			IBAN:          strings.TrimSpace(env.GetEnv("BANK_IBAN", "")),
			BIC:           strings.TrimSpace(env.GetEnv("BANK_BIC", "")),
			BankName:      strings.TrimSpace(env.GetEnv("BANK_NAME", "")),
			WebhookSecret: strings.TrimSpace(env.GetEnv("BANK_WEBHOOK_SECRET", "")),
		},
		RegulatedCountries: regulated,
		ReturnURL:          strings.TrimSpace(env.GetEnv("PAYMENT_RETURN_URL", "")),
		GatewayTimeout:     defaultGatewayTimeout,
	}
}
