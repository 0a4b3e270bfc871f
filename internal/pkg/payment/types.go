package payment

import (
	"context"
	"errors"
)

// Gateway identifies a supported payment provider. The set is closed:
// dispatch happens over typed adapter fields, not a runtime registry, so a
// new gateway is a compile-time change.
type Gateway string

const (
	GatewayStripe       Gateway = "stripe"
	GatewayPayPal       Gateway = "paypal"
	GatewayBankTransfer Gateway = "banktransfer"
)

// ParseGateway validates a caller-supplied gateway identifier.
func ParseGateway(s string) (Gateway, error) {
	switch Gateway(s) {
	case GatewayStripe, GatewayPayPal, GatewayBankTransfer:
		return Gateway(s), nil
	default:
		return "", errors.New("unknown gateway: " + s)
	}
}

// Customer carries the buyer identity needed by the gateways. ProviderIDs
// maps a gateway to the customer id that gateway assigned (empty until the
// customer first saves a payment method there).
type Customer struct {
	ID             string
	Email          string
	Name           string
	BillingCountry string
	ProviderIDs    map[Gateway]string
}

// Transaction is the gateway-facing unit of work returned to callers.
type Transaction struct {
	ID              string            `json:"id"`
	Gateway         Gateway           `json:"gateway"`
	AmountMinor     int64             `json:"amount_minor_units"`
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	RequiresAction  bool              `json:"requires_action"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	ApprovalURL     string            `json:"approval_url,omitempty"`
	Reference       string            `json:"reference,omitempty"`
	OrderID         string            `json:"order_id"`
}

// IntentHandle is what an adapter returns from CreateIntent.
type IntentHandle struct {
	IntentID       string
	NativeStatus   string
	ClientSecret   string
	ApprovalURL    string
	Reference      string
	RequiresAction bool
}

// ConfirmOutcome is the result of a confirm or capture call.
type ConfirmOutcome struct {
	IntentID       string
	NativeStatus   string
	RequiresAction bool
	ActionURL      string
}

// Method is a saved payment instrument. Display fields only; the PAN never
// leaves the gateway.
type Method struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	ExpMonth  int    `json:"exp_month"`
	ExpYear   int    `json:"exp_year"`
	IsDefault bool   `json:"is_default"`
}

// VerifiedEvent is a webhook notification whose signature checked out,
// reduced to the fields the orchestration layer acts on.
type VerifiedEvent struct {
	Gateway       Gateway
	EventID       string
	EventType     string
	TransactionID string
	OrderID       string
	NativeStatus  string
	RawBody       []byte
}

// Adapter is the uniform operation set every gateway implementation
// provides. Implementations own their provider's wire format and error
// vocabulary; everything they return is provider-neutral.
type Adapter interface {
	Gateway() Gateway
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentHandle, error)
	ConfirmIntent(ctx context.Context, intentID, methodRef, returnURL string) (*ConfirmOutcome, error)
	CaptureOrder(ctx context.Context, intentID string) (*ConfirmOutcome, error)
	ListMethods(ctx context.Context, providerCustomerID string) ([]Method, error)
	AttachMethod(ctx context.Context, providerCustomerID, methodRef string, asDefault bool) error
	DetachMethod(ctx context.Context, methodRef string) error
	VerifyWebhook(headers map[string]string, rawBody []byte) (*VerifiedEvent, error)
}

// CreateIntentRequest is the adapter-level create input.
type CreateIntentRequest struct {
	AmountMinor        int64
	Currency           string
	ProviderCustomerID string
	Description        string
	OrderID            string
	IdempotencyKey     string
	Metadata           map[string]string
}
