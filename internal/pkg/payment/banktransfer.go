package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// BankTransferAdapter models the offline gateway: no network calls, a
// deterministic remittance reference, and status changes driven entirely by
// back-office webhook events.
type BankTransferAdapter struct {
	cfg BankTransferConfig
}

func NewBankTransferAdapter(cfg BankTransferConfig) *BankTransferAdapter {
	return &BankTransferAdapter{cfg: cfg}
}

func (a *BankTransferAdapter) Gateway() Gateway { return GatewayBankTransfer }

// RemittanceDetails are the static account details shown to the buyer.
type RemittanceDetails struct {
	AccountName string `json:"account_name"`
	IBAN        string `json:"iban"`
	BIC         string `json:"bic"`
	BankName    string `json:"bank_name"`
	Reference   string `json:"reference"`
}

// TransferReference derives the payment reference from the order id. The
// same order always yields the same reference, so a retried create never
// issues a second reference.
func TransferReference(orderID string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderID))
	sum := crc32.ChecksumIEEE([]byte(normalized))
	return fmt.Sprintf("PF-%s-%04X", normalized, sum&0xFFFF)
}

// Remittance returns the configured account details plus the order's
// reference.
func (a *BankTransferAdapter) Remittance(orderID string) RemittanceDetails {
	return RemittanceDetails{
		AccountName: a.cfg.AccountName,
		IBAN:        a.cfg.IBAN,
		BIC:         a.cfg.BIC,
		BankName:    a.cfg.BankName,
		Reference:   TransferReference(orderID),
	}
}

func (a *BankTransferAdapter) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentHandle, error) {
	_ = ctx // no outbound call
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, NewValidationError(ErrCodeCreationFailed, "An order is required for bank transfer payments.")
	}
	ref := TransferReference(req.OrderID)
	return &IntentHandle{
		IntentID:     ref,
		NativeStatus: "pending",
		Reference:    ref,
	}, nil
}

// ConfirmIntent never advances a bank transfer; only a back-office event
// marks it paid.
func (a *BankTransferAdapter) ConfirmIntent(ctx context.Context, intentID, methodRef, returnURL string) (*ConfirmOutcome, error) {
	_ = ctx
	_ = methodRef
	_ = returnURL
	return &ConfirmOutcome{IntentID: intentID, NativeStatus: "pending"}, nil
}

func (a *BankTransferAdapter) CaptureOrder(ctx context.Context, intentID string) (*ConfirmOutcome, error) {
	return nil, NewValidationError(ErrCodeConfirmationFailed, "Bank transfers cannot be captured.")
}

func (a *BankTransferAdapter) ListMethods(ctx context.Context, providerCustomerID string) ([]Method, error) {
	return nil, nil
}

func (a *BankTransferAdapter) AttachMethod(ctx context.Context, providerCustomerID, methodRef string, asDefault bool) error {
	return NewValidationError(ErrCodeMethodAttachFailed, "Bank transfers have no saved payment methods.")
}

func (a *BankTransferAdapter) DetachMethod(ctx context.Context, methodRef string) error {
	return NewValidationError(ErrCodeMethodDetachFailed, "Bank transfers have no saved payment methods.")
}

// VerifyWebhook authenticates back-office notifications ("transfer
// received", "transfer settled") signed with the shared secret.
func (a *BankTransferAdapter) VerifyWebhook(headers map[string]string, rawBody []byte) (*VerifiedEvent, error) {
	sig := headerValue(headers, "X-Payflow-Signature")
	if !VerifyHMACSignature(rawBody, sig, a.cfg.WebhookSecret) {
		return nil, NewGatewayError(ErrCodeInvalidSignature, "Webhook signature verification failed.", "bank transfer signature mismatch")
	}

	var event struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		OrderID   string `json:"order_id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid bank transfer webhook payload: %w", err)
	}
	if event.OrderID == "" {
		return nil, errors.New("bank transfer webhook payload missing order id")
	}

	txnID := event.Reference
	if txnID == "" {
		txnID = TransferReference(event.OrderID)
	}

	return &VerifiedEvent{
		Gateway:       GatewayBankTransfer,
		EventID:       event.EventID,
		EventType:     event.EventType,
		TransactionID: txnID,
		OrderID:       event.OrderID,
		NativeStatus:  event.Status,
		RawBody:       rawBody,
	}, nil
}
