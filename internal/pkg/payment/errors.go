package payment

import "fmt"

type ErrorCode string

const (
	ErrCodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	ErrCodeUnknownGateway     ErrorCode = "UNKNOWN_GATEWAY"
	ErrCodeCreationFailed     ErrorCode = "PAYMENT_CREATION_FAILED"
	ErrCodeConfirmationFailed ErrorCode = "PAYMENT_CONFIRMATION_FAILED"
	ErrCodeOrderNotFound      ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeMethodAttachFailed ErrorCode = "METHOD_ATTACH_FAILED"
	ErrCodeMethodDetachFailed ErrorCode = "METHOD_DETACH_FAILED"
	ErrCodeInvalidSignature   ErrorCode = "WEBHOOK_INVALID_SIGNATURE"
)

// Error is the structured failure every payment operation returns. Message
// is always safe to show an end user; Detail carries the gateway-specific
// diagnosis and is only rendered in non-production configuration.
type Error struct {
	Code      ErrorCode
	Message   string
	Detail    string
	Retryable bool
	// Fatal marks ledger inconsistencies: the flow must abort and alert,
	// because order data the gateway already charged against is missing.
	Fatal bool
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError rejects bad input before any network call.
func NewValidationError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewGatewayError wraps a definitive gateway rejection (declined card,
// expired instrument...).
func NewGatewayError(code ErrorCode, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail}
}

// NewUnavailableError wraps timeouts, rate limits and gateway-side outages.
// Callers may retry the same logical request.
func NewUnavailableError(code ErrorCode, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail, Retryable: true}
}

// NewLedgerError marks a fatal ledger inconsistency.
func NewLedgerError(code ErrorCode, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail, Fatal: true}
}

// AsPaymentError coerces any error into a *Error with the given fallback
// code, keeping typed errors as they are.
func AsPaymentError(err error, fallback ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return &Error{Code: fallback, Message: "Payment could not be processed.", Detail: err.Error()}
}
