package payment

import (
	"strings"

	"github.com/payflowhq/payflow/app/models"
)

// TransactionStatus is the gateway-agnostic status model every native
// vocabulary is normalized into.
type TransactionStatus string

const (
	StatusPending           TransactionStatus = "pending"
	StatusProcessing        TransactionStatus = "processing"
	StatusCompleted         TransactionStatus = "completed"
	StatusFailed            TransactionStatus = "failed"
	StatusCancelled         TransactionStatus = "cancelled"
	StatusRefunded          TransactionStatus = "refunded"
	StatusPartiallyRefunded TransactionStatus = "partially_refunded"
	StatusDisputed          TransactionStatus = "disputed"
)

// Rank orders statuses by confidence. Payment updates only ever move an
// order to a strictly higher rank, which enforces the lifecycle invariant:
// completed can never fall back to pending/processing/failed, and the refund
// family requires a prior completed.
func (s TransactionStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusFailed, StatusCancelled:
		return 2
	case StatusCompleted:
		return 3
	case StatusDisputed, StatusPartiallyRefunded:
		return 4
	case StatusRefunded:
		return 5
	default:
		return 0
	}
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusCancelled, StatusRefunded, StatusPartiallyRefunded, StatusDisputed:
		return true
	default:
		return false
	}
}

var stripeStatusMap = map[string]TransactionStatus{
	"requires_payment_method": StatusPending,
	"requires_confirmation":   StatusPending,
	"requires_action":         StatusPending,
	"processing":              StatusProcessing,
	"requires_capture":        StatusProcessing,
	"succeeded":               StatusCompleted,
	"canceled":                StatusCancelled,
	"failed":                  StatusFailed,
	"refunded":                StatusRefunded,
	"partially_refunded":      StatusPartiallyRefunded,
	"disputed":                StatusDisputed,
}

var paypalStatusMap = map[string]TransactionStatus{
	"created":               StatusPending,
	"saved":                 StatusPending,
	"payer_action_required": StatusPending,
	"approved":              StatusProcessing,
	"pending":               StatusProcessing,
	"completed":             StatusCompleted,
	"declined":              StatusFailed,
	"voided":                StatusCancelled,
	"refunded":              StatusRefunded,
	"partially_refunded":    StatusPartiallyRefunded,
	"reversed":              StatusDisputed,
}

var bankTransferStatusMap = map[string]TransactionStatus{
	"pending":   StatusPending,
	"received":  StatusProcessing,
	"settled":   StatusCompleted,
	"paid":      StatusCompleted,
	"failed":    StatusFailed,
	"cancelled": StatusCancelled,
	"refunded":  StatusRefunded,
}

// NormalizeStatus maps a gateway-native status string to the standard model.
// Unknown native statuses deliberately map to pending: treating an
// unrecognized state as anything stronger risks marking unpaid orders paid.
func NormalizeStatus(gateway Gateway, native string) TransactionStatus {
	key := strings.ToLower(strings.TrimSpace(native))

	var table map[string]TransactionStatus
	switch gateway {
	case GatewayStripe:
		table = stripeStatusMap
	case GatewayPayPal:
		table = paypalStatusMap
	case GatewayBankTransfer:
		table = bankTransferStatusMap
	default:
		return StatusPending
	}

	if s, ok := table[key]; ok {
		return s
	}
	return StatusPending
}

// OrderStatusForTransaction derives the business-facing order status from a
// transaction status. The second return is false when the order status must
// not change (disputed transactions are flagged for manual review only).
func OrderStatusForTransaction(s TransactionStatus) (string, bool) {
	switch s {
	case StatusPending:
		return models.OrderStatusAwaitingPayment, true
	case StatusProcessing:
		return models.OrderStatusProcessing, true
	case StatusCompleted:
		return models.OrderStatusPaid, true
	case StatusFailed:
		return models.OrderStatusPaymentFailed, true
	case StatusRefunded:
		return models.OrderStatusRefunded, true
	case StatusPartiallyRefunded:
		return models.OrderStatusPartiallyRefunded, true
	case StatusCancelled:
		return models.OrderStatusCancelled, true
	default:
		return "", false
	}
}
