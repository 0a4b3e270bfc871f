package payment

import (
	"testing"

	"github.com/payflowhq/payflow/app/models"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		gateway Gateway
		native  string
		want    TransactionStatus
	}{
		{GatewayStripe, "succeeded", StatusCompleted},
		{GatewayStripe, "requires_action", StatusPending},
		{GatewayStripe, "requires_capture", StatusProcessing},
		{GatewayStripe, "canceled", StatusCancelled},
		{GatewayStripe, "Succeeded", StatusCompleted},
		{GatewayPayPal, "COMPLETED", StatusCompleted},
		{GatewayPayPal, "created", StatusPending},
		{GatewayPayPal, "declined", StatusFailed},
		{GatewayPayPal, "reversed", StatusDisputed},
		{GatewayBankTransfer, "received", StatusProcessing},
		{GatewayBankTransfer, "settled", StatusCompleted},
		{GatewayBankTransfer, "paid", StatusCompleted},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.gateway, tt.native); got != tt.want {
			t.Fatalf("NormalizeStatus(%s, %q) = %q, want %q", tt.gateway, tt.native, got, tt.want)
		}
	}
}

func TestNormalizeStatus_UnknownNativeIsPending(t *testing.T) {
	for _, gw := range []Gateway{GatewayStripe, GatewayPayPal, GatewayBankTransfer} {
		if got := NormalizeStatus(gw, "some_future_status"); got != StatusPending {
			t.Fatalf("unknown native status on %s mapped to %q, want pending", gw, got)
		}
	}
}

func TestStatusRankOrdering(t *testing.T) {
	if StatusCompleted.Rank() <= StatusProcessing.Rank() {
		t.Fatalf("completed must outrank processing")
	}
	if StatusProcessing.Rank() <= StatusPending.Rank() {
		t.Fatalf("processing must outrank pending")
	}
	if StatusRefunded.Rank() <= StatusCompleted.Rank() {
		t.Fatalf("refunded must outrank completed")
	}
	if StatusDisputed.Rank() <= StatusCompleted.Rank() {
		t.Fatalf("disputed must outrank completed")
	}
	if StatusFailed.Rank() >= StatusCompleted.Rank() {
		t.Fatalf("failed must not outrank completed")
	}
}

func TestOrderStatusForTransaction(t *testing.T) {
	tests := []struct {
		in      TransactionStatus
		want    string
		changes bool
	}{
		{StatusPending, models.OrderStatusAwaitingPayment, true},
		{StatusProcessing, models.OrderStatusProcessing, true},
		{StatusCompleted, models.OrderStatusPaid, true},
		{StatusFailed, models.OrderStatusPaymentFailed, true},
		{StatusRefunded, models.OrderStatusRefunded, true},
		{StatusPartiallyRefunded, models.OrderStatusPartiallyRefunded, true},
		{StatusCancelled, models.OrderStatusCancelled, true},
		{StatusDisputed, "", false},
	}

	for _, tt := range tests {
		got, changes := OrderStatusForTransaction(tt.in)
		if got != tt.want || changes != tt.changes {
			t.Fatalf("OrderStatusForTransaction(%q) = (%q, %v), want (%q, %v)", tt.in, got, changes, tt.want, tt.changes)
		}
	}
}

func TestParseGateway(t *testing.T) {
	for _, valid := range []string{"stripe", "paypal", "banktransfer"} {
		if _, err := ParseGateway(valid); err != nil {
			t.Fatalf("ParseGateway(%q) returned error: %v", valid, err)
		}
	}
	if _, err := ParseGateway("bitcoin"); err == nil {
		t.Fatalf("expected unknown gateway to be rejected")
	}
}
