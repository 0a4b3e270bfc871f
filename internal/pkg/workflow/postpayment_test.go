package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/payment"
)

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) SendPaymentConfirmation(ctx context.Context, order *models.Order) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, order.ID)
	return nil
}

type recordingInventory struct {
	adjustments map[string]int
}

func (a *recordingInventory) Adjust(ctx context.Context, sku string, delta int) error {
	if a.adjustments == nil {
		a.adjustments = map[string]int{}
	}
	a.adjustments[sku] += delta
	return nil
}

func paidOrderService(t *testing.T) *ledger.Service {
	t.Helper()
	svc := ledger.NewService(ledger.NewMemoryRepository())
	if _, err := svc.CreateOrder(context.Background(), ledger.CreateOrderInput{
		ID:            "ORD-1",
		CustomerID:    "cust-1",
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
		Currency:      "EUR",
		Items: []models.OrderItem{
			{SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPriceMinor: 1500},
			{SKU: "SKU-2", Name: "Gadget", Quantity: 1, UnitPriceMinor: 500},
		},
	}); err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if _, _, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", ledger.PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusCompleted,
		AmountMinor:   3500,
	}); err != nil {
		t.Fatalf("UpdateOrderPayment returned error: %v", err)
	}
	return svc
}

func TestPostPaymentRunsAllSteps(t *testing.T) {
	svc := paidOrderService(t)
	notifier := &recordingNotifier{}
	inventory := &recordingInventory{}

	report := NewPostPayment(svc, notifier, inventory).Run(context.Background(), "ORD-1")
	if report.Skipped {
		t.Fatalf("paid order must not be skipped")
	}
	if len(report.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(report.Steps))
	}
	for _, step := range report.Steps {
		if step.Err != nil {
			t.Fatalf("step %s failed: %v", step.Step, step.Err)
		}
	}
	if !report.InvoiceCreated {
		t.Fatalf("expected invoice to be created")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "ORD-1" {
		t.Fatalf("expected one confirmation for ORD-1, got %v", notifier.sent)
	}
	if inventory.adjustments["SKU-1"] != -2 || inventory.adjustments["SKU-2"] != -1 {
		t.Fatalf("unexpected inventory adjustments %v", inventory.adjustments)
	}
}

func TestPostPaymentInvoiceIsCreatedOnce(t *testing.T) {
	svc := paidOrderService(t)
	wf := NewPostPayment(svc, &recordingNotifier{}, &recordingInventory{})

	first := wf.Run(context.Background(), "ORD-1")
	if !first.InvoiceCreated {
		t.Fatalf("first run must create the invoice")
	}

	second := wf.Run(context.Background(), "ORD-1")
	if second.InvoiceCreated {
		t.Fatalf("second run must not create a second invoice")
	}
	for _, step := range second.Steps {
		if step.Step == "invoice_generation" && step.Err != nil {
			t.Fatalf("repeated invoice generation must not fail: %v", step.Err)
		}
	}
}

func TestPostPaymentSkipsUnpaidOrder(t *testing.T) {
	svc := ledger.NewService(ledger.NewMemoryRepository())
	if _, err := svc.CreateOrder(context.Background(), ledger.CreateOrderInput{
		ID:         "ORD-2",
		CustomerID: "cust-1",
		Currency:   "EUR",
	}); err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	notifier := &recordingNotifier{}
	report := NewPostPayment(svc, notifier, &recordingInventory{}).Run(context.Background(), "ORD-2")
	if !report.Skipped {
		t.Fatalf("unpaid order must be skipped")
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("no notification may be sent for an unpaid order")
	}
}

func TestPostPaymentSkipsMissingOrder(t *testing.T) {
	svc := ledger.NewService(ledger.NewMemoryRepository())
	report := NewPostPayment(svc, &recordingNotifier{}, &recordingInventory{}).Run(context.Background(), "ORD-NOPE")
	if !report.Skipped {
		t.Fatalf("missing order must be skipped")
	}
}

func TestPostPaymentStepFailureDoesNotAbortOthers(t *testing.T) {
	svc := paidOrderService(t)
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	inventory := &recordingInventory{}

	report := NewPostPayment(svc, notifier, inventory).Run(context.Background(), "ORD-1")
	if report.Skipped {
		t.Fatalf("run must not be skipped")
	}
	if report.Steps[0].Err == nil {
		t.Fatalf("expected notification step to fail")
	}
	if !report.InvoiceCreated {
		t.Fatalf("invoice must still be generated after a notification failure")
	}
	if inventory.adjustments["SKU-1"] != -2 {
		t.Fatalf("inventory must still be adjusted after a notification failure")
	}
}
