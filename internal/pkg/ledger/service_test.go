package ledger

import (
	"context"
	"testing"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/payment"
)

func seedOrder(t *testing.T, svc *Service, id string) *models.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ID:            id,
		CustomerID:    "cust-1",
		CustomerEmail: "buyer@example.com",
		Currency:      "EUR",
		Items: []models.OrderItem{
			{SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPriceMinor: 1500},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	return order
}

func TestCreateOrderDefaults(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	order := seedOrder(t, svc, "")

	if order.ID == "" {
		t.Fatalf("expected generated order id")
	}
	if order.Status != models.OrderStatusAwaitingPayment {
		t.Fatalf("new order status = %q, want awaiting_payment", order.Status)
	}
	if order.TotalMinorUnits != 3000 {
		t.Fatalf("total = %d, want 3000", order.TotalMinorUnits)
	}
	if order.PaymentCorrelationID == "" {
		t.Fatalf("expected payment correlation id")
	}
}

func TestGetOrder_NotFoundIsFatal(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	_, err := svc.GetOrder(context.Background(), "ORD-MISSING")
	if err == nil {
		t.Fatalf("expected error for missing order")
	}
	pe := payment.AsPaymentError(err, payment.ErrCodeOrderNotFound)
	if pe.Code != payment.ErrCodeOrderNotFound || !pe.Fatal {
		t.Fatalf("expected fatal ORDER_NOT_FOUND, got %+v", pe)
	}
}

func TestUpdateOrderPayment_PaidTransition(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")

	order, becamePaid, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusCompleted,
		AmountMinor:   3000,
	})
	if err != nil {
		t.Fatalf("UpdateOrderPayment returned error: %v", err)
	}
	if !becamePaid {
		t.Fatalf("expected paid transition")
	}
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("order status = %q, want paid", order.Status)
	}
	if order.PaymentStatus != string(payment.StatusCompleted) {
		t.Fatalf("payment status = %q, want completed", order.PaymentStatus)
	}

	// Replaying the identical update is a no-op and must not re-report the
	// transition.
	order, becamePaid, err = svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("replayed update returned error: %v", err)
	}
	if becamePaid {
		t.Fatalf("replayed completed update must not report a paid transition")
	}
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("order status changed on replay: %q", order.Status)
	}
}

func TestUpdateOrderPayment_LateWebhookCannotRegress(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")

	mustUpdate(t, svc, "ORD-1", "pi_1", payment.StatusCompleted)

	order, _, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("late webhook returned error: %v", err)
	}
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("late processing webhook regressed order to %q", order.Status)
	}
	if order.PaymentStatus != string(payment.StatusCompleted) {
		t.Fatalf("late processing webhook regressed payment status to %q", order.PaymentStatus)
	}
}

func TestUpdateOrderPayment_RefundAdvancesCompleted(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")

	mustUpdate(t, svc, "ORD-1", "pi_1", payment.StatusCompleted)
	order, _, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusRefunded,
	})
	if err != nil {
		t.Fatalf("refund update returned error: %v", err)
	}
	if order.Status != models.OrderStatusRefunded {
		t.Fatalf("order status = %q, want refunded", order.Status)
	}
}

func TestUpdateOrderPayment_RetryWithNewTransaction(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")

	mustUpdate(t, svc, "ORD-1", "pi_1", payment.StatusFailed)

	// A fresh attempt with a different transaction may take over.
	order, becamePaid, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_2",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("retry update returned error: %v", err)
	}
	if !becamePaid || order.Status != models.OrderStatusPaid {
		t.Fatalf("expected retry transaction to complete the order, got status %q", order.Status)
	}
	if order.PaymentTransactionID != "pi_2" {
		t.Fatalf("payment snapshot still points at %q", order.PaymentTransactionID)
	}

	// But once completed, a different transaction cannot downgrade it.
	order, _, err = svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_3",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("post-completion update returned error: %v", err)
	}
	if order.PaymentTransactionID != "pi_2" || order.Status != models.OrderStatusPaid {
		t.Fatalf("completed order was overridden by weaker transaction: %+v", order)
	}
}

func TestUpdateOrderPayment_DisputedFlagsForReview(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")

	mustUpdate(t, svc, "ORD-1", "pi_1", payment.StatusCompleted)
	order, becamePaid, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusDisputed,
	})
	if err != nil {
		t.Fatalf("disputed update returned error: %v", err)
	}
	if becamePaid {
		t.Fatalf("dispute must not report a paid transition")
	}
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("dispute changed order status to %q, want paid", order.Status)
	}
	if order.PaymentStatus != string(payment.StatusDisputed) {
		t.Fatalf("payment snapshot status = %q, want disputed", order.PaymentStatus)
	}
	if len(order.Notes) != 1 {
		t.Fatalf("expected one review note, got %d", len(order.Notes))
	}
}

func TestUpdateOrderPayment_RefundRequiresCompletedPayment(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")

	// A refund webhook for an order that never completed is discarded.
	order, becamePaid, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusRefunded,
	})
	if err != nil {
		t.Fatalf("refund update returned error: %v", err)
	}
	if becamePaid || order.Status != models.OrderStatusAwaitingPayment || order.PaymentStatus != "" {
		t.Fatalf("refund without completed payment mutated the order: %+v", order)
	}

	// Same for a dispute against a payment that is still processing.
	mustUpdate(t, svc, "ORD-1", "pi_1", payment.StatusProcessing)
	order, _, err = svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusDisputed,
	})
	if err != nil {
		t.Fatalf("disputed update returned error: %v", err)
	}
	if order.PaymentStatus != string(payment.StatusProcessing) {
		t.Fatalf("dispute applied to a never-completed payment: %q", order.PaymentStatus)
	}
	if len(order.Notes) != 0 {
		t.Fatalf("discarded dispute must not append a note, got %d", len(order.Notes))
	}
}

// racingRepo makes the first CAS write lose: a competing writer lands a
// weaker snapshot and bumps the version before the delegate sees it.
type racingRepo struct {
	Repository
	raced bool
}

func (r *racingRepo) UpdateOrderCAS(id string, version uint, updates map[string]interface{}) (bool, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.Repository.UpdateOrderCAS(id, version, map[string]interface{}{
			"payment_transaction_id": "pi_rival",
			"payment_gateway":        string(payment.GatewayStripe),
			"payment_status":         string(payment.StatusProcessing),
			"status":                 models.OrderStatusProcessing,
			"version":                version + 1,
		}); err != nil {
			return false, err
		}
	}
	return r.Repository.UpdateOrderCAS(id, version, updates)
}

func TestUpdateOrderPayment_LostCASRoundRetriesAndStrongerStatusWins(t *testing.T) {
	repo := &racingRepo{Repository: NewMemoryRepository()}
	svc := NewService(repo)
	seedOrder(t, svc, "ORD-1")

	order, becamePaid, err := svc.UpdateOrderPayment(context.Background(), "ORD-1", PaymentUpdate{
		TransactionID: "pi_1",
		Gateway:       payment.GatewayStripe,
		Status:        payment.StatusCompleted,
		AmountMinor:   3000,
	})
	if err != nil {
		t.Fatalf("UpdateOrderPayment returned error: %v", err)
	}
	if !repo.raced {
		t.Fatalf("expected the first CAS round to be contended")
	}
	if !becamePaid || order.Status != models.OrderStatusPaid {
		t.Fatalf("completed update lost to a weaker concurrent writer: %+v", order)
	}
	if order.PaymentTransactionID != "pi_1" {
		t.Fatalf("payment snapshot points at %q, want pi_1", order.PaymentTransactionID)
	}
}

func mustUpdate(t *testing.T, svc *Service, orderID, txnID string, status payment.TransactionStatus) {
	t.Helper()
	if _, _, err := svc.UpdateOrderPayment(context.Background(), orderID, PaymentUpdate{
		TransactionID: txnID,
		Gateway:       payment.GatewayStripe,
		Status:        status,
	}); err != nil {
		t.Fatalf("UpdateOrderPayment(%s, %s) returned error: %v", txnID, status, err)
	}
}

func TestGenerateInvoiceIsIdempotent(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	seedOrder(t, svc, "ORD-1")
	mustUpdate(t, svc, "ORD-1", "pi_1", payment.StatusCompleted)

	order, err := svc.GetOrder(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("GetOrder returned error: %v", err)
	}

	created, invoice, err := svc.GenerateInvoice(context.Background(), order)
	if err != nil {
		t.Fatalf("GenerateInvoice returned error: %v", err)
	}
	if !created {
		t.Fatalf("first invoice generation must create")
	}
	if invoice.Number != "INV-ORD-1" {
		t.Fatalf("unexpected invoice number %q", invoice.Number)
	}

	created, again, err := svc.GenerateInvoice(context.Background(), order)
	if err != nil {
		t.Fatalf("second GenerateInvoice returned error: %v", err)
	}
	if created {
		t.Fatalf("second invoice generation must not create")
	}
	if again.ID != invoice.ID {
		t.Fatalf("second generation returned a different invoice")
	}
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	created, _, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Gateway:         payment.GatewayStripe,
		ProviderEventID: "evt_1",
		EventType:       "payment_intent.succeeded",
		PayloadJSON:     "{}",
		SignatureValid:  true,
	})
	if err != nil || !created {
		t.Fatalf("first event: created=%v err=%v", created, err)
	}

	created, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Gateway:         payment.GatewayStripe,
		ProviderEventID: "evt_1",
		EventType:       "payment_intent.succeeded",
		PayloadJSON:     "{}",
		SignatureValid:  true,
	})
	if err != nil {
		t.Fatalf("duplicate event returned error: %v", err)
	}
	if created {
		t.Fatalf("duplicate event must not be created again")
	}
}

func TestRecordWebhookEvent_FallsBackToPayloadHash(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	created, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Gateway:     payment.GatewayBankTransfer,
		PayloadJSON: `{"order_id":"ORD-1"}`,
	})
	if err != nil || !created {
		t.Fatalf("event without id: created=%v err=%v", created, err)
	}
	if stored.ProviderEventID == "" {
		t.Fatalf("expected synthesized event id")
	}

	created, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Gateway:     payment.GatewayBankTransfer,
		PayloadJSON: `{"order_id":"ORD-1"}`,
	})
	if err != nil {
		t.Fatalf("replayed payload returned error: %v", err)
	}
	if created {
		t.Fatalf("identical payload must deduplicate via its hash")
	}
}

func TestGatewayCustomerRoundTrip(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	gc, err := svc.GetGatewayCustomer(context.Background(), payment.GatewayStripe, "cust-1")
	if err != nil || gc != nil {
		t.Fatalf("unknown customer should be (nil, nil), got (%v, %v)", gc, err)
	}

	if err := svc.LinkGatewayCustomer(context.Background(), payment.GatewayStripe, "cust-1", "cus_abc", "buyer@example.com"); err != nil {
		t.Fatalf("LinkGatewayCustomer returned error: %v", err)
	}

	gc, err = svc.GetGatewayCustomer(context.Background(), payment.GatewayStripe, "cust-1")
	if err != nil {
		t.Fatalf("GetGatewayCustomer returned error: %v", err)
	}
	if gc == nil || gc.ProviderCustomerID != "cus_abc" {
		t.Fatalf("unexpected gateway customer %+v", gc)
	}
}
