package workflow

import (
	"context"
	"fmt"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/logging"
	"github.com/payflowhq/payflow/internal/pkg/mail"
)

// Notifier sends the buyer-facing payment confirmation.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, order *models.Order) error
}

// InventoryAdjuster applies stock changes for sold line items. The real
// inventory system lives outside this service.
type InventoryAdjuster interface {
	Adjust(ctx context.Context, sku string, delta int) error
}

// StepResult records the outcome of one workflow step.
type StepResult struct {
	Step string
	Err  error
}

// Report summarizes one workflow run.
type Report struct {
	OrderID        string
	Skipped        bool
	InvoiceCreated bool
	Steps          []StepResult
}

// PostPayment runs the side effects owed after an order turns paid:
// confirmation notification, invoice generation, inventory adjustment.
// The payment is authoritative - a failing step is logged for manual
// remediation and never rolls the paid status back.
type PostPayment struct {
	ledger    *ledger.Service
	notifier  Notifier
	inventory InventoryAdjuster
	log       *logging.Redactor
}

func NewPostPayment(ledgerSvc *ledger.Service, notifier Notifier, inventory InventoryAdjuster) *PostPayment {
	if notifier == nil {
		notifier = &MailNotifier{}
	}
	if inventory == nil {
		inventory = &LogInventoryAdjuster{}
	}
	return &PostPayment{
		ledger:    ledgerSvc,
		notifier:  notifier,
		inventory: inventory,
		log:       logging.NewRedactor("PostPayment"),
	}
}

// Run executes all steps for the given order. It never returns an error;
// the report carries per-step outcomes for logging and tests.
func (w *PostPayment) Run(ctx context.Context, orderID string) *Report {
	report := &Report{OrderID: orderID}

	order, err := w.ledger.GetOrder(ctx, orderID)
	if err != nil {
		w.log.Error("order lookup failed, side effects skipped", map[string]interface{}{
			"order_id": orderID,
			"error":    err.Error(),
		})
		report.Skipped = true
		return report
	}
	if !order.IsPaid() {
		w.log.Warn("order is not paid, side effects skipped", map[string]interface{}{
			"order_id": orderID,
			"status":   order.Status,
		})
		report.Skipped = true
		return report
	}

	report.Steps = append(report.Steps, w.runStep("confirmation_notification", orderID, func() error {
		return w.notifier.SendPaymentConfirmation(ctx, order)
	}))

	report.Steps = append(report.Steps, w.runStep("invoice_generation", orderID, func() error {
		created, invoice, err := w.ledger.GenerateInvoice(ctx, order)
		if err != nil {
			return err
		}
		report.InvoiceCreated = created
		if created {
			w.log.Info("invoice generated", map[string]interface{}{
				"order_id":       orderID,
				"invoice_number": invoice.Number,
			})
		}
		return nil
	}))

	report.Steps = append(report.Steps, w.runStep("inventory_adjustment", orderID, func() error {
		var firstErr error
		for _, item := range order.Items {
			if err := w.inventory.Adjust(ctx, item.SKU, -item.Quantity); err != nil {
				w.log.Error("inventory adjustment failed", map[string]interface{}{
					"order_id": orderID,
					"sku":      item.SKU,
					"quantity": item.Quantity,
					"error":    err.Error(),
				})
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	}))

	return report
}

func (w *PostPayment) runStep(name, orderID string, fn func() error) StepResult {
	err := fn()
	if err != nil {
		w.log.Error("post-payment step failed", map[string]interface{}{
			"step":     name,
			"order_id": orderID,
			"error":    err.Error(),
		})
	}
	return StepResult{Step: name, Err: err}
}

// MailNotifier sends the confirmation over SMTP.
type MailNotifier struct{}

func (n *MailNotifier) SendPaymentConfirmation(ctx context.Context, order *models.Order) error {
	_ = ctx
	if order.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", order.ID)
	}
	subject := fmt.Sprintf("Payment received for order %s", order.ID)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>we received your payment of %d.%02d %s for order %s. Thank you!</p>",
		order.CustomerName,
		order.PaymentAmountMinorUnits/100,
		order.PaymentAmountMinorUnits%100,
		order.CurrencyCode,
		order.ID,
	)
	return mail.SendMail(order.CustomerEmail, subject, body)
}

// LogInventoryAdjuster stands in when no inventory system is wired; it
// records the adjustment so operations can replay it.
type LogInventoryAdjuster struct{}

func (a *LogInventoryAdjuster) Adjust(ctx context.Context, sku string, delta int) error {
	_ = ctx
	logging.NewRedactor("Inventory").Info("stock adjustment", map[string]interface{}{
		"sku":   sku,
		"delta": delta,
	})
	return nil
}
