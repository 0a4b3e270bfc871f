package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/logging"
	"github.com/payflowhq/payflow/internal/pkg/payment"
	"gorm.io/gorm"
)

// casMaxRetries bounds how often a payment update retries after losing a
// version race against a concurrent writer (e.g. webhook vs. confirm).
const casMaxRetries = 5

// Service owns the order lifecycle. Orders are independent units of
// concurrency; all cross-writer coordination happens through the version
// column compare-and-set, never through a read-modify-write.
type Service struct {
	repo Repository
	log  *logging.Redactor
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, log: logging.NewRedactor("Ledger")}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// CreateOrderInput is the caller-facing order creation shape.
type CreateOrderInput struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	CustomerName  string
	Currency      string
	Items         []models.OrderItem
}

// CreateOrder assigns an id if absent, stamps timestamps, defaults the
// status and generates a payment correlation id.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	_ = ctx
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, errors.New("customer_id is required")
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	}

	order := &models.Order{
		ID:                   id,
		CustomerID:           strings.TrimSpace(in.CustomerID),
		CustomerEmail:        strings.TrimSpace(in.CustomerEmail),
		CustomerName:         strings.TrimSpace(in.CustomerName),
		Status:               models.OrderStatusAwaitingPayment,
		CurrencyCode:         strings.ToUpper(strings.TrimSpace(in.Currency)),
		PaymentCorrelationID: uuid.NewString(),
		Items:                in.Items,
	}
	order.TotalMinorUnits = order.ItemsTotal()
	if err := s.repo.CreateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns the order or a fatal ORDER_NOT_FOUND error.
func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	_ = ctx
	order, err := s.repo.GetOrder(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.NewLedgerError(payment.ErrCodeOrderNotFound, "Order could not be found.", "order_id="+id)
		}
		return nil, err
	}
	return order, nil
}

// PaymentUpdate is the transaction snapshot merged into an order.
type PaymentUpdate struct {
	TransactionID string
	Gateway       payment.Gateway
	Status        payment.TransactionStatus
	AmountMinor   int64
	Reference     string
}

// UpdateOrderPayment merges a payment snapshot into the order and
// recomputes the derived order status. The merge is last-write-wins keyed
// by transaction id: an update that does not strictly increase the status
// confidence rank is a no-op, so a late "processing" webhook can never
// regress an already-completed payment. The second return reports whether
// this call transitioned the order into paid.
func (s *Service) UpdateOrderPayment(ctx context.Context, orderID string, upd PaymentUpdate) (*models.Order, bool, error) {
	if strings.TrimSpace(upd.TransactionID) == "" {
		return nil, false, errors.New("transaction id is required")
	}

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		order, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, false, err
		}

		if !shouldApply(order, upd) {
			return order, false, nil
		}

		now := time.Now()
		updates := map[string]interface{}{
			"payment_transaction_id": upd.TransactionID,
			"payment_gateway":        string(upd.Gateway),
			"payment_status":         string(upd.Status),
			"payment_updated_at":     &now,
			"version":                order.Version + 1,
		}
		// Webhooks carry no amount; keep the recorded one in that case.
		if upd.AmountMinor > 0 {
			updates["payment_amount_minor_units"] = upd.AmountMinor
		}
		if upd.Reference != "" {
			updates["payment_reference"] = upd.Reference
		}

		derived, changes := payment.OrderStatusForTransaction(upd.Status)
		if changes {
			updates["status"] = derived
		}
		paidTransition := changes && derived == models.OrderStatusPaid && order.Status != models.OrderStatusPaid

		applied, err := s.repo.UpdateOrderCAS(orderID, order.Version, updates)
		if err != nil {
			return nil, false, err
		}
		if !applied {
			// Lost the race; re-read and re-evaluate against the new state.
			continue
		}

		if upd.Status == payment.StatusDisputed {
			note := &models.OrderNote{
				OrderID: orderID,
				Author:  "system",
				Content: fmt.Sprintf("Transaction %s disputed - flagged for manual review", upd.TransactionID),
			}
			if err := s.repo.AppendNote(note); err != nil {
				s.log.Warn("failed to append dispute note", map[string]interface{}{
					"order_id": orderID,
					"error":    err.Error(),
				})
			}
		}

		updated, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		return updated, paidTransition, nil
	}

	return nil, false, fmt.Errorf("payment update for order %s kept losing version races", orderID)
}

// shouldApply implements the status-ordering guard. For the same
// transaction, only strictly higher-confidence statuses apply. A different
// transaction may take over freely before completion (payment retries), but
// can never pull a completed order back below its current rank.
func shouldApply(order *models.Order, upd PaymentUpdate) bool {
	current := payment.TransactionStatus(order.PaymentStatus)

	// The refund family (refunded, partially refunded, disputed) only makes
	// sense on top of a completed payment; such an update for an order that
	// never completed is discarded.
	if upd.Status.Rank() > payment.StatusCompleted.Rank() && current.Rank() < payment.StatusCompleted.Rank() {
		return false
	}

	if order.PaymentTransactionID == "" {
		return true
	}

	if order.PaymentTransactionID == upd.TransactionID {
		return upd.Status.Rank() > current.Rank()
	}
	if current.Rank() >= payment.StatusCompleted.Rank() {
		return upd.Status.Rank() > current.Rank()
	}
	return true
}

// AddOrderNote appends a note; existing notes are never touched.
func (s *Service) AddOrderNote(ctx context.Context, orderID, content, author string) (*models.Order, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("note content is required")
	}
	if strings.TrimSpace(author) == "" {
		author = "system"
	}
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}

	note := &models.OrderNote{OrderID: orderID, Author: author, Content: content}
	if err := s.repo.AppendNote(note); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// GetCustomerOrders lists a customer's orders, newest first.
func (s *Service) GetCustomerOrders(ctx context.Context, customerID string) ([]models.Order, error) {
	_ = ctx
	return s.repo.ListOrdersByCustomer(customerID)
}

// GenerateInvoice creates the order's invoice if none exists yet. Returns
// whether this call created it. Safe to call repeatedly.
func (s *Service) GenerateInvoice(ctx context.Context, order *models.Order) (bool, *models.Invoice, error) {
	_ = ctx
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return false, nil, err
	}

	invoice := &models.Invoice{
		Number:           "INV-" + order.ID,
		OrderID:          order.ID,
		CustomerID:       order.CustomerID,
		CurrencyCode:     order.CurrencyCode,
		AmountMinorUnits: order.PaymentAmountMinorUnits,
		ItemsJSON:        string(itemsJSON),
	}
	if invoice.AmountMinorUnits == 0 {
		invoice.AmountMinorUnits = order.TotalMinorUnits
	}

	created, stored, err := s.repo.CreateInvoiceIfNotExists(invoice)
	if err != nil {
		return false, nil, err
	}
	if created {
		if err := s.repo.SetOrderInvoice(order.ID, stored.ID); err != nil {
			s.log.Warn("failed to link invoice to order", map[string]interface{}{
				"order_id":   order.ID,
				"invoice_id": stored.ID,
				"error":      err.Error(),
			})
		}
	}
	return created, stored, nil
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Gateway         payment.Gateway
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists webhook payloads idempotently. Events without
// a provider id are keyed by a payload hash instead.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	if in.Gateway == "" {
		return false, nil, errors.New("gateway is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Gateway:         string(in.Gateway),
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// GetGatewayCustomer resolves the gateway-side customer id for a local
// customer. Returns nil (no error) when the customer is unknown to the
// gateway.
func (s *Service) GetGatewayCustomer(ctx context.Context, gateway payment.Gateway, customerID string) (*models.GatewayCustomer, error) {
	_ = ctx
	gc, err := s.repo.GetGatewayCustomer(string(gateway), customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return gc, nil
}

// LinkGatewayCustomer records the id a gateway assigned to a customer.
func (s *Service) LinkGatewayCustomer(ctx context.Context, gateway payment.Gateway, customerID, providerCustomerID, email string) error {
	_ = ctx
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(providerCustomerID) == "" {
		return errors.New("customer_id and provider_customer_id are required")
	}
	return s.repo.UpsertGatewayCustomer(&models.GatewayCustomer{
		CustomerID:         strings.TrimSpace(customerID),
		Gateway:            string(gateway),
		ProviderCustomerID: strings.TrimSpace(providerCustomerID),
		Email:              strings.TrimSpace(email),
	})
}
