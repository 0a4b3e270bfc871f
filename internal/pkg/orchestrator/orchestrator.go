package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/logging"
	"github.com/payflowhq/payflow/internal/pkg/payment"
	"github.com/payflowhq/payflow/internal/pkg/workflow"
)

// methodCacheTTL bounds how long a gateway's saved-method listing is served
// from cache before we ask the gateway again.
const methodCacheTTL = 5 * time.Minute

// webhookDedupTTL is the fast-path replay suppression window. The key is
// written only after an event fully processed, so a retry of a failed event
// is never suppressed; the DB row remains the authoritative record.
const webhookDedupTTL = 24 * time.Hour

// Cache is the small cache surface the orchestrator needs. Nil disables
// caching entirely.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
}

// Service creates and confirms transactions across the supported gateways
// and drives the post-payment side effects. The adapter set is closed:
// dispatch is a switch over typed fields, so an unsupported gateway cannot
// slip in at runtime.
type Service struct {
	cfg    payment.Config
	stripe payment.Adapter
	paypal payment.Adapter
	bank   payment.Adapter

	ledger   *ledger.Service
	workflow *workflow.PostPayment
	cache    Cache
	log      *logging.Redactor
}

// New wires a service from explicit dependencies. Adapters left nil are
// built from the config.
func New(cfg payment.Config, ledgerSvc *ledger.Service, wf *workflow.PostPayment, cache Cache) *Service {
	return &Service{
		cfg:      cfg,
		stripe:   payment.NewStripeAdapter(cfg.Stripe, cfg.GatewayTimeout),
		paypal:   payment.NewPayPalAdapter(cfg.PayPal, cfg.GatewayTimeout),
		bank:     payment.NewBankTransferAdapter(cfg.BankTransfer),
		ledger:   ledgerSvc,
		workflow: wf,
		cache:    cache,
		log:      logging.NewRedactor("Payment"),
	}
}

// WithAdapters replaces the gateway adapters; used by tests.
func (s *Service) WithAdapters(stripe, paypal, bank payment.Adapter) *Service {
	if stripe != nil {
		s.stripe = stripe
	}
	if paypal != nil {
		s.paypal = paypal
	}
	if bank != nil {
		s.bank = bank
	}
	return s
}

func (s *Service) adapterFor(g payment.Gateway) payment.Adapter {
	switch g {
	case payment.GatewayStripe:
		return s.stripe
	case payment.GatewayPayPal:
		return s.paypal
	case payment.GatewayBankTransfer:
		return s.bank
	default:
		// ParseGateway guards every entry point; reaching this is a bug.
		panic("no adapter for gateway " + string(g))
	}
}

// CreateTransactionInput is the caller-facing create shape.
type CreateTransactionInput struct {
	Gateway     string
	AmountMinor int64
	Currency    string
	OrderID     string
	Customer    payment.Customer
	Description string
	Metadata    map[string]string
}

// CreateTransaction starts a payment on the requested gateway. For bank
// transfers this only writes a pending payment record; card and wallet
// gateways return a handshake token the caller completes client-side.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*payment.Transaction, error) {
	requestID := uuid.NewString()

	if in.AmountMinor <= 0 {
		return nil, payment.NewValidationError(payment.ErrCodeInvalidAmount, "The payment amount must be positive.")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(currency) != 3 {
		return nil, payment.NewValidationError(payment.ErrCodeInvalidAmount, "A 3-letter currency code is required.")
	}
	gw, err := payment.ParseGateway(in.Gateway)
	if err != nil {
		// Unknown gateways must fail without touching any order.
		return nil, payment.NewGatewayError(payment.ErrCodeCreationFailed, "Unknown payment gateway.", err.Error())
	}

	s.log.Info("creating transaction", map[string]interface{}{
		"request_id":  requestID,
		"gateway":     string(gw),
		"order_id":    in.OrderID,
		"amount":      in.AmountMinor,
		"currency":    currency,
		"customer_id": in.Customer.ID,
	})

	if gw == payment.GatewayBankTransfer {
		return s.createBankTransfer(ctx, gw, in, currency, requestID)
	}

	providerCustomerID := s.providerCustomerID(ctx, gw, in.Customer)
	handle, err := s.adapterFor(gw).CreateIntent(ctx, payment.CreateIntentRequest{
		AmountMinor:        in.AmountMinor,
		Currency:           currency,
		ProviderCustomerID: providerCustomerID,
		Description:        in.Description,
		OrderID:            in.OrderID,
		IdempotencyKey:     requestID,
		Metadata:           in.Metadata,
	})
	if err != nil {
		pe := payment.AsPaymentError(err, payment.ErrCodeCreationFailed)
		s.log.Error("transaction creation failed", map[string]interface{}{
			"request_id": requestID,
			"gateway":    string(gw),
			"order_id":   in.OrderID,
			"code":       string(pe.Code),
			"error":      pe.Detail,
		})
		return nil, pe
	}

	requiresAction := handle.RequiresAction
	if gw == payment.GatewayStripe {
		requiresAction = requiresAction || payment.RequiresStrongAuth(in.AmountMinor, in.Customer.BillingCountry, s.cfg.RegulatedCountries)
	}

	return &payment.Transaction{
		ID:             handle.IntentID,
		Gateway:        gw,
		AmountMinor:    in.AmountMinor,
		Currency:       currency,
		Status:         payment.NormalizeStatus(gw, handle.NativeStatus),
		RequiresAction: requiresAction,
		ClientSecret:   handle.ClientSecret,
		ApprovalURL:    handle.ApprovalURL,
		OrderID:        in.OrderID,
	}, nil
}

func (s *Service) createBankTransfer(ctx context.Context, gw payment.Gateway, in CreateTransactionInput, currency, requestID string) (*payment.Transaction, error) {
	// Bank transfers need the order up front: the reference is derived from
	// it and the pending snapshot is written immediately.
	if _, err := s.ledger.GetOrder(ctx, in.OrderID); err != nil {
		return nil, payment.AsPaymentError(err, payment.ErrCodeCreationFailed)
	}

	handle, err := s.bank.CreateIntent(ctx, payment.CreateIntentRequest{
		AmountMinor:    in.AmountMinor,
		Currency:       currency,
		OrderID:        in.OrderID,
		IdempotencyKey: requestID,
	})
	if err != nil {
		return nil, payment.AsPaymentError(err, payment.ErrCodeCreationFailed)
	}

	if _, _, err := s.ledger.UpdateOrderPayment(ctx, in.OrderID, ledger.PaymentUpdate{
		TransactionID: handle.IntentID,
		Gateway:       gw,
		Status:        payment.StatusPending,
		AmountMinor:   in.AmountMinor,
		Reference:     handle.Reference,
	}); err != nil {
		return nil, payment.AsPaymentError(err, payment.ErrCodeCreationFailed)
	}

	return &payment.Transaction{
		ID:          handle.IntentID,
		Gateway:     gw,
		AmountMinor: in.AmountMinor,
		Currency:    currency,
		Status:      payment.StatusPending,
		Reference:   handle.Reference,
		OrderID:     in.OrderID,
	}, nil
}

// ConfirmTransactionInput is the caller-facing confirm shape.
type ConfirmTransactionInput struct {
	Gateway       string
	TransactionID string
	OrderID       string
	MethodRef     string
	SaveMethod    bool
	Customer      payment.Customer
}

// ConfirmResult is the definite outcome of a confirmation attempt.
type ConfirmResult struct {
	Transaction    payment.Transaction `json:"transaction"`
	OrderStatus    string              `json:"order_status"`
	RequiresAction bool                `json:"requires_action"`
	ActionURL      string              `json:"action_url,omitempty"`
}

// ConfirmTransaction drives the gateway's confirm/capture call, persists
// the normalized result to the order, and runs the post-payment workflow
// exactly once when the order turns paid.
func (s *Service) ConfirmTransaction(ctx context.Context, in ConfirmTransactionInput) (*ConfirmResult, error) {
	requestID := uuid.NewString()

	gw, err := payment.ParseGateway(in.Gateway)
	if err != nil {
		return nil, payment.NewGatewayError(payment.ErrCodeConfirmationFailed, "Unknown payment gateway.", err.Error())
	}
	if strings.TrimSpace(in.TransactionID) == "" {
		return nil, payment.NewValidationError(payment.ErrCodeConfirmationFailed, "A transaction id is required.")
	}

	existing, err := s.ledger.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, payment.AsPaymentError(err, payment.ErrCodeConfirmationFailed)
	}

	adapter := s.adapterFor(gw)

	var outcome *payment.ConfirmOutcome
	switch gw {
	case payment.GatewayPayPal:
		// Wallet payments are two-phase: the buyer approved at the gateway,
		// we capture now.
		outcome, err = adapter.CaptureOrder(ctx, in.TransactionID)
	default:
		outcome, err = adapter.ConfirmIntent(ctx, in.TransactionID, in.MethodRef, s.cfg.ReturnURL)
	}
	if err != nil {
		pe := payment.AsPaymentError(err, payment.ErrCodeConfirmationFailed)
		s.log.Error("transaction confirmation failed", map[string]interface{}{
			"request_id":     requestID,
			"gateway":        string(gw),
			"transaction_id": in.TransactionID,
			"order_id":       in.OrderID,
			"code":           string(pe.Code),
			"error":          pe.Detail,
		})
		return nil, pe
	}

	status := payment.NormalizeStatus(gw, outcome.NativeStatus)
	order, becamePaid, err := s.ledger.UpdateOrderPayment(ctx, in.OrderID, ledger.PaymentUpdate{
		TransactionID: outcome.IntentID,
		Gateway:       gw,
		Status:        status,
		AmountMinor:   existing.TotalMinorUnits,
	})
	if err != nil {
		return nil, payment.AsPaymentError(err, payment.ErrCodeConfirmationFailed)
	}

	s.log.Info("transaction confirmed", map[string]interface{}{
		"request_id":     requestID,
		"gateway":        string(gw),
		"transaction_id": outcome.IntentID,
		"order_id":       in.OrderID,
		"status":         string(status),
	})

	if becamePaid {
		s.workflow.Run(ctx, order.ID)
	}

	if in.SaveMethod && in.MethodRef != "" {
		s.attachMethodBestEffort(ctx, gw, in.Customer, in.MethodRef, requestID)
	}

	return &ConfirmResult{
		Transaction: payment.Transaction{
			ID:          outcome.IntentID,
			Gateway:     gw,
			AmountMinor: order.PaymentAmountMinorUnits,
			Currency:    order.CurrencyCode,
			Status:      status,
			OrderID:     order.ID,
		},
		OrderStatus:    order.Status,
		RequiresAction: outcome.RequiresAction,
		ActionURL:      outcome.ActionURL,
	}, nil
}

// attachMethodBestEffort saves the instrument for reuse. Attachment failure
// never fails the confirmation that already moved money.
func (s *Service) attachMethodBestEffort(ctx context.Context, gw payment.Gateway, customer payment.Customer, methodRef, requestID string) {
	providerCustomerID := s.providerCustomerID(ctx, gw, customer)
	if providerCustomerID == "" {
		s.log.Warn("cannot save payment method without gateway customer", map[string]interface{}{
			"request_id":  requestID,
			"gateway":     string(gw),
			"customer_id": customer.ID,
		})
		return
	}
	if err := s.adapterFor(gw).AttachMethod(ctx, providerCustomerID, methodRef, false); err != nil {
		s.log.Warn("saving payment method failed", map[string]interface{}{
			"request_id":  requestID,
			"gateway":     string(gw),
			"customer_id": customer.ID,
			"error":       err.Error(),
		})
		return
	}
	s.invalidateMethodCache(gw, customer.ID)
}

// GetSavedPaymentMethods lists the customer's saved instruments on one
// gateway. A customer the gateway has never seen gets an empty list, not an
// error.
func (s *Service) GetSavedPaymentMethods(ctx context.Context, customerID, gateway string) ([]payment.Method, error) {
	gw, err := payment.ParseGateway(gateway)
	if err != nil {
		return nil, payment.NewValidationError(payment.ErrCodeUnknownGateway, "Unknown payment gateway.")
	}

	gc, err := s.ledger.GetGatewayCustomer(ctx, gw, customerID)
	if err != nil {
		return nil, err
	}
	if gc == nil {
		return []payment.Method{}, nil
	}

	cacheKey := methodCacheKey(gw, customerID)
	if s.cache != nil {
		if raw, err := s.cache.Get(cacheKey); err == nil && raw != "" {
			var cached []payment.Method
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		}
	}

	methods, err := s.adapterFor(gw).ListMethods(ctx, gc.ProviderCustomerID)
	if err != nil {
		return nil, payment.AsPaymentError(err, payment.ErrCodeCreationFailed)
	}
	if methods == nil {
		methods = []payment.Method{}
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(methods); err == nil {
			_ = s.cache.Set(cacheKey, string(encoded), methodCacheTTL)
		}
	}
	return methods, nil
}

// DeletePaymentMethod detaches a saved instrument at the gateway.
func (s *Service) DeletePaymentMethod(ctx context.Context, customerID, methodID, gateway string) error {
	gw, err := payment.ParseGateway(gateway)
	if err != nil {
		return payment.NewValidationError(payment.ErrCodeUnknownGateway, "Unknown payment gateway.")
	}
	if err := s.adapterFor(gw).DetachMethod(ctx, methodID); err != nil {
		return payment.AsPaymentError(err, payment.ErrCodeMethodDetachFailed)
	}
	s.invalidateMethodCache(gw, customerID)
	return nil
}

// WebhookOutcome reports what an inbound gateway event did.
type WebhookOutcome struct {
	Duplicate   bool   `json:"duplicate,omitempty"`
	Ignored     bool   `json:"ignored,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
}

// HandleWebhook verifies, deduplicates and applies one gateway
// notification. Webhooks and the synchronous confirm path converge on the
// same ledger update, so either may land first.
func (s *Service) HandleWebhook(ctx context.Context, gateway string, headers map[string]string, rawBody []byte) (*WebhookOutcome, error) {
	gw, err := payment.ParseGateway(gateway)
	if err != nil {
		return nil, payment.NewValidationError(payment.ErrCodeUnknownGateway, "Unknown payment gateway.")
	}

	event, err := s.adapterFor(gw).VerifyWebhook(headers, rawBody)
	if err != nil {
		// Record the rejected delivery for forensics before failing.
		if _, stored, recErr := s.ledger.RecordWebhookEvent(ctx, ledger.WebhookEventInput{
			Gateway:        gw,
			PayloadJSON:    string(rawBody),
			SignatureValid: false,
		}); recErr == nil && stored != nil {
			_ = s.ledger.MarkWebhookProcessed(ctx, stored.ID, err)
		}
		return nil, payment.AsPaymentError(err, payment.ErrCodeInvalidSignature)
	}

	dedupKey := webhookDedupKey(gw, event.EventID)
	if s.cache != nil && dedupKey != "" {
		if seen, err := s.cache.Get(dedupKey); err == nil && seen != "" {
			return &WebhookOutcome{Duplicate: true}, nil
		}
	}

	created, stored, err := s.ledger.RecordWebhookEvent(ctx, ledger.WebhookEventInput{
		Gateway:         gw,
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// Suppress the replay only when the first delivery fully processed.
		// An event whose processing failed keeps its error on the stored row
		// and must stay retryable, or the gateway's redelivery would be
		// swallowed and the status update lost.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			s.markWebhookSeen(dedupKey)
			return &WebhookOutcome{Duplicate: true}, nil
		}
		s.log.Warn("reprocessing webhook event after failed attempt", map[string]interface{}{
			"gateway":    string(gw),
			"event_id":   event.EventID,
			"event_type": event.EventType,
		})
	}

	if event.OrderID == "" {
		_ = s.ledger.MarkWebhookProcessed(ctx, stored.ID, nil)
		s.markWebhookSeen(dedupKey)
		s.log.Info("webhook without order reference ignored", map[string]interface{}{
			"gateway":    string(gw),
			"event_type": event.EventType,
		})
		return &WebhookOutcome{Ignored: true}, nil
	}

	status := payment.NormalizeStatus(gw, event.NativeStatus)
	order, becamePaid, err := s.ledger.UpdateOrderPayment(ctx, event.OrderID, ledger.PaymentUpdate{
		TransactionID: event.TransactionID,
		Gateway:       gw,
		Status:        status,
	})
	if err != nil {
		_ = s.ledger.MarkWebhookProcessed(ctx, stored.ID, err)
		return nil, payment.AsPaymentError(err, payment.ErrCodeConfirmationFailed)
	}

	if becamePaid {
		s.workflow.Run(ctx, order.ID)
	}
	_ = s.ledger.MarkWebhookProcessed(ctx, stored.ID, nil)
	s.markWebhookSeen(dedupKey)

	return &WebhookOutcome{OrderID: order.ID, OrderStatus: order.Status}, nil
}

// markWebhookSeen records a fully processed event in the cache fast path.
func (s *Service) markWebhookSeen(dedupKey string) {
	if s.cache != nil && dedupKey != "" {
		_ = s.cache.Set(dedupKey, 1, webhookDedupTTL)
	}
}

func webhookDedupKey(gw payment.Gateway, eventID string) string {
	if eventID == "" {
		return ""
	}
	return "webhook:" + string(gw) + ":" + eventID
}

// providerCustomerID resolves the gateway-side customer id; empty when the
// customer is unknown to the gateway.
func (s *Service) providerCustomerID(ctx context.Context, gw payment.Gateway, customer payment.Customer) string {
	if id := customer.ProviderIDs[gw]; id != "" {
		return id
	}
	gc, err := s.ledger.GetGatewayCustomer(ctx, gw, customer.ID)
	if err != nil || gc == nil {
		return ""
	}
	return gc.ProviderCustomerID
}

func (s *Service) invalidateMethodCache(gw payment.Gateway, customerID string) {
	if s.cache != nil {
		_ = s.cache.Delete(methodCacheKey(gw, customerID))
	}
}

func methodCacheKey(gw payment.Gateway, customerID string) string {
	return "payment_methods:" + string(gw) + ":" + customerID
}
