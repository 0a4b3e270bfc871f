package controllers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/metrics/counter"
	"github.com/payflowhq/payflow/internal/pkg/orchestrator"
	"github.com/payflowhq/payflow/internal/pkg/payment"
)

const requestTimeout = 20 * time.Second

var (
	paymentSvc *orchestrator.Service
	ledgerSvc  *ledger.Service
	validate   = validator.New()
)

// SetupPayment injects the services the payment handlers dispatch to. Must
// run before the router installs any payment route.
func SetupPayment(svc *orchestrator.Service, ls *ledger.Service) {
	paymentSvc = svc
	ledgerSvc = ls
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// writePaymentError renders the uniform error envelope. The gateway-level
// detail only leaves the service in development mode.
func writePaymentError(c *fiber.Ctx, err error) error {
	pe := payment.AsPaymentError(err, payment.ErrCodeCreationFailed)

	body := fiber.Map{
		"code":    string(pe.Code),
		"message": pe.Message,
	}
	if env.IsDev() && pe.Detail != "" {
		body["detail"] = pe.Detail
	}
	return c.Status(httpStatusFor(pe)).JSON(fiber.Map{
		"success": false,
		"error":   body,
	})
}

func httpStatusFor(pe *payment.Error) int {
	switch pe.Code {
	case payment.ErrCodeInvalidAmount, payment.ErrCodeUnknownGateway:
		return fiber.StatusBadRequest
	case payment.ErrCodeInvalidSignature:
		return fiber.StatusUnauthorized
	case payment.ErrCodeOrderNotFound:
		return fiber.StatusNotFound
	}
	if pe.Retryable {
		return fiber.StatusServiceUnavailable
	}
	if pe.Fatal {
		return fiber.StatusInternalServerError
	}
	return fiber.StatusPaymentRequired
}

type createPaymentRequest struct {
	Gateway        string            `json:"gateway" validate:"required"`
	AmountMinor    int64             `json:"amount_minor_units" validate:"required"`
	Currency       string            `json:"currency" validate:"required,len=3"`
	OrderID        string            `json:"order_id"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
	CustomerID     string            `json:"customer_id" validate:"required"`
	CustomerEmail  string            `json:"customer_email" validate:"omitempty,email"`
	CustomerName   string            `json:"customer_name"`
	BillingCountry string            `json:"billing_country" validate:"omitempty,len=2"`
}

// HandleCreatePayment starts a transaction on the requested gateway.
func HandleCreatePayment(c *fiber.Ctx) error {
	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return writePaymentError(c, payment.NewValidationError(payment.ErrCodeCreationFailed, "Invalid request body."))
	}
	if err := validate.Struct(&req); err != nil {
		return writePaymentError(c, payment.NewGatewayError(payment.ErrCodeCreationFailed, "Invalid payment request.", err.Error()))
	}

	ctx, cancel := requestContext()
	defer cancel()

	txn, err := paymentSvc.CreateTransaction(ctx, orchestrator.CreateTransactionInput{
		Gateway:     req.Gateway,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		Description: req.Description,
		Metadata:    req.Metadata,
		Customer: payment.Customer{
			ID:             req.CustomerID,
			Email:          req.CustomerEmail,
			Name:           req.CustomerName,
			BillingCountry: req.BillingCountry,
		},
	})
	if err != nil {
		return writePaymentError(c, err)
	}

	// Counters are best-effort observability.
	_ = counter.AddPaymentCreated(string(txn.Gateway))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":     true,
		"transaction": txn,
	})
}

type confirmPaymentRequest struct {
	Gateway        string `json:"gateway" validate:"required"`
	TransactionID  string `json:"transaction_id" validate:"required"`
	OrderID        string `json:"order_id" validate:"required"`
	MethodRef      string `json:"payment_method"`
	SaveMethod     bool   `json:"save_payment_method"`
	CustomerID     string `json:"customer_id"`
	CustomerEmail  string `json:"customer_email" validate:"omitempty,email"`
	BillingCountry string `json:"billing_country" validate:"omitempty,len=2"`
}

// HandleConfirmPayment completes a transaction and reports the resulting
// order state.
func HandleConfirmPayment(c *fiber.Ctx) error {
	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return writePaymentError(c, payment.NewValidationError(payment.ErrCodeConfirmationFailed, "Invalid request body."))
	}
	if err := validate.Struct(&req); err != nil {
		return writePaymentError(c, payment.NewGatewayError(payment.ErrCodeConfirmationFailed, "Invalid confirmation request.", err.Error()))
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := paymentSvc.ConfirmTransaction(ctx, orchestrator.ConfirmTransactionInput{
		Gateway:       req.Gateway,
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		MethodRef:     req.MethodRef,
		SaveMethod:    req.SaveMethod,
		Customer: payment.Customer{
			ID:             req.CustomerID,
			Email:          req.CustomerEmail,
			BillingCountry: req.BillingCountry,
		},
	})
	if err != nil {
		return writePaymentError(c, err)
	}

	if result.OrderStatus == models.OrderStatusPaid {
		_ = counter.AddPaymentCompleted(string(result.Transaction.Gateway))
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"transaction":     result.Transaction,
		"order_status":    result.OrderStatus,
		"requires_action": result.RequiresAction,
		"action_url":      result.ActionURL,
	})
}

// HandleListPaymentMethods lists a customer's saved instruments on one
// gateway.
func HandleListPaymentMethods(c *fiber.Ctx) error {
	customerID := c.Query("customer_id")
	gateway := c.Query("gateway")
	if customerID == "" || gateway == "" {
		return writePaymentError(c, payment.NewValidationError(payment.ErrCodeUnknownGateway, "customer_id and gateway are required."))
	}

	ctx, cancel := requestContext()
	defer cancel()

	methods, err := paymentSvc.GetSavedPaymentMethods(ctx, customerID, gateway)
	if err != nil {
		return writePaymentError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"methods": methods,
	})
}

// HandleDeletePaymentMethod detaches one saved instrument.
func HandleDeletePaymentMethod(c *fiber.Ctx) error {
	methodID := c.Params("id")
	customerID := c.Query("customer_id")
	gateway := c.Query("gateway")
	if methodID == "" || gateway == "" {
		return writePaymentError(c, payment.NewValidationError(payment.ErrCodeUnknownGateway, "method id and gateway are required."))
	}

	ctx, cancel := requestContext()
	defer cancel()

	if err := paymentSvc.DeletePaymentMethod(ctx, customerID, methodID, gateway); err != nil {
		return writePaymentError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
