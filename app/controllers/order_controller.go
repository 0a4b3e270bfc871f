package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/payment"
)

type createOrderRequest struct {
	ID            string                 `json:"id"`
	CustomerID    string                 `json:"customer_id" validate:"required"`
	CustomerEmail string                 `json:"customer_email" validate:"omitempty,email"`
	CustomerName  string                 `json:"customer_name"`
	Currency      string                 `json:"currency" validate:"required,len=3"`
	Items         []createOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type createOrderItemInput struct {
	SKU            string `json:"sku" validate:"required"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	UnitPriceMinor int64  `json:"unit_price_minor_units" validate:"min=0"`
}

// HandleCreateOrder records a new order awaiting payment.
func HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.OrderItem{
			SKU:            it.SKU,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceMinor: it.UnitPriceMinor,
		})
	}

	ctx, cancel := requestContext()
	defer cancel()

	order, err := ledgerSvc.CreateOrder(ctx, ledger.CreateOrderInput{
		ID:            req.ID,
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Currency:      req.Currency,
		Items:         items,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_creation_failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "order": order})
}

// HandleGetOrder returns one order with items and notes.
func HandleGetOrder(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	order, err := ledgerSvc.GetOrder(ctx, c.Params("id"))
	if err != nil {
		return writePaymentError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

// HandleListCustomerOrders returns a customer's orders, newest first.
func HandleListCustomerOrders(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	orders, err := ledgerSvc.GetCustomerOrders(ctx, c.Params("customerId"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_lookup_failed"})
	}
	return c.JSON(fiber.Map{"success": true, "orders": orders})
}

type addOrderNoteRequest struct {
	Content string `json:"content" validate:"required"`
	Author  string `json:"author"`
}

// HandleAddOrderNote appends a note to the order's trail.
func HandleAddOrderNote(c *fiber.Ctx) error {
	var req addOrderNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := requestContext()
	defer cancel()

	order, err := ledgerSvc.AddOrderNote(ctx, c.Params("id"), req.Content, req.Author)
	if err != nil {
		return writePaymentError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

// HandleBankTransferDetails returns the remittance details a buyer needs to
// settle an order by bank transfer.
func HandleBankTransferDetails(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	order, err := ledgerSvc.GetOrder(ctx, c.Params("id"))
	if err != nil {
		return writePaymentError(c, err)
	}

	details := payment.NewBankTransferAdapter(bankTransferConfig).Remittance(order.ID)
	return c.JSON(fiber.Map{
		"success":    true,
		"order_id":   order.ID,
		"remittance": details,
	})
}

var bankTransferConfig payment.BankTransferConfig

// SetupBankTransferDetails provides the static remittance account shown to
// buyers.
func SetupBankTransferDetails(cfg payment.BankTransferConfig) {
	bankTransferConfig = cfg
}
