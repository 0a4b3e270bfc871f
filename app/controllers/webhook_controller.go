package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/payflowhq/payflow/internal/pkg/metrics/counter"
	"github.com/payflowhq/payflow/internal/pkg/payment"
)

// webhookHeaders copies the signature-bearing headers out of the request so
// the verification layer stays independent of Fiber.
var webhookHeaderNames = []string{
	"Stripe-Signature",
	"Paypal-Transmission-Sig",
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"X-Payflow-Signature",
}

// HandlePaymentWebhook ingests one gateway notification. Gateways retry on
// non-2xx, so every accepted-and-recorded outcome answers 200 even when the
// event changed nothing.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	gateway := c.Params("gateway")
	rawBody := append([]byte(nil), c.BodyRaw()...)

	headers := make(map[string]string, len(webhookHeaderNames))
	for _, name := range webhookHeaderNames {
		if v := c.Get(name); v != "" {
			headers[name] = v
		}
	}

	ctx, cancel := requestContext()
	defer cancel()

	outcome, err := paymentSvc.HandleWebhook(ctx, gateway, headers, rawBody)
	if err != nil {
		pe := payment.AsPaymentError(err, payment.ErrCodeInvalidSignature)
		if pe.Code == payment.ErrCodeInvalidSignature {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		if pe.Code == payment.ErrCodeUnknownGateway {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_gateway"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	if !outcome.Duplicate {
		_ = counter.AddWebhookEvent(gateway)
	}

	resp := fiber.Map{"ok": true}
	if outcome.Duplicate {
		resp["duplicate"] = true
	}
	if outcome.Ignored {
		resp["ignored"] = true
	}
	if outcome.OrderID != "" {
		resp["order_id"] = outcome.OrderID
		resp["order_status"] = outcome.OrderStatus
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
