package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/payflowhq/payflow/app/controllers"
	"github.com/payflowhq/payflow/internal/pkg/constants"
)

// WebhookRouter exposes the inbound gateway notification endpoint. No rate
// limiter and no API key here: gateways burst legitimately after an outage
// and authenticate through payload signatures instead.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post(constants.WebhooksRoute, controllers.HandlePaymentWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
