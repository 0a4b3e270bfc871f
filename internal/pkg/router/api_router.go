package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/payflowhq/payflow/app/controllers"
	"github.com/payflowhq/payflow/internal/pkg/constants"
	"github.com/payflowhq/payflow/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "payflow api",
		})
	})

	v1 := api.Group(constants.APIV1Route, middleware.APIKeyAuthMiddleware())

	v1.Post("/payments", controllers.HandleCreatePayment)
	v1.Post("/payments/confirm", controllers.HandleConfirmPayment)
	v1.Get("/payment-methods", controllers.HandleListPaymentMethods)
	v1.Delete("/payment-methods/:id", controllers.HandleDeletePaymentMethod)

	v1.Post("/orders", controllers.HandleCreateOrder)
	v1.Get("/orders/:id", controllers.HandleGetOrder)
	v1.Post("/orders/:id/notes", controllers.HandleAddOrderNote)
	v1.Get("/orders/:id/bank-transfer", controllers.HandleBankTransferDetails)
	v1.Get("/customers/:customerId/orders", controllers.HandleListCustomerOrders)

	v1.Get(constants.StatsRoute, controllers.HandleStats)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
