package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/payflowhq/payflow/app/controllers"
	"github.com/payflowhq/payflow/internal/pkg/cache"
	"github.com/payflowhq/payflow/internal/pkg/constants"
	"github.com/payflowhq/payflow/internal/pkg/database"
	"github.com/payflowhq/payflow/internal/pkg/env"
	"github.com/payflowhq/payflow/internal/pkg/ledger"
	"github.com/payflowhq/payflow/internal/pkg/orchestrator"
	"github.com/payflowhq/payflow/internal/pkg/payment"
	"github.com/payflowhq/payflow/internal/pkg/router"
	"github.com/payflowhq/payflow/internal/pkg/workflow"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	cfg := payment.ConfigFromEnv()
	ledgerSvc := ledger.NewServiceFromDB(database.GetDB())
	postPayment := workflow.NewPostPayment(ledgerSvc, nil, nil)
	paymentSvc := orchestrator.New(cfg, ledgerSvc, postPayment, cache.Store{})

	controllers.SetupPayment(paymentSvc, ledgerSvc)
	controllers.SetupBankTransferDetails(cfg.BankTransfer)

	app := fiber.New(fiber.Config{
		AppName: "payflow",
	})
	app.Use(recover.New(), logger.New())
	app.Get(constants.MetricsRoute, monitor.New())

	router.InstallRouter(app)

	return app
}
