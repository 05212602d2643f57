package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"Holdsafe/internal/config"
	"Holdsafe/internal/database"
	"Holdsafe/internal/escrow"
	"Holdsafe/internal/gateway"
	"Holdsafe/internal/handlers"
	"Holdsafe/internal/routes"
	"Holdsafe/internal/services"
	"Holdsafe/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ Invalid configuration:", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatal("❌ Failed to migrate database:", err)
	}
	log.Println("✅ Database connected and migrated successfully")

	// Wiring: one store, one gateway client, the ledger and its coordinators
	// on top. Everything receives its dependencies here; no package globals.
	paystack := gateway.NewPaystackClient(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.GatewayTimeout)
	st := store.New(db)
	ledger := escrow.NewLedger(st)
	transfers := escrow.NewTransferCoordinator(st, paystack, cfg.PlatformFeePercent, cfg.GatewayTimeout)
	refunds := escrow.NewRefundCoordinator(st, paystack, cfg.GatewayTimeout)
	reconciler := escrow.NewReconciler(st, ledger)

	email := services.NewEmailService(cfg.ResendAPIKey, cfg.FromEmail)
	notifier := services.NewNotificationService(db, email)

	app := fiber.New(fiber.Config{
		AppName:   "Holdsafe API v1.0",
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Holdsafe API",
			"status":  "running",
			"version": "1.0",
		})
	})

	routes.Setup(app, routes.Handlers{
		Escrow:         handlers.NewEscrowHandler(st, ledger, transfers, refunds, paystack, notifier),
		Payee:          handlers.NewPayeeHandler(st, paystack),
		Reconciliation: handlers.NewReconciliationHandler(reconciler),
		Notification:   handlers.NewNotificationHandler(db),
	}, cfg.JWTSecret)

	log.Printf("🚀 Holdsafe server starting on http://localhost:%s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
