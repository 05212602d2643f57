package routes

import (
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/handlers"
)

// Handlers bundles the constructed handler set so main wires everything once.
type Handlers struct {
	Escrow         *handlers.EscrowHandler
	Payee          *handlers.PayeeHandler
	Reconciliation *handlers.ReconciliationHandler
	Notification   *handlers.NotificationHandler
}

func Setup(app *fiber.App, h Handlers, jwtSecret string) {
	api := app.Group("/api")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Holdsafe API v1.0",
			"status":  "running",
		})
	})

	SetupEscrowRoutes(app, h.Escrow, jwtSecret)
	SetupPayeeRoutes(app, h.Payee, jwtSecret)
	SetupAdminRoutes(app, h.Reconciliation, h.Payee, jwtSecret)
	SetupNotificationRoutes(app, h.Notification, jwtSecret)
}
