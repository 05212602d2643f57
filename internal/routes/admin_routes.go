package routes

import (
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/handlers"
	"Holdsafe/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App, recon *handlers.ReconciliationHandler, payee *handlers.PayeeHandler, jwtSecret string) {
	admin := app.Group("/api/admin", middleware.Protected(jwtSecret), middleware.AdminOnly())

	// Open reconciliation records awaiting an operator
	admin.Get("/reconciliations", recon.ListOpen)

	// Confirm or discard an open record
	admin.Post("/reconciliations/:id/resolve", recon.Resolve)

	// Processor settlement balance
	admin.Get("/gateway/balance", payee.Balance)
}
