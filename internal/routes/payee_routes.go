package routes

import (
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/handlers"
	"Holdsafe/internal/middleware"
)

func SetupPayeeRoutes(app *fiber.App, h *handlers.PayeeHandler, jwtSecret string) {
	payees := app.Group("/api/payees", middleware.Protected(jwtSecret))

	// Register a payout destination with the processor
	payees.Post("/", h.Register)

	// Caller's payout readiness, refreshed from the processor
	payees.Get("/me/status", h.Status)
}
