package routes

import (
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/handlers"
	"Holdsafe/internal/middleware"
)

func SetupEscrowRoutes(app *fiber.App, h *handlers.EscrowHandler, jwtSecret string) {
	escrow := app.Group("/api/escrow", middleware.Protected(jwtSecret))

	// Create order and initialize the buyer's charge
	escrow.Post("/orders", h.CreateOrder)

	// Verify the charge and record the hold
	escrow.Post("/orders/:id/confirm-payment", h.ConfirmPayment)

	// Partial release against a milestone
	escrow.Post("/orders/:id/release", h.Release)

	// Release everything still held
	escrow.Post("/orders/:id/release-all", h.ReleaseAll)

	// Refund to buyer (full when no amount given)
	escrow.Post("/orders/:id/refund", h.Refund)

	// Order with derived balance and status
	escrow.Get("/orders/:id", h.GetOrder)

	// Balance only
	escrow.Get("/orders/:id/balance", h.GetBalance)

	// Full ledger history
	escrow.Get("/orders/:id/entries", h.ListEntries)
}
