package routes

import (
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/handlers"
	"Holdsafe/internal/middleware"
)

func SetupNotificationRoutes(app *fiber.App, h *handlers.NotificationHandler, jwtSecret string) {
	notifications := app.Group("/api/notifications", middleware.Protected(jwtSecret))

	notifications.Get("/", h.List)
	notifications.Put("/:id/read", h.MarkRead)
	notifications.Put("/read-all", h.MarkAllRead)
}
