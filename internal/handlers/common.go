package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/escrow"
)

// respondError maps the ledger's error taxonomy onto HTTP statuses so every
// handler reports failures the same way. The body distinguishes input
// errors from system errors without leaking internals.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kind := escrow.KindOf(err)
	switch kind {
	case escrow.KindValidation:
		status = fiber.StatusBadRequest
	case escrow.KindPrecondition:
		status = fiber.StatusUnprocessableEntity
	case escrow.KindConflict:
		status = fiber.StatusConflict
	case escrow.KindNotFound:
		status = fiber.StatusNotFound
	case escrow.KindExternal:
		status = fiber.StatusBadGateway
	case escrow.KindInvariant:
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind.String(),
		"code":  escrow.CodeOf(err),
	})
}

// parseBody decodes and validates a request body in one step.
func parseBody(c *fiber.Ctx, v *validator.Validate, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := v.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("user_id").(uint)
	return id
}

func isAdmin(c *fiber.Ctx) bool {
	role, _ := c.Locals("role").(string)
	return role == "admin"
}
