package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/escrow"
	"Holdsafe/internal/models"
)

type ResolveReconciliationRequest struct {
	Action string `json:"action" validate:"required,oneof=confirm discard"`
	Note   string `json:"note"`
}

// ReconciliationHandler is the operator surface for money movements whose
// ledger state is unknown or known-bad. Admin routes only.
type ReconciliationHandler struct {
	reconciler *escrow.Reconciler
	validate   *validator.Validate
}

func NewReconciliationHandler(reconciler *escrow.Reconciler) *ReconciliationHandler {
	return &ReconciliationHandler{reconciler: reconciler, validate: validator.New()}
}

// ListOpen returns every reconciliation record still awaiting an operator.
func (h *ReconciliationHandler) ListOpen(c *fiber.Ctx) error {
	records, err := h.reconciler.Open(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(records))
	for i := range records {
		items = append(items, reconciliationPayload(&records[i]))
	}
	return c.JSON(fiber.Map{
		"count":           len(items),
		"reconciliations": items,
	})
}

// Resolve closes an open record. Confirm replays the recorded entries into
// the ledger; discard closes it without touching the ledger.
func (h *ReconciliationHandler) Resolve(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid reconciliation id")
	}

	req := new(ResolveReconciliationRequest)
	if err := parseBody(c, h.validate, req); err != nil {
		return err
	}

	recon, err := h.reconciler.Resolve(c.UserContext(), uint(id), req.Action, req.Note, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":        "Reconciliation resolved",
		"reconciliation": reconciliationPayload(recon),
	})
}

func reconciliationPayload(r *models.Reconciliation) fiber.Map {
	return fiber.Map{
		"id":            r.ID,
		"order_id":      r.OrderID,
		"operation":     r.Operation,
		"milestone_ref": r.MilestoneRef,
		"amount":        r.Amount,
		"fee":           r.Fee,
		"currency":      r.Currency,
		"external_ref":  r.ExternalRef,
		"state":         r.State,
		"detail":        r.Detail,
		"resolution":    r.Resolution,
		"created_at":    r.CreatedAt,
		"resolved_at":   r.ResolvedAt,
	}
}
