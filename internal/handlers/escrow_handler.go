package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/escrow"
	"Holdsafe/internal/gateway"
	"Holdsafe/internal/models"
	"Holdsafe/internal/services"
	"Holdsafe/internal/store"
)

type CreateOrderRequest struct {
	PayeeID  uint   `json:"payee_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type ReleaseRequest struct {
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	MilestoneRef string `json:"milestone_ref"`
}

type RefundRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

// EscrowHandler exposes the order lifecycle over HTTP. It owns no business
// rules; the ledger and coordinators decide, the handler translates.
type EscrowHandler struct {
	store     *store.Store
	ledger    *escrow.Ledger
	transfers *escrow.TransferCoordinator
	refunds   *escrow.RefundCoordinator
	gateway   gateway.PaymentGateway
	notifier  *services.NotificationService
	validate  *validator.Validate
}

func NewEscrowHandler(
	st *store.Store,
	ledger *escrow.Ledger,
	transfers *escrow.TransferCoordinator,
	refunds *escrow.RefundCoordinator,
	gw gateway.PaymentGateway,
	notifier *services.NotificationService,
) *EscrowHandler {
	return &EscrowHandler{
		store:     st,
		ledger:    ledger,
		transfers: transfers,
		refunds:   refunds,
		gateway:   gw,
		notifier:  notifier,
		validate:  validator.New(),
	}
}

// CreateOrder registers a new order and initializes a charge with the
// payment processor. The order stays pending until the buyer completes the
// charge and confirms payment.
func (h *EscrowHandler) CreateOrder(c *fiber.Ctx) error {
	req := new(CreateOrderRequest)
	if err := parseBody(c, h.validate, req); err != nil {
		return err
	}

	if err := escrow.ValidateCurrency(req.Currency); err != nil {
		return respondError(c, err)
	}

	buyerID := currentUserID(c)
	if req.PayeeID == buyerID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot open an order with yourself as payee",
		})
	}

	order := &models.Order{
		BuyerID:  buyerID,
		PayeeID:  req.PayeeID,
		Currency: req.Currency,
		Status:   models.OrderPending,
	}
	if err := h.store.CreateOrder(c.UserContext(), order); err != nil {
		return respondError(c, err)
	}

	email, _ := c.Locals("email").(string)
	charge, err := h.gateway.CreateCharge(c.UserContext(), gateway.ChargeRequest{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Email:     email,
		Reference: fmt.Sprintf("order_%d_charge", order.ID),
		Metadata:  map[string]string{"order_id": fmt.Sprintf("%d", order.ID)},
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Order created. Complete the charge to fund escrow.",
		"order": fiber.Map{
			"id":       order.ID,
			"payee_id": order.PayeeID,
			"amount":   req.Amount,
			"currency": order.Currency,
			"status":   order.Status,
		},
		"charge": fiber.Map{
			"reference":     charge.Ref,
			"client_secret": charge.ClientSecret,
		},
	})
}

// ConfirmPayment verifies the charge with the processor and, if it settled,
// records the hold. Idempotent at the ledger: a second confirm for the same
// order is rejected as already held.
func (h *EscrowHandler) ConfirmPayment(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if order.BuyerID != currentUserID(c) && !isAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the buyer can confirm payment",
		})
	}

	chargeRef := fmt.Sprintf("order_%d_charge", order.ID)
	if order.ChargeRef != "" {
		chargeRef = order.ChargeRef
	}
	charge, err := h.gateway.VerifyCharge(c.UserContext(), chargeRef)
	if err != nil {
		return respondError(c, err)
	}
	if !charge.Paid {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Charge has not settled",
			"status": charge.Status,
		})
	}

	entry, err := h.ledger.Hold(c.UserContext(), order.ID, charge.Amount, charge.Ref)
	if err != nil {
		return respondError(c, err)
	}

	h.notifier.NotifyFundsHeld(order, order.PayeeID, charge.Amount)

	return c.JSON(fiber.Map{
		"message": "Funds held in escrow",
		"entry": fiber.Map{
			"id":     entry.ID,
			"type":   entry.Type,
			"amount": entry.Amount,
		},
	})
}

// Release pays out part of the held funds to the payee, deducting the
// platform fee.
func (h *EscrowHandler) Release(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	req := new(ReleaseRequest)
	if err := parseBody(c, h.validate, req); err != nil {
		return err
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if order.BuyerID != currentUserID(c) && !isAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the buyer can release funds",
		})
	}

	result, err := h.transfers.Release(c.UserContext(), orderID, req.Amount, req.MilestoneRef)
	if err != nil {
		h.alertIfReconciling(orderID, err)
		return respondError(c, err)
	}

	h.notifier.NotifyFundsReleased(order, order.PayeeID, result.ReleaseTx.Amount, feeAmount(result), result.Status)

	return c.JSON(releasePayload(result))
}

// ReleaseAll pays out everything still held on the order in one transfer.
func (h *EscrowHandler) ReleaseAll(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if order.BuyerID != currentUserID(c) && !isAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the buyer can release funds",
		})
	}

	result, err := h.transfers.ReleaseAll(c.UserContext(), orderID)
	if err != nil {
		h.alertIfReconciling(orderID, err)
		return respondError(c, err)
	}

	h.notifier.NotifyFundsReleased(order, order.PayeeID, result.ReleaseTx.Amount, feeAmount(result), result.Status)

	return c.JSON(releasePayload(result))
}

// Refund returns held funds to the buyer. A zero or omitted amount refunds
// everything still held.
func (h *EscrowHandler) Refund(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	req := new(RefundRequest)
	if err := c.BodyParser(req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if order.BuyerID != currentUserID(c) && !isAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the buyer can request a refund",
		})
	}

	result, err := h.refunds.Refund(c.UserContext(), orderID, req.Amount)
	if err != nil {
		h.alertIfReconciling(orderID, err)
		return respondError(c, err)
	}

	h.notifier.NotifyRefundIssued(order, result.RefundTx.Amount, result.Status)

	return c.JSON(fiber.Map{
		"message": "Refund issued",
		"refund": fiber.Map{
			"reference": result.RefundRef,
			"amount":    result.RefundTx.Amount,
		},
		"status": result.Status,
	})
}

// GetOrder returns the order with its derived balance and status.
func (h *EscrowHandler) GetOrder(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.authorizeRead(c, order); err != nil {
		return err
	}

	balance, err := h.ledger.Balance(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"order": fiber.Map{
			"id":         order.ID,
			"buyer_id":   order.BuyerID,
			"payee_id":   order.PayeeID,
			"currency":   order.Currency,
			"status":     order.Status,
			"created_at": order.CreatedAt,
		},
		"balance": balance,
	})
}

// GetBalance returns only the derived balance for the order.
func (h *EscrowHandler) GetBalance(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.authorizeRead(c, order); err != nil {
		return err
	}

	balance, err := h.ledger.Balance(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"balance": balance})
}

// ListEntries returns the order's full ledger history in append order.
func (h *EscrowHandler) ListEntries(c *fiber.Ctx) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	order, err := h.store.Order(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.authorizeRead(c, order); err != nil {
		return err
	}

	entries, err := h.store.Entries(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		items = append(items, fiber.Map{
			"id":            e.ID,
			"type":          e.Type,
			"amount":        e.Amount,
			"milestone_ref": e.MilestoneRef,
			"external_ref":  e.ExternalRef,
			"created_at":    e.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"order_id": orderID,
		"entries":  items,
	})
}

// alertIfReconciling pings the admins when a failed operation left an open
// reconciliation record behind (ledger write failed, or timeout with the
// outcome unknown).
func (h *EscrowHandler) alertIfReconciling(orderID uint, err error) {
	if escrow.CodeOf(err) == "reconciliation_pending" || gateway.IsTimeout(err) {
		h.notifier.NotifyReconciliationOpened(orderID, err.Error())
	}
}

func (h *EscrowHandler) authorizeRead(c *fiber.Ctx, order *models.Order) error {
	userID := currentUserID(c)
	if order.BuyerID != userID && order.PayeeID != userID && !isAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You are not a party to this order",
		})
	}
	return nil
}

func orderIDParam(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid order id")
	}
	return uint(id), nil
}

func feeAmount(result *escrow.ReleaseResult) int64 {
	if result.FeeTx == nil {
		return 0
	}
	return result.FeeTx.Amount
}

func releasePayload(result *escrow.ReleaseResult) fiber.Map {
	return fiber.Map{
		"message": "Funds released to payee",
		"transfer": fiber.Map{
			"reference":    result.TransferRef,
			"payee_amount": result.ReleaseTx.Amount,
			"fee":          feeAmount(result),
		},
		"status": result.Status,
	}
}
