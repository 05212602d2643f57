package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"Holdsafe/internal/escrow"
	"Holdsafe/internal/gateway"
	"Holdsafe/internal/models"
	"Holdsafe/internal/store"
)

type RegisterPayeeRequest struct {
	BankName      string `json:"bank_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,min=8,max=20"`
	AccountName   string `json:"account_name" validate:"required"`
	BankCode      string `json:"bank_code" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
}

// PayeeHandler manages payout destinations. A payee cannot receive releases
// until the processor has accepted their bank details.
type PayeeHandler struct {
	store    *store.Store
	gateway  gateway.PaymentGateway
	validate *validator.Validate
}

func NewPayeeHandler(st *store.Store, gw gateway.PaymentGateway) *PayeeHandler {
	return &PayeeHandler{store: st, gateway: gw, validate: validator.New()}
}

// Register creates a transfer recipient at the processor and stores the
// account locally with its readiness flags.
func (h *PayeeHandler) Register(c *fiber.Ctx) error {
	req := new(RegisterPayeeRequest)
	if err := parseBody(c, h.validate, req); err != nil {
		return err
	}
	if err := escrow.ValidateCurrency(req.Currency); err != nil {
		return respondError(c, err)
	}

	recipient, err := h.gateway.CreateRecipient(c.UserContext(), gateway.RecipientRequest{
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Currency:      req.Currency,
	})
	if err != nil {
		return respondError(c, err)
	}

	now := time.Now().UTC()
	acct := &models.PayeeAccount{
		UserID:           currentUserID(c),
		BankName:         req.BankName,
		AccountNumber:    req.AccountNumber,
		AccountName:      req.AccountName,
		BankCode:         req.BankCode,
		RecipientCode:    recipient.Code,
		PayoutsEnabled:   recipient.Active,
		DetailsSubmitted: true,
		StatusCheckedAt:  &now,
	}
	if err := h.store.SavePayeeAccount(c.UserContext(), acct); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payout account registered",
		"account": payeePayload(acct),
	})
}

// Status returns the caller's payout account, refreshed from the processor.
func (h *PayeeHandler) Status(c *fiber.Ctx) error {
	acct, err := h.store.PayeeAccount(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	status, err := h.gateway.GetAccountStatus(c.UserContext(), acct.RecipientCode)
	if err == nil {
		now := time.Now().UTC()
		acct.PayoutsEnabled = status.PayoutsEnabled
		acct.DetailsSubmitted = status.DetailsSubmitted
		acct.StatusCheckedAt = &now
		if saveErr := h.store.SavePayeeAccount(c.UserContext(), acct); saveErr != nil {
			return respondError(c, saveErr)
		}
	}

	resp := fiber.Map{"account": payeePayload(acct)}
	if status != nil {
		resp["outstanding_requirements"] = status.OutstandingRequirements
	}
	return c.JSON(resp)
}

// Balance proxies the processor's settlement balance. Admin only; this is
// the platform's balance, not a per-payee one.
func (h *PayeeHandler) Balance(c *fiber.Ctx) error {
	balance, err := h.gateway.GetBalance(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"available": balance.Available,
		"pending":   balance.Pending,
	})
}

func payeePayload(acct *models.PayeeAccount) fiber.Map {
	return fiber.Map{
		"id":                acct.ID,
		"bank_name":         acct.BankName,
		"account_number":    maskAccountNumber(acct.AccountNumber),
		"account_name":      acct.AccountName,
		"recipient_code":    acct.RecipientCode,
		"payouts_enabled":   acct.PayoutsEnabled,
		"details_submitted": acct.DetailsSubmitted,
		"status_checked_at": acct.StatusCheckedAt,
	}
}

func maskAccountNumber(n string) string {
	if len(n) <= 4 {
		return n
	}
	masked := make([]byte, len(n))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(n)-4:], n[len(n)-4:])
	return string(masked)
}
