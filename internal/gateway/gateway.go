package gateway

import (
	"context"
	"errors"
	"fmt"
)

// PaymentGateway abstracts charge collection, payouts, refunds and account
// queries against the external processor. All amounts are integers in the
// currency's minor unit; currency codes arrive lowercase ISO-4217 and the
// adapter upcases them where the processor's API requires it.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	VerifyCharge(ctx context.Context, chargeRef string) (*Charge, error)
	Transfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	CreateRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error)
	GetAccountStatus(ctx context.Context, recipientCode string) (*AccountStatus, error)

	// GetBalance reports the platform's own settlement balance with the
	// processor, per currency. Pending is populated only by processors
	// that expose a pending/available split.
	GetBalance(ctx context.Context) (*AccountBalance, error)
}

type ChargeRequest struct {
	Amount    int64
	Currency  string
	Email     string
	Reference string
	Metadata  map[string]string
}

type Charge struct {
	Ref          string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Paid         bool
}

type TransferRequest struct {
	Amount        int64
	Currency      string
	RecipientCode string
	Reason        string
	// IdempotencyKey doubles as the transfer reference: the processor
	// deduplicates on it, so a retried call returns the original transfer.
	IdempotencyKey string
}

type Transfer struct {
	Ref      string
	Amount   int64
	Currency string
	Status   string
}

type RefundRequest struct {
	ChargeRef      string
	Amount         int64 // 0 means full refund of the charge
	IdempotencyKey string
}

type Refund struct {
	Ref    string
	Amount int64
	Status string
}

type RecipientRequest struct {
	AccountName   string
	AccountNumber string
	BankCode      string
	Currency      string
}

type Recipient struct {
	Code   string
	Active bool
}

type AccountStatus struct {
	PayoutsEnabled          bool
	ChargesEnabled          bool
	DetailsSubmitted        bool
	OutstandingRequirements []string
}

type AccountBalance struct {
	Available map[string]int64
	Pending   map[string]int64
}

// Error is a failure reported by (or on the way to) the processor. Timeout
// marks an unknown outcome: the request may have been executed, so callers
// must reconcile rather than assume failure.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Timeout    bool
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("gateway timeout (outcome unknown): %s", e.Message)
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// IsTimeout reports whether err represents an unknown-outcome failure.
func IsTimeout(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Timeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}
