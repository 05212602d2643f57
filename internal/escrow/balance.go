package escrow

import (
	"fmt"

	"Holdsafe/internal/models"
)

// Balance is the derivation of an order's entry log into the amounts callers
// care about. All values are minor units.
type Balance struct {
	Held      int64 `json:"held"`
	Released  int64 `json:"released"`
	Refunded  int64 `json:"refunded"`
	Fees      int64 `json:"fees"`
	Remaining int64 `json:"remaining"`
}

// ComputeBalance folds an order's entries into a Balance. It fails loudly
// with ErrLedgerInvariant instead of clamping: a negative remaining or a fee
// with no matching release means the log is corrupt and the order must stop
// accepting mutations.
func ComputeBalance(entries []models.EscrowEntry) (Balance, error) {
	var b Balance
	for _, e := range entries {
		if e.Amount <= 0 {
			return Balance{}, fmt.Errorf("entry %s has non-positive amount %d: %w", e.ID, e.Amount, ErrLedgerInvariant)
		}
		switch e.Type {
		case models.EntryHold:
			b.Held += e.Amount
		case models.EntryRelease:
			b.Released += e.Amount
		case models.EntryFeeDeduction:
			b.Fees += e.Amount
		case models.EntryRefund:
			b.Refunded += e.Amount
		default:
			return Balance{}, fmt.Errorf("entry %s has unknown type %q: %w", e.ID, e.Type, ErrLedgerInvariant)
		}
	}

	b.Remaining = b.Held - b.Released - b.Fees - b.Refunded
	if b.Remaining < 0 {
		return Balance{}, fmt.Errorf("remaining balance %d is negative: %w", b.Remaining, ErrLedgerInvariant)
	}
	if b.Fees > 0 && b.Released == 0 {
		return Balance{}, fmt.Errorf("fees %d recorded with no release: %w", b.Fees, ErrLedgerInvariant)
	}
	return b, nil
}
