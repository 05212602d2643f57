package escrow

import (
	"Holdsafe/internal/models"
)

// Project derives the coarse order status from the entry log. Pure and
// idempotent; persisting the result is the caller's caching concern.
func Project(entries []models.EscrowEntry) (models.OrderStatus, error) {
	if len(entries) == 0 {
		return models.OrderPending, nil
	}
	b, err := ComputeBalance(entries)
	if err != nil {
		return "", err
	}
	switch {
	case b.Released == 0 && b.Fees == 0 && b.Refunded == 0:
		return models.OrderHeld, nil
	case b.Remaining > 0:
		return models.OrderPartialRelease, nil
	case b.Refunded > 0:
		// Covers both a straight refund and a partial release followed by a
		// refund of the remainder.
		return models.OrderRefunded, nil
	default:
		return models.OrderReleased, nil
	}
}
