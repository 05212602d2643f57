package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"Holdsafe/internal/models"
)

// Ledger owns the append-only entry log and the balance derivation. Append is
// the only write primitive; the coordinators build on it through the same
// per-order lock discipline.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Hold records that the buyer's payment for an order has been collected and
// is now held by the platform. Exactly one hold per order.
func (l *Ledger) Hold(ctx context.Context, orderID uint, amount int64, chargeRef string) (*models.EscrowEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("hold of %d: %w", amount, ErrInvalidAmount)
	}

	var entry *models.EscrowEntry
	err := l.store.WithOrderLock(ctx, orderID, func(tx Tx) error {
		entries, err := tx.Entries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Type == models.EntryHold {
				return fmt.Errorf("order %d: %w", orderID, ErrAlreadyHeld)
			}
		}

		entry = &models.EscrowEntry{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			Type:        models.EntryHold,
			Amount:      amount,
			ExternalRef: chargeRef,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Append(entry); err != nil {
			return err
		}
		if chargeRef != "" {
			if err := tx.SetChargeRef(chargeRef); err != nil {
				return err
			}
		}
		return tx.SetStatus(models.OrderHeld)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance derives the held/released/refunded/fees/remaining amounts for an
// order. Read-only; a corrupt log surfaces as ErrLedgerInvariant.
func (l *Ledger) Balance(ctx context.Context, orderID uint) (Balance, error) {
	entries, err := l.store.Entries(ctx, orderID)
	if err != nil {
		return Balance{}, err
	}
	return ComputeBalance(entries)
}

// Append validates and writes a single entry under the order lock, then
// reprojects the order status. This is the repair path operators use when
// resolving a reconciliation; hold/release/refund flows go through their
// dedicated operations.
func (l *Ledger) Append(ctx context.Context, entry *models.EscrowEntry) error {
	return l.AppendAll(ctx, []*models.EscrowEntry{entry})
}

// AppendAll validates and writes a group of entries for one order in a
// single locked transaction: either every entry lands or none do. An entry
// whose (type, external ref) pair already exists on the order is treated as
// already applied and skipped, so a repair replay can be retried safely.
func (l *Ledger) AppendAll(ctx context.Context, toAppend []*models.EscrowEntry) error {
	if len(toAppend) == 0 {
		return nil
	}
	orderID := toAppend[0].OrderID
	for _, entry := range toAppend {
		if entry.OrderID != orderID {
			return fmt.Errorf("entries span orders %d and %d: %w", orderID, entry.OrderID, ErrInvalidAmount)
		}
		if entry.Amount <= 0 {
			return fmt.Errorf("append of %d: %w", entry.Amount, ErrInvalidAmount)
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
	}

	return l.store.WithOrderLock(ctx, orderID, func(tx Tx) error {
		entries, err := tx.Entries()
		if err != nil {
			return err
		}
		for _, entry := range toAppend {
			if entry.ExternalRef != "" && hasEntry(entries, entry.Type, entry.ExternalRef) {
				continue
			}
			if err := validateAppend(entries, entry); err != nil {
				return err
			}
			if err := tx.Append(entry); err != nil {
				return err
			}
			entries = append(entries, *entry)
		}
		status, err := Project(entries)
		if err != nil {
			return err
		}
		return tx.SetStatus(status)
	})
}

func hasEntry(entries []models.EscrowEntry, typ models.EntryType, externalRef string) bool {
	for _, e := range entries {
		if e.Type == typ && e.ExternalRef == externalRef {
			return true
		}
	}
	return false
}

// validateAppend enforces ordering and balance bounds for a prospective
// entry against the existing log.
func validateAppend(entries []models.EscrowEntry, entry *models.EscrowEntry) error {
	b, err := ComputeBalance(entries)
	if err != nil {
		return err
	}

	switch entry.Type {
	case models.EntryHold:
		if b.Held > 0 {
			return fmt.Errorf("order %d: %w", entry.OrderID, ErrAlreadyHeld)
		}
	case models.EntryRelease, models.EntryRefund:
		if b.Held == 0 {
			return fmt.Errorf("%s before hold on order %d: %w", entry.Type, entry.OrderID, ErrHoldRequired)
		}
		if entry.Amount > b.Remaining {
			return fmt.Errorf("%s of %d exceeds remaining %d: %w", entry.Type, entry.Amount, b.Remaining, ErrInsufficientBalance)
		}
	case models.EntryFeeDeduction:
		if b.Released == 0 {
			return fmt.Errorf("order %d: %w", entry.OrderID, ErrFeeWithoutRelease)
		}
		if entry.Amount > b.Remaining {
			return fmt.Errorf("fee of %d exceeds remaining %d: %w", entry.Amount, b.Remaining, ErrInsufficientBalance)
		}
	default:
		return fmt.Errorf("unknown entry type %q: %w", entry.Type, ErrInvalidAmount)
	}
	return nil
}
