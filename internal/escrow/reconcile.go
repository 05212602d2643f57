package escrow

import (
	"context"
	"fmt"
	"time"

	"Holdsafe/internal/models"
)

// Reconciler is the operator-facing repair path for reconciliation records
// left open by timeouts or failed ledger writes. The operator confirms the
// gateway's actual state out of band, then either replays the missing ledger
// entries or discards the record.
type Reconciler struct {
	store  Store
	ledger *Ledger
}

func NewReconciler(store Store, ledger *Ledger) *Reconciler {
	return &Reconciler{store: store, ledger: ledger}
}

// Open lists reconciliation records that still need attention.
func (r *Reconciler) Open(ctx context.Context) ([]models.Reconciliation, error) {
	return r.store.OpenReconciliations(ctx)
}

const (
	// ResolveConfirm: the gateway did execute the movement; write the
	// missing ledger entries.
	ResolveConfirm = "confirm"
	// ResolveDiscard: the gateway did not execute the movement; close the
	// record without touching the ledger.
	ResolveDiscard = "discard"
)

// Resolve closes an open reconciliation record. For confirm, the recorded
// amounts are appended through the ledger's validated write primitive, so a
// repair can never itself break an invariant.
func (r *Reconciler) Resolve(ctx context.Context, id uint, action, note string, resolvedBy uint) (*models.Reconciliation, error) {
	recon, err := r.store.Reconciliation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !recon.Open() {
		return nil, fmt.Errorf("reconciliation %d: %w", id, ErrAlreadyResolved)
	}

	switch action {
	case ResolveConfirm:
		if err := r.replayEntries(ctx, recon); err != nil {
			return nil, err
		}
		recon.Resolution = "operator confirmed gateway movement; ledger repaired"
	case ResolveDiscard:
		recon.Resolution = "operator confirmed no gateway movement; record discarded"
	default:
		return nil, fmt.Errorf("unknown resolve action %q: %w", action, ErrUnknownAction)
	}

	if note != "" {
		recon.Resolution = recon.Resolution + ": " + note
	}
	now := time.Now().UTC()
	recon.State = models.ReconResolved
	recon.ResolvedAt = &now
	recon.ResolvedBy = &resolvedBy
	if err := r.store.SaveReconciliation(ctx, recon); err != nil {
		return nil, err
	}
	return recon, nil
}

// replayEntries writes the recorded movement into the ledger in one locked
// transaction. Entries the order already carries for the same gateway
// reference are skipped, so a replay that raced or partially landed before
// can be retried without double-counting.
func (r *Reconciler) replayEntries(ctx context.Context, recon *models.Reconciliation) error {
	switch recon.Operation {
	case models.ReconRelease:
		toAppend := []*models.EscrowEntry{{
			OrderID:      recon.OrderID,
			MilestoneRef: recon.MilestoneRef,
			Type:         models.EntryRelease,
			Amount:       recon.Amount,
			ExternalRef:  recon.ExternalRef,
		}}
		if recon.Fee > 0 {
			toAppend = append(toAppend, &models.EscrowEntry{
				OrderID:      recon.OrderID,
				MilestoneRef: recon.MilestoneRef,
				Type:         models.EntryFeeDeduction,
				Amount:       recon.Fee,
				ExternalRef:  recon.ExternalRef,
			})
		}
		return r.ledger.AppendAll(ctx, toAppend)
	case models.ReconRefund:
		return r.ledger.Append(ctx, &models.EscrowEntry{
			OrderID:     recon.OrderID,
			Type:        models.EntryRefund,
			Amount:      recon.Amount,
			ExternalRef: recon.ExternalRef,
		})
	default:
		return fmt.Errorf("reconciliation %d has unknown operation %q: %w", recon.ID, recon.Operation, ErrLedgerInvariant)
	}
}
