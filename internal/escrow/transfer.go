package escrow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"Holdsafe/internal/gateway"
	"Holdsafe/internal/models"
)

// TransferCoordinator orchestrates releases: payee readiness, fee split,
// gateway transfer, ledger entries, status reprojection. The order lock is
// never held across the gateway call; the balance is validated before the
// call and re-validated before the write.
type TransferCoordinator struct {
	store      Store
	gateway    gateway.PaymentGateway
	feePercent float64
	timeout    time.Duration
}

func NewTransferCoordinator(store Store, gw gateway.PaymentGateway, feePercent float64, timeout time.Duration) *TransferCoordinator {
	return &TransferCoordinator{store: store, gateway: gw, feePercent: feePercent, timeout: timeout}
}

type ReleaseResult struct {
	TransferRef string              `json:"transfer_ref"`
	ReleaseTx   *models.EscrowEntry `json:"release_tx"`
	FeeTx       *models.EscrowEntry `json:"fee_tx,omitempty"`
	Status      models.OrderStatus  `json:"status"`
}

// Release moves amount (gross, minor units) of an order's held funds to the
// payee, net of the platform fee. The bound against the remaining balance is
// enforced here on every call path, not only in ReleaseAll.
func (tc *TransferCoordinator) Release(ctx context.Context, orderID uint, amount int64, milestoneRef string) (*ReleaseResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("release of %d: %w", amount, ErrInvalidAmount)
	}

	order, err := tc.store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := ValidateCurrency(order.Currency); err != nil {
		return nil, err
	}

	payee, err := tc.payoutReadyPayee(ctx, order.PayeeID)
	if err != nil {
		return nil, err
	}

	fee, err := CalculateFee(amount, tc.feePercent)
	if err != nil {
		return nil, err
	}
	payeeAmount := amount - fee
	if payeeAmount <= 0 {
		return nil, fmt.Errorf("release of %d leaves nothing after fee %d: %w", amount, fee, ErrInvalidAmount)
	}

	idemKey := IdempotencyKey(orderID, models.ReconRelease, milestoneRef, amount)
	recon := &models.Reconciliation{
		OrderID:        orderID,
		Operation:      models.ReconRelease,
		MilestoneRef:   milestoneRef,
		Amount:         payeeAmount,
		Fee:            fee,
		Currency:       order.Currency,
		IdempotencyKey: idemKey,
		State:          models.ReconPending,
	}

	// Phase 1: validate under the order lock and durably record the intent
	// to move money before any external call.
	err = tc.store.WithOrderLock(ctx, orderID, func(tx Tx) error {
		entries, err := tx.Entries()
		if err != nil {
			return err
		}
		b, err := ComputeBalance(entries)
		if err != nil {
			return err
		}
		if b.Held == 0 {
			return fmt.Errorf("release before hold on order %d: %w", orderID, ErrHoldRequired)
		}
		if amount > b.Remaining {
			return fmt.Errorf("release of %d exceeds remaining %d: %w", amount, b.Remaining, ErrInsufficientBalance)
		}
		return tx.SaveReconciliation(recon)
	})
	if err != nil {
		return nil, err
	}

	// Gateway call outside the lock, bounded by its own timeout.
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	transfer, err := tc.gateway.Transfer(callCtx, gateway.TransferRequest{
		Amount:         payeeAmount,
		Currency:       order.Currency,
		RecipientCode:  payee.RecipientCode,
		Reason:         fmt.Sprintf("escrow release for order %d", orderID),
		IdempotencyKey: idemKey,
	})
	if err != nil {
		tc.settleFailedCall(ctx, recon, err)
		return nil, external("transfer", err)
	}

	// Phase 2: re-acquire the lock, re-validate, write both entries and
	// resolve the reconciliation record in one transaction.
	releaseTx := &models.EscrowEntry{
		ID:           uuid.NewString(),
		OrderID:      orderID,
		MilestoneRef: milestoneRef,
		Type:         models.EntryRelease,
		Amount:       payeeAmount,
		ExternalRef:  transfer.Ref,
		CreatedAt:    time.Now().UTC(),
	}
	var feeTx *models.EscrowEntry
	if fee > 0 {
		feeTx = &models.EscrowEntry{
			ID:           uuid.NewString(),
			OrderID:      orderID,
			MilestoneRef: milestoneRef,
			Type:         models.EntryFeeDeduction,
			Amount:       fee,
			ExternalRef:  transfer.Ref,
			CreatedAt:    time.Now().UTC(),
		}
	}

	var status models.OrderStatus
	err = tc.store.WithOrderLock(ctx, orderID, func(tx Tx) error {
		entries, err := tx.Entries()
		if err != nil {
			return err
		}
		b, err := ComputeBalance(entries)
		if err != nil {
			return err
		}
		if amount > b.Remaining {
			return fmt.Errorf("balance moved from %d during transfer: %w", b.Remaining, ErrBalanceConflict)
		}

		if err := tx.Append(releaseTx); err != nil {
			return err
		}
		entries = append(entries, *releaseTx)
		if feeTx != nil {
			if err := tx.Append(feeTx); err != nil {
				return err
			}
			entries = append(entries, *feeTx)
		}

		status, err = Project(entries)
		if err != nil {
			return err
		}
		if err := tx.SetStatus(status); err != nil {
			return err
		}

		now := time.Now().UTC()
		recon.State = models.ReconResolved
		recon.ExternalRef = transfer.Ref
		recon.Resolution = "transfer and ledger write completed"
		recon.ResolvedAt = &now
		return tx.SaveReconciliation(recon)
	})
	if err != nil {
		// The gateway moved the money but the ledger write did not land.
		// The reconciliation record stays open for operator repair.
		tc.markWriteFailed(ctx, recon, transfer.Ref, err)
		if KindOf(err) == KindConflict {
			return nil, fmt.Errorf("reconciliation record %d is open: %w", recon.ID, err)
		}
		return nil, reconciliationPending(recon.ID, err)
	}

	return &ReleaseResult{
		TransferRef: transfer.Ref,
		ReleaseTx:   releaseTx,
		FeeTx:       feeTx,
		Status:      status,
	}, nil
}

// ReleaseAll releases whatever remains held on the order.
func (tc *TransferCoordinator) ReleaseAll(ctx context.Context, orderID uint) (*ReleaseResult, error) {
	entries, err := tc.store.Entries(ctx, orderID)
	if err != nil {
		return nil, err
	}
	b, err := ComputeBalance(entries)
	if err != nil {
		return nil, err
	}
	if b.Remaining <= 0 {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNothingToRelease)
	}
	return tc.Release(ctx, orderID, b.Remaining, "")
}

// payoutReadyPayee loads the payee and refreshes the cached readiness flag
// from the gateway. A failed status check falls back to the cached flag.
func (tc *TransferCoordinator) payoutReadyPayee(ctx context.Context, payeeID uint) (*models.PayeeAccount, error) {
	payee, err := tc.store.PayeeAccount(ctx, payeeID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	if status, err := tc.gateway.GetAccountStatus(callCtx, payee.RecipientCode); err != nil {
		log.Printf("WARN: payee %d status check failed, using cached readiness: %v", payeeID, err)
	} else {
		now := time.Now().UTC()
		payee.PayoutsEnabled = status.PayoutsEnabled
		payee.DetailsSubmitted = status.DetailsSubmitted
		payee.StatusCheckedAt = &now
		if err := tc.store.SavePayeeAccount(ctx, payee); err != nil {
			log.Printf("WARN: failed to persist payee %d status: %v", payeeID, err)
		}
	}

	if !payee.PayoutsEnabled {
		return nil, fmt.Errorf("payee %d: %w", payeeID, ErrPayeeNotReady)
	}
	return payee, nil
}

// settleFailedCall records the outcome of a failed gateway call. A definitive
// decline closes the record (no money moved, no entries written); a timeout
// leaves it open as unknown.
func (tc *TransferCoordinator) settleFailedCall(ctx context.Context, recon *models.Reconciliation, callErr error) {
	if gateway.IsTimeout(callErr) {
		recon.State = models.ReconUnknownOutcome
		recon.Detail = fmt.Sprintf("gateway call timed out, outcome unknown: %v", callErr)
	} else {
		now := time.Now().UTC()
		recon.State = models.ReconResolved
		recon.Detail = fmt.Sprintf("gateway declined: %v", callErr)
		recon.Resolution = "declined by gateway; no ledger entries written"
		recon.ResolvedAt = &now
	}
	if err := tc.store.SaveReconciliation(ctx, recon); err != nil {
		log.Printf("CRITICAL: failed to update reconciliation %d after gateway failure: %v", recon.ID, err)
	}
}

func (tc *TransferCoordinator) markWriteFailed(ctx context.Context, recon *models.Reconciliation, externalRef string, writeErr error) {
	recon.State = models.ReconLedgerWriteFailed
	recon.ExternalRef = externalRef
	recon.Detail = fmt.Sprintf("gateway confirmed but ledger write failed: %v", writeErr)
	if err := tc.store.SaveReconciliation(ctx, recon); err != nil {
		log.Printf("CRITICAL: reconciliation %d could not be marked ledger_write_failed: %v", recon.ID, err)
	}
}
