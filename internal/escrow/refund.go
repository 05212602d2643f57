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

// RefundCoordinator orchestrates refunds back to the buyer, under the same
// two-phase lock/reconciliation discipline as releases.
type RefundCoordinator struct {
	store   Store
	gateway gateway.PaymentGateway
	timeout time.Duration
}

func NewRefundCoordinator(store Store, gw gateway.PaymentGateway, timeout time.Duration) *RefundCoordinator {
	return &RefundCoordinator{store: store, gateway: gw, timeout: timeout}
}

type RefundResult struct {
	RefundRef string              `json:"refund_ref"`
	RefundTx  *models.EscrowEntry `json:"refund_tx"`
	Status    models.OrderStatus  `json:"status"`
}

// Refund returns held funds to the buyer. amount == 0 means the full
// original charge, which is only possible while nothing has been released;
// once funds have moved to the payee a full refund is a clawback and is
// rejected here. Partial refunds are bounded by the remaining balance.
func (rc *RefundCoordinator) Refund(ctx context.Context, orderID uint, amount int64) (*RefundResult, error) {
	if amount < 0 {
		return nil, fmt.Errorf("refund of %d: %w", amount, ErrInvalidAmount)
	}

	order, err := rc.store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := ValidateCurrency(order.Currency); err != nil {
		return nil, err
	}
	if order.ChargeRef == "" {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrChargeMissing)
	}

	idemKey := IdempotencyKey(orderID, models.ReconRefund, "", amount)
	recon := &models.Reconciliation{
		OrderID:        orderID,
		Operation:      models.ReconRefund,
		Currency:       order.Currency,
		IdempotencyKey: idemKey,
		State:          models.ReconPending,
	}

	// Phase 1: resolve the effective amount and validate under the lock.
	var refundAmount int64
	err = rc.store.WithOrderLock(ctx, orderID, func(tx Tx) error {
		entries, err := tx.Entries()
		if err != nil {
			return err
		}
		b, err := ComputeBalance(entries)
		if err != nil {
			return err
		}
		if b.Held == 0 {
			return fmt.Errorf("refund before hold on order %d: %w", orderID, ErrHoldRequired)
		}
		if b.Remaining == 0 {
			return fmt.Errorf("order %d: %w", orderID, ErrNothingToRefund)
		}

		refundAmount = amount
		if refundAmount == 0 {
			if b.Released > 0 || b.Fees > 0 {
				return fmt.Errorf("order %d already released %d: %w", orderID, b.Released, ErrClawbackRequired)
			}
			refundAmount = b.Held
		}
		if refundAmount > b.Remaining {
			return fmt.Errorf("refund of %d exceeds remaining %d: %w", refundAmount, b.Remaining, ErrInsufficientBalance)
		}

		recon.Amount = refundAmount
		return tx.SaveReconciliation(recon)
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	refund, err := rc.gateway.Refund(callCtx, gateway.RefundRequest{
		ChargeRef:      order.ChargeRef,
		Amount:         refundAmount,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		rc.settleFailedCall(ctx, recon, err)
		return nil, external("refund", err)
	}

	// Phase 2: re-validate and commit the refund entry with the
	// reconciliation resolution.
	refundTx := &models.EscrowEntry{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Type:        models.EntryRefund,
		Amount:      refundAmount,
		ExternalRef: refund.Ref,
		CreatedAt:   time.Now().UTC(),
	}

	var status models.OrderStatus
	err = rc.store.WithOrderLock(ctx, orderID, func(tx Tx) error {
		entries, err := tx.Entries()
		if err != nil {
			return err
		}
		b, err := ComputeBalance(entries)
		if err != nil {
			return err
		}
		if refundAmount > b.Remaining {
			return fmt.Errorf("balance moved from %d during refund: %w", b.Remaining, ErrBalanceConflict)
		}

		if err := tx.Append(refundTx); err != nil {
			return err
		}
		status, err = Project(append(entries, *refundTx))
		if err != nil {
			return err
		}
		if err := tx.SetStatus(status); err != nil {
			return err
		}

		now := time.Now().UTC()
		recon.State = models.ReconResolved
		recon.ExternalRef = refund.Ref
		recon.Resolution = "refund and ledger write completed"
		recon.ResolvedAt = &now
		return tx.SaveReconciliation(recon)
	})
	if err != nil {
		rc.markWriteFailed(ctx, recon, refund.Ref, err)
		if KindOf(err) == KindConflict {
			return nil, fmt.Errorf("reconciliation record %d is open: %w", recon.ID, err)
		}
		return nil, reconciliationPending(recon.ID, err)
	}

	return &RefundResult{
		RefundRef: refund.Ref,
		RefundTx:  refundTx,
		Status:    status,
	}, nil
}

func (rc *RefundCoordinator) settleFailedCall(ctx context.Context, recon *models.Reconciliation, callErr error) {
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
	if err := rc.store.SaveReconciliation(ctx, recon); err != nil {
		log.Printf("CRITICAL: failed to update reconciliation %d after gateway failure: %v", recon.ID, err)
	}
}

func (rc *RefundCoordinator) markWriteFailed(ctx context.Context, recon *models.Reconciliation, externalRef string, writeErr error) {
	recon.State = models.ReconLedgerWriteFailed
	recon.ExternalRef = externalRef
	recon.Detail = fmt.Sprintf("gateway confirmed but ledger write failed: %v", writeErr)
	if err := rc.store.SaveReconciliation(ctx, recon); err != nil {
		log.Printf("CRITICAL: reconciliation %d could not be marked ledger_write_failed: %v", recon.ID, err)
	}
}
