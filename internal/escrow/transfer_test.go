package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Holdsafe/internal/gateway"
	"Holdsafe/internal/models"
)

func heldOrderStore(t *testing.T, held int64) *memStore {
	t.Helper()
	st := newMemStore()
	order := newTestOrder(1)
	order.Status = models.OrderHeld
	order.ChargeRef = "ch_abc"
	st.addOrder(order)
	st.addPayee(models.PayeeAccount{
		UserID:         20,
		RecipientCode:  "RCP_test",
		PayoutsEnabled: true,
	})
	st.seedEntries(1, entry(1, models.EntryHold, held))
	return st
}

func newTransfers(st *memStore, gw *stubGateway, feePercent float64) *TransferCoordinator {
	return NewTransferCoordinator(st, gw, feePercent, time.Second)
}

func TestReleaseFullWithFee(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	result, err := tc.Release(context.Background(), 1, 10000, "")
	require.NoError(t, err)

	assert.Equal(t, int64(9200), result.ReleaseTx.Amount)
	require.NotNil(t, result.FeeTx)
	assert.Equal(t, int64(800), result.FeeTx.Amount)
	assert.Equal(t, models.OrderReleased, result.Status)

	// The payee receives the net amount.
	require.Len(t, gw.transfers, 1)
	assert.Equal(t, int64(9200), gw.transfers[0].Amount)
	assert.Equal(t, "RCP_test", gw.transfers[0].RecipientCode)

	b, err := NewLedger(st).Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Remaining)

	// The reconciliation record opened for the movement is closed again.
	open, err := st.OpenReconciliations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReleasePartialMilestone(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	result, err := tc.Release(context.Background(), 1, 3000, "milestone-1")
	require.NoError(t, err)

	assert.Equal(t, int64(2760), result.ReleaseTx.Amount)
	assert.Equal(t, int64(240), result.FeeTx.Amount)
	assert.Equal(t, "milestone-1", result.ReleaseTx.MilestoneRef)
	assert.Equal(t, models.OrderPartialRelease, result.Status)

	b, err := NewLedger(st).Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), b.Remaining)
}

func TestReleaseZeroFeeRate(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 0)

	result, err := tc.Release(context.Background(), 1, 3000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), result.ReleaseTx.Amount)
	assert.Nil(t, result.FeeTx)
}

func TestReleaseBoundsEveryCall(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 12000, "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Nothing reached the gateway and nothing landed in the log.
	assert.Empty(t, gw.transfers)
	entries, _ := st.Entries(context.Background(), 1)
	assert.Len(t, entries, 1)

	// The bound applies to what remains, not the original hold.
	_, err = tc.Release(context.Background(), 1, 6000, "")
	require.NoError(t, err)
	_, err = tc.Release(context.Background(), 1, 6000, "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestReleaseRejectsBadInput(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = tc.Release(context.Background(), 1, -500, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = tc.Release(context.Background(), 42, 500, "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestReleaseBeforeHold(t *testing.T) {
	st := newMemStore()
	st.addOrder(newTestOrder(1))
	st.addPayee(models.PayeeAccount{UserID: 20, RecipientCode: "RCP_test", PayoutsEnabled: true})
	tc := newTransfers(st, &stubGateway{}, 8)

	_, err := tc.Release(context.Background(), 1, 1000, "")
	assert.ErrorIs(t, err, ErrHoldRequired)
}

func TestReleaseSwallowedByFee(t *testing.T) {
	st := heldOrderStore(t, 10000)
	tc := newTransfers(st, &stubGateway{}, 100)

	_, err := tc.Release(context.Background(), 1, 1000, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestReleasePayeeNotReady(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{
		statusFn: func(ctx context.Context, code string) (*gateway.AccountStatus, error) {
			return &gateway.AccountStatus{PayoutsEnabled: false, DetailsSubmitted: true}, nil
		},
	}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 1000, "")
	assert.ErrorIs(t, err, ErrPayeeNotReady)
	assert.Empty(t, gw.transfers)

	// The refreshed readiness is persisted.
	payee, err := st.PayeeAccount(context.Background(), 20)
	require.NoError(t, err)
	assert.False(t, payee.PayoutsEnabled)
}

func TestReleaseGatewayDecline(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{
		transferFn: func(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
			return nil, &gateway.Error{StatusCode: 400, Code: "declined", Message: "insufficient funds"}
		},
	}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 1000, "")
	require.Error(t, err)
	assert.Equal(t, KindExternal, KindOf(err))

	// A definitive decline leaves no entries and no open reconciliation.
	entries, _ := st.Entries(context.Background(), 1)
	assert.Len(t, entries, 1)
	open, _ := st.OpenReconciliations(context.Background())
	assert.Empty(t, open)
}

func TestReleaseGatewayTimeoutOpensReconciliation(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{
		transferFn: func(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
			return nil, &gateway.Error{Message: "deadline exceeded", Timeout: true}
		},
	}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 1000, "")
	require.Error(t, err)
	assert.Equal(t, KindExternal, KindOf(err))

	// The outcome is unknown: no entries, but the record stays open for an
	// operator to settle.
	entries, _ := st.Entries(context.Background(), 1)
	assert.Len(t, entries, 1)

	open, err := st.OpenReconciliations(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ReconUnknownOutcome, open[0].State)
	assert.Equal(t, models.ReconRelease, open[0].Operation)
	assert.Equal(t, int64(920), open[0].Amount)
	assert.Equal(t, int64(80), open[0].Fee)
}

func TestReleaseLedgerWriteFailure(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	st.appendErr = assert.AnError

	_, err := tc.Release(context.Background(), 1, 1000, "")
	require.Error(t, err)
	assert.Equal(t, "reconciliation_pending", CodeOf(err))

	// The transfer went out but the ledger did not record it. The record
	// carries the gateway reference for the operator.
	require.Len(t, gw.transfers, 1)
	entries, _ := st.Entries(context.Background(), 1)
	assert.Len(t, entries, 1)

	open, err := st.OpenReconciliations(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ReconLedgerWriteFailed, open[0].State)
	assert.NotEmpty(t, open[0].ExternalRef)
}

func TestReleaseAll(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 3000, "milestone-1")
	require.NoError(t, err)

	result, err := tc.ReleaseAll(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6440), result.ReleaseTx.Amount)
	assert.Equal(t, int64(560), result.FeeTx.Amount)
	assert.Equal(t, models.OrderReleased, result.Status)

	_, err = tc.ReleaseAll(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNothingToRelease)
}

func TestReleaseAllMatchesExplicitRelease(t *testing.T) {
	// Releasing everything in one call and releasing the same amount
	// explicitly must split funds identically.
	for _, held := range []int64{100, 9999, 10000, 123457} {
		stAll := heldOrderStore(t, held)
		gwAll := &stubGateway{}
		all, err := newTransfers(stAll, gwAll, 8).ReleaseAll(context.Background(), 1)
		require.NoError(t, err)

		stOne := heldOrderStore(t, held)
		gwOne := &stubGateway{}
		one, err := newTransfers(stOne, gwOne, 8).Release(context.Background(), 1, held, "")
		require.NoError(t, err)

		assert.Equal(t, one.ReleaseTx.Amount, all.ReleaseTx.Amount)
		assert.Equal(t, feeAmountOf(one), feeAmountOf(all))
		assert.Equal(t, one.Status, all.Status)

		require.Len(t, gwAll.transfers, 1)
		require.Len(t, gwOne.transfers, 1)
		assert.Equal(t, gwOne.transfers[0].Amount, gwAll.transfers[0].Amount)

		bAll, err := NewLedger(stAll).Balance(context.Background(), 1)
		require.NoError(t, err)
		bOne, err := NewLedger(stOne).Balance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, bOne, bAll)
		assert.Zero(t, bAll.Remaining)
	}
}

func feeAmountOf(r *ReleaseResult) int64 {
	if r.FeeTx == nil {
		return 0
	}
	return r.FeeTx.Amount
}

func TestReleaseRepeatOfSameMovementConflicts(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 3000, "milestone-1")
	require.NoError(t, err)

	// The same (order, milestone, amount) movement already executed; a
	// repeat is a conflict, not a second transfer.
	_, err = tc.Release(context.Background(), 1, 3000, "milestone-1")
	assert.ErrorIs(t, err, ErrBalanceConflict)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Len(t, gw.transfers, 1)

	b, err := NewLedger(st).Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2760), b.Released)
}

func TestReleaseRetryAfterDeclineReusesRecord(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{
		transferFn: func(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
			return nil, &gateway.Error{StatusCode: 400, Code: "declined", Message: "insufficient funds"}
		},
	}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 3000, "milestone-1")
	require.Error(t, err)

	// The decline closed the record without a gateway reference, so the
	// retry may take the same idempotency key again.
	gw.transferFn = nil
	result, err := tc.Release(context.Background(), 1, 3000, "milestone-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2760), result.ReleaseTx.Amount)

	// Both attempts share one record; the retry overwrote the declined one.
	st.mu.Lock()
	var withKey []*models.Reconciliation
	key := IdempotencyKey(1, models.ReconRelease, "milestone-1", 3000)
	for _, rec := range st.recons {
		if rec.IdempotencyKey == key {
			withKey = append(withKey, rec)
		}
	}
	st.mu.Unlock()
	require.Len(t, withKey, 1)
	assert.Equal(t, models.ReconResolved, withKey[0].State)
	assert.NotEmpty(t, withKey[0].ExternalRef)
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	k1 := IdempotencyKey(1, models.ReconRelease, "milestone-1", 3000)
	k2 := IdempotencyKey(1, models.ReconRelease, "milestone-1", 3000)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, IdempotencyKey(1, models.ReconRelease, "milestone-1", 3001))
	assert.NotEqual(t, k1, IdempotencyKey(2, models.ReconRelease, "milestone-1", 3000))
	assert.NotEqual(t, k1, IdempotencyKey(1, models.ReconRefund, "milestone-1", 3000))
	assert.NotEqual(t, k1, IdempotencyKey(1, models.ReconRelease, "milestone-2", 3000))
}

func TestReleaseSendsIdempotencyKey(t *testing.T) {
	st := heldOrderStore(t, 10000)
	gw := &stubGateway{}
	tc := newTransfers(st, gw, 8)

	_, err := tc.Release(context.Background(), 1, 3000, "milestone-1")
	require.NoError(t, err)

	require.Len(t, gw.transfers, 1)
	want := IdempotencyKey(1, models.ReconRelease, "milestone-1", 3000)
	assert.Equal(t, want, gw.transfers[0].IdempotencyKey)
}
