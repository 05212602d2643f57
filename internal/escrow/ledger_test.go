package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Holdsafe/internal/models"
)

func newTestOrder(id uint) models.Order {
	return models.Order{
		ID:       id,
		BuyerID:  10,
		PayeeID:  20,
		Currency: "ngn",
		Status:   models.OrderPending,
	}
}

func TestLedgerHold(t *testing.T) {
	st := newMemStore()
	st.addOrder(newTestOrder(1))
	ledger := NewLedger(st)

	entry, err := ledger.Hold(context.Background(), 1, 10000, "ch_abc")
	require.NoError(t, err)
	assert.Equal(t, models.EntryHold, entry.Type)
	assert.Equal(t, int64(10000), entry.Amount)
	assert.NotEmpty(t, entry.ID)

	order, err := st.Order(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderHeld, order.Status)
	assert.Equal(t, "ch_abc", order.ChargeRef)

	b, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), b.Held)
	assert.Equal(t, int64(10000), b.Remaining)
}

func TestLedgerHoldExactlyOnce(t *testing.T) {
	st := newMemStore()
	st.addOrder(newTestOrder(1))
	ledger := NewLedger(st)

	_, err := ledger.Hold(context.Background(), 1, 10000, "ch_abc")
	require.NoError(t, err)

	_, err = ledger.Hold(context.Background(), 1, 5000, "ch_def")
	assert.ErrorIs(t, err, ErrAlreadyHeld)

	entries, err := st.Entries(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedgerHoldRejectsBadInput(t *testing.T) {
	st := newMemStore()
	st.addOrder(newTestOrder(1))
	ledger := NewLedger(st)

	_, err := ledger.Hold(context.Background(), 1, 0, "ch_abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Hold(context.Background(), 1, -100, "ch_abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Hold(context.Background(), 99, 100, "ch_abc")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestLedgerAppendValidates(t *testing.T) {
	st := newMemStore()
	st.addOrder(newTestOrder(1))
	ledger := NewLedger(st)

	// Release before any hold is refused.
	err := ledger.Append(context.Background(), &models.EscrowEntry{
		OrderID: 1, Type: models.EntryRelease, Amount: 100,
	})
	assert.ErrorIs(t, err, ErrHoldRequired)

	_, err = ledger.Hold(context.Background(), 1, 10000, "ch_abc")
	require.NoError(t, err)

	// Fee with no release is refused.
	err = ledger.Append(context.Background(), &models.EscrowEntry{
		OrderID: 1, Type: models.EntryFeeDeduction, Amount: 100,
	})
	assert.ErrorIs(t, err, ErrFeeWithoutRelease)

	// Overdraw is refused.
	err = ledger.Append(context.Background(), &models.EscrowEntry{
		OrderID: 1, Type: models.EntryRelease, Amount: 10001,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// A valid release lands and reprojects the status.
	err = ledger.Append(context.Background(), &models.EscrowEntry{
		OrderID: 1, Type: models.EntryRelease, Amount: 4000,
	})
	require.NoError(t, err)

	order, err := st.Order(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPartialRelease, order.Status)
}

func TestLedgerAppendFillsIDAndTimestamp(t *testing.T) {
	st := newMemStore()
	st.addOrder(newTestOrder(1))
	ledger := NewLedger(st)

	_, err := ledger.Hold(context.Background(), 1, 10000, "ch_abc")
	require.NoError(t, err)

	e := &models.EscrowEntry{OrderID: 1, Type: models.EntryRelease, Amount: 100}
	require.NoError(t, ledger.Append(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
}
