package escrow

import (
	"context"

	"Holdsafe/internal/models"
)

// Tx is the view of one order while its row lock is held. Everything done
// through a Tx commits or rolls back atomically with the lock release.
type Tx interface {
	Order() *models.Order
	Entries() ([]models.EscrowEntry, error)
	Append(entry *models.EscrowEntry) error
	SetStatus(status models.OrderStatus) error
	SetChargeRef(ref string) error
	SaveReconciliation(rec *models.Reconciliation) error
}

// Store is the persistence boundary of the ledger core. The gorm
// implementation lives in internal/store; tests use an in-memory fake.
type Store interface {
	// WithOrderLock runs fn while holding an exclusive lock on the order.
	// All mutations for one order serialize through here; the lock is never
	// held across a gateway call.
	WithOrderLock(ctx context.Context, orderID uint, fn func(tx Tx) error) error

	Order(ctx context.Context, orderID uint) (*models.Order, error)
	Entries(ctx context.Context, orderID uint) ([]models.EscrowEntry, error)

	PayeeAccount(ctx context.Context, payeeID uint) (*models.PayeeAccount, error)
	SavePayeeAccount(ctx context.Context, acct *models.PayeeAccount) error

	// SaveReconciliation persists reconciliation state transitions that
	// happen outside the order lock (after a gateway call settles).
	SaveReconciliation(ctx context.Context, rec *models.Reconciliation) error
	Reconciliation(ctx context.Context, id uint) (*models.Reconciliation, error)
	OpenReconciliations(ctx context.Context) ([]models.Reconciliation, error)
}
