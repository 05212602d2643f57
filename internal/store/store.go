package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Holdsafe/internal/escrow"
	"Holdsafe/internal/models"
)

// Store is the gorm-backed implementation of escrow.Store. Per-order
// serialization comes from a SELECT ... FOR UPDATE on the order row inside a
// database transaction; every mutation for an order funnels through that lock.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithOrderLock(ctx context.Context, orderID uint, fn func(tx escrow.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, orderID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, escrow.ErrOrderNotFound)
			}
			return err
		}
		return fn(&orderTx{tx: tx, order: &order})
	})
}

func (s *Store) Order(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", orderID, escrow.ErrOrderNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Store) Entries(ctx context.Context, orderID uint) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) PayeeAccount(ctx context.Context, payeeID uint) (*models.PayeeAccount, error) {
	var acct models.PayeeAccount
	if err := s.db.WithContext(ctx).Where("user_id = ?", payeeID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payee %d: %w", payeeID, escrow.ErrPayeeNotFound)
		}
		return nil, err
	}
	return &acct, nil
}

func (s *Store) SavePayeeAccount(ctx context.Context, acct *models.PayeeAccount) error {
	return s.db.WithContext(ctx).Save(acct).Error
}

func (s *Store) SaveReconciliation(ctx context.Context, rec *models.Reconciliation) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("idempotency key %s: %w", rec.IdempotencyKey, escrow.ErrBalanceConflict)
		}
		return err
	}
	return nil
}

func (s *Store) Reconciliation(ctx context.Context, id uint) (*models.Reconciliation, error) {
	var rec models.Reconciliation
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reconciliation %d: %w", id, escrow.ErrReconciliationNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) OpenReconciliations(ctx context.Context) ([]models.Reconciliation, error) {
	var recs []models.Reconciliation
	err := s.db.WithContext(ctx).
		Where("state <> ?", models.ReconResolved).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// orderTx is the locked view of one order. All writes ride on the enclosing
// gorm transaction and commit together with the lock release.
type orderTx struct {
	tx    *gorm.DB
	order *models.Order
}

func (t *orderTx) Order() *models.Order {
	return t.order
}

func (t *orderTx) Entries() ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := t.tx.
		Where("order_id = ?", t.order.ID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *orderTx) Append(entry *models.EscrowEntry) error {
	return t.tx.Create(entry).Error
}

func (t *orderTx) SetStatus(status models.OrderStatus) error {
	t.order.Status = status
	return t.tx.Model(t.order).Update("status", status).Error
}

func (t *orderTx) SetChargeRef(ref string) error {
	t.order.ChargeRef = ref
	return t.tx.Model(t.order).Update("charge_ref", ref).Error
}

// SaveReconciliation inserts or updates a reconciliation record. A new
// record whose idempotency key is already taken means the same logical
// movement was attempted before: an open or gateway-confirmed row blocks the
// caller with a conflict, while a row the gateway never executed (declined,
// or discarded by an operator) is reused for the retry.
func (t *orderTx) SaveReconciliation(rec *models.Reconciliation) error {
	if rec.ID == 0 {
		var existing models.Reconciliation
		err := t.tx.Where("idempotency_key = ?", rec.IdempotencyKey).First(&existing).Error
		switch {
		case err == nil:
			if existing.Open() || existing.ExternalRef != "" {
				return fmt.Errorf("reconciliation %d already holds idempotency key %s: %w",
					existing.ID, rec.IdempotencyKey, escrow.ErrBalanceConflict)
			}
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}
	if err := t.tx.Save(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("idempotency key %s: %w", rec.IdempotencyKey, escrow.ErrBalanceConflict)
		}
		return err
	}
	return nil
}
