package escrow

import (
	"context"
	"fmt"
	"sync"

	"Holdsafe/internal/gateway"
	"Holdsafe/internal/models"
)

// memStore is the in-memory Store used across the package tests. It keeps
// the same transactional shape as the gorm store: writes made through a Tx
// are buffered and commit only when fn returns nil, and all mutations for
// one order serialize on a per-order mutex.
type memStore struct {
	mu      sync.Mutex
	locks   map[uint]*sync.Mutex
	orders  map[uint]*models.Order
	entries map[uint][]models.EscrowEntry
	payees  map[uint]*models.PayeeAccount
	recons  map[uint]*models.Reconciliation
	nextID  uint

	// appendErr, when set, makes every Tx.Append fail. Used to force the
	// gateway-succeeded/ledger-write-failed path. failAppend does the same
	// for selected entries only.
	appendErr  error
	failAppend func(entry *models.EscrowEntry) error
}

func newMemStore() *memStore {
	return &memStore{
		locks:   make(map[uint]*sync.Mutex),
		orders:  make(map[uint]*models.Order),
		entries: make(map[uint][]models.EscrowEntry),
		payees:  make(map[uint]*models.PayeeAccount),
		recons:  make(map[uint]*models.Reconciliation),
	}
}

func (s *memStore) addOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.orders[o.ID] = &cp
}

func (s *memStore) addPayee(p models.PayeeAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.payees[p.UserID] = &cp
}

func (s *memStore) seedEntries(orderID uint, entries ...models.EscrowEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[orderID] = append(s.entries[orderID], entries...)
}

func (s *memStore) orderLock(orderID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[orderID]; !ok {
		s.locks[orderID] = &sync.Mutex{}
	}
	return s.locks[orderID]
}

func (s *memStore) WithOrderLock(ctx context.Context, orderID uint, fn func(tx Tx) error) error {
	lock := s.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	order, ok := s.orders[orderID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}

	tx := &memTx{store: s, order: order}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *memStore) Order(ctx context.Context, orderID uint) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	cp := *order
	return &cp, nil
}

func (s *memStore) Entries(ctx context.Context, orderID uint) ([]models.EscrowEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EscrowEntry(nil), s.entries[orderID]...), nil
}

func (s *memStore) PayeeAccount(ctx context.Context, payeeID uint) (*models.PayeeAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payees[payeeID]
	if !ok {
		return nil, fmt.Errorf("payee %d: %w", payeeID, ErrPayeeNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) SavePayeeAccount(ctx context.Context, acct *models.PayeeAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acct
	s.payees[acct.UserID] = &cp
	return nil
}

func (s *memStore) SaveReconciliation(ctx context.Context, rec *models.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveReconLocked(rec)
	return nil
}

func (s *memStore) reconByKeyLocked(key string) *models.Reconciliation {
	for _, rec := range s.recons {
		if rec.IdempotencyKey == key {
			return rec
		}
	}
	return nil
}

func (s *memStore) saveReconLocked(rec *models.Reconciliation) {
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	cp := *rec
	s.recons[rec.ID] = &cp
}

func (s *memStore) Reconciliation(ctx context.Context, id uint) (*models.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recons[id]
	if !ok {
		return nil, fmt.Errorf("reconciliation %d: %w", id, ErrReconciliationNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) OpenReconciliations(ctx context.Context) ([]models.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reconciliation
	for _, rec := range s.recons {
		if rec.Open() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// memTx buffers writes until commit so a failing fn leaves no trace, the
// same all-or-nothing behavior the gorm transaction gives the real store.
type memTx struct {
	store   *memStore
	order   *models.Order
	pending []models.EscrowEntry
	status  *models.OrderStatus
	charge  *string
	recons  []*models.Reconciliation
}

func (t *memTx) Order() *models.Order {
	cp := *t.order
	return &cp
}

func (t *memTx) Entries() ([]models.EscrowEntry, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	existing := append([]models.EscrowEntry(nil), t.store.entries[t.order.ID]...)
	return append(existing, t.pending...), nil
}

func (t *memTx) Append(entry *models.EscrowEntry) error {
	t.store.mu.Lock()
	err := t.store.appendErr
	failAppend := t.store.failAppend
	t.store.mu.Unlock()
	if err != nil {
		return err
	}
	if failAppend != nil {
		if err := failAppend(entry); err != nil {
			return err
		}
	}
	t.pending = append(t.pending, *entry)
	return nil
}

func (t *memTx) SetStatus(status models.OrderStatus) error {
	t.status = &status
	return nil
}

func (t *memTx) SetChargeRef(ref string) error {
	t.charge = &ref
	return nil
}

// SaveReconciliation mirrors the gorm store's idempotency-key uniqueness:
// a fresh record whose key belongs to an open or gateway-confirmed row is a
// conflict; a row the gateway never executed is reused.
func (t *memTx) SaveReconciliation(rec *models.Reconciliation) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if rec.ID == 0 {
		if existing := t.store.reconByKeyLocked(rec.IdempotencyKey); existing != nil {
			if existing.Open() || existing.ExternalRef != "" {
				return fmt.Errorf("reconciliation %d already holds idempotency key %s: %w",
					existing.ID, rec.IdempotencyKey, ErrBalanceConflict)
			}
			rec.ID = existing.ID
		}
	}
	t.recons = append(t.recons, rec)
	return nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.entries[t.order.ID] = append(t.store.entries[t.order.ID], t.pending...)
	if t.status != nil {
		t.order.Status = *t.status
	}
	if t.charge != nil {
		t.order.ChargeRef = *t.charge
	}
	for _, rec := range t.recons {
		t.store.saveReconLocked(rec)
	}
}

// stubGateway lets each test script the gateway's behavior per call.
// Unset functions succeed with canned responses.
type stubGateway struct {
	mu         sync.Mutex
	transferFn func(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error)
	refundFn   func(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error)
	statusFn   func(ctx context.Context, recipientCode string) (*gateway.AccountStatus, error)
	transfers  []gateway.TransferRequest
	refunds    []gateway.RefundRequest
}

func (g *stubGateway) CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	return &gateway.Charge{Ref: req.Reference, Status: "pending", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *stubGateway) VerifyCharge(ctx context.Context, chargeRef string) (*gateway.Charge, error) {
	return &gateway.Charge{Ref: chargeRef, Status: "success", Paid: true}, nil
}

func (g *stubGateway) Transfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	g.transfers = append(g.transfers, req)
	fn := g.transferFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &gateway.Transfer{
		Ref:      "trf_" + req.IdempotencyKey[:8],
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "success",
	}, nil
}

func (g *stubGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	g.refunds = append(g.refunds, req)
	fn := g.refundFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &gateway.Refund{Ref: "rfd_" + req.IdempotencyKey[:8], Amount: req.Amount, Status: "processed"}, nil
}

func (g *stubGateway) CreateRecipient(ctx context.Context, req gateway.RecipientRequest) (*gateway.Recipient, error) {
	return &gateway.Recipient{Code: "RCP_test", Active: true}, nil
}

func (g *stubGateway) GetAccountStatus(ctx context.Context, recipientCode string) (*gateway.AccountStatus, error) {
	g.mu.Lock()
	fn := g.statusFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, recipientCode)
	}
	return &gateway.AccountStatus{PayoutsEnabled: true, ChargesEnabled: true, DetailsSubmitted: true}, nil
}

func (g *stubGateway) GetBalance(ctx context.Context) (*gateway.AccountBalance, error) {
	return &gateway.AccountBalance{Available: map[string]int64{"ngn": 1_000_000}}, nil
}
