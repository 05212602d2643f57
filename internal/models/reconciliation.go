package models

import (
	"time"

	"gorm.io/gorm"
)

type ReconciliationState string

const (
	// ReconPending is written before the gateway call is made.
	ReconPending ReconciliationState = "pending"
	// ReconUnknownOutcome marks a gateway call that timed out without a
	// definitive response; the money may or may not have moved.
	ReconUnknownOutcome ReconciliationState = "unknown_outcome"
	// ReconLedgerWriteFailed marks the dangerous case: the gateway confirmed
	// the transfer/refund but the local ledger write did not land.
	ReconLedgerWriteFailed ReconciliationState = "ledger_write_failed"
	// ReconResolved means the record needs no further attention, either
	// because the operation completed end to end or an operator closed it.
	ReconResolved ReconciliationState = "resolved"
)

type ReconOperation string

const (
	ReconRelease ReconOperation = "release"
	ReconRefund  ReconOperation = "refund"
)

// Reconciliation is the durable record of an in-flight money movement.
// One row is created before every gateway transfer/refund and resolved once
// the matching ledger entries are committed. Rows left in a non-resolved
// state are the reconciliation queue for operators.
type Reconciliation struct {
	ID             uint                `gorm:"primarykey" json:"id"`
	OrderID        uint                `gorm:"not null;index" json:"order_id"`
	Operation      ReconOperation      `gorm:"type:varchar(20);not null" json:"operation"`
	MilestoneRef   string              `gorm:"type:varchar(100)" json:"milestone_ref,omitempty"`
	Amount         int64               `gorm:"not null" json:"amount"`
	Fee            int64               `gorm:"default:0" json:"fee"`
	Currency       string              `gorm:"type:varchar(3);not null" json:"currency"`
	IdempotencyKey string              `gorm:"type:uuid;uniqueIndex;not null" json:"idempotency_key"`
	ExternalRef    string              `gorm:"type:varchar(100)" json:"external_ref,omitempty"`
	State          ReconciliationState `gorm:"type:varchar(30);not null;default:'pending'" json:"state"`
	Detail         string              `gorm:"type:text" json:"detail,omitempty"`
	Resolution     string              `gorm:"type:text" json:"resolution,omitempty"`
	ResolvedBy     *uint               `gorm:"index" json:"resolved_by,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
	DeletedAt      gorm.DeletedAt      `gorm:"index" json:"-"`

	Order Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

func (Reconciliation) TableName() string {
	return "reconciliations"
}

// Open reports whether the record still needs operator or retry attention.
func (r *Reconciliation) Open() bool {
	return r.State != ReconResolved
}
