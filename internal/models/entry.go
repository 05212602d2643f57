package models

import (
	"time"
)

type EntryType string

const (
	EntryHold         EntryType = "hold"
	EntryRelease      EntryType = "release"
	EntryFeeDeduction EntryType = "fee_deduction"
	EntryRefund       EntryType = "refund"
)

// EscrowEntry is one immutable row of the append-only escrow ledger.
// Amounts are integers in the currency's smallest unit (kobo, pence, cents);
// rows are never updated or deleted after creation.
type EscrowEntry struct {
	ID           string    `gorm:"type:uuid;primarykey" json:"id"`
	OrderID      uint      `gorm:"not null;index" json:"order_id"`
	MilestoneRef string    `gorm:"type:varchar(100)" json:"milestone_ref,omitempty"`
	Type         EntryType `gorm:"type:varchar(20);not null" json:"type"`
	Amount       int64     `gorm:"not null" json:"amount"`

	// ExternalRef points at the gateway transfer/refund/charge object this
	// entry corresponds to, for reconciliation against gateway records.
	ExternalRef string `gorm:"type:varchar(100)" json:"external_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Order Order `gorm:"foreignKey:OrderID" json:"-"`
}

func (EscrowEntry) TableName() string {
	return "escrow_entries"
}
