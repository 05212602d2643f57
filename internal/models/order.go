package models

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderHeld           OrderStatus = "held"
	OrderPartialRelease OrderStatus = "partial_release"
	OrderReleased       OrderStatus = "released"
	OrderRefunded       OrderStatus = "refunded"
)

// Order is the per-order escrow summary. The projected Status is a cache;
// the escrow_entries log remains the source of truth.
type Order struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	BuyerID  uint   `gorm:"not null;index" json:"buyer_id"`
	PayeeID  uint   `gorm:"not null;index" json:"payee_id"`
	Currency string `gorm:"type:varchar(3);not null" json:"currency"`

	// ChargeRef is the gateway's charge object for the buyer payment,
	// set when the hold is recorded. Refunds are issued against it.
	ChargeRef string `gorm:"type:varchar(100)" json:"charge_ref,omitempty"`

	Status    OrderStatus    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Buyer   User          `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Payee   User          `gorm:"foreignKey:PayeeID" json:"payee,omitempty"`
	Entries []EscrowEntry `gorm:"foreignKey:OrderID" json:"entries,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}
