package models

import (
	"time"

	"gorm.io/gorm"
)

// PayeeAccount is a seller's payout account with the payment gateway.
// RecipientCode is the gateway-side transfer recipient; PayoutsEnabled is a
// cached readiness flag refreshed from the gateway before each release.
type PayeeAccount struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	UserID        uint   `gorm:"not null;index" json:"user_id"`
	BankName      string `gorm:"not null" json:"bank_name"`
	AccountNumber string `gorm:"not null" json:"account_number"`
	AccountName   string `gorm:"not null" json:"account_name"`
	BankCode      string `json:"bank_code,omitempty"`
	RecipientCode string `gorm:"uniqueIndex" json:"recipient_code"`

	PayoutsEnabled   bool       `gorm:"default:false" json:"payouts_enabled"`
	DetailsSubmitted bool       `gorm:"default:false" json:"details_submitted"`
	StatusCheckedAt  *time.Time `json:"status_checked_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (PayeeAccount) TableName() string {
	return "payee_accounts"
}
