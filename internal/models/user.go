package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the minimal identity the ledger needs: a JWT subject, a contact
// address for notifications, and the admin role for reconciliation routes.
// Signup and profile management live in the marketplace service, not here.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	FullName  string         `gorm:"not null" json:"full_name"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Role      string         `gorm:"default:'user'" json:"role"` // 'user' or 'admin'
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to set default role
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = "user"
	}
	return nil
}

// IsAdmin checks if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
