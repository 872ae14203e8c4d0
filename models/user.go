package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the read-side projection of the identity collaborator: just
// enough profile to render rosters and message senders. Credential
// issuance and profile management live elsewhere.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"size:100;not null" json:"username"`
	Avatar    string         `gorm:"size:255" json:"avatar"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
