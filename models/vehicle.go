package models

import (
	"time"

	"gorm.io/gorm"
)

// Vehicle is the read-side projection of the fleet collaborator, consumed
// for its seat capacity when a driver application is accepted.
type Vehicle struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	OwnerID      uint           `gorm:"not null;index" json:"owner_id"`
	PlateNumber  string         `gorm:"size:10;uniqueIndex;not null" json:"plate_number"`
	TypeLabel    string         `gorm:"size:50;not null" json:"type_label"`
	SeatCapacity int            `gorm:"not null;check:seat_capacity > 0" json:"seat_capacity"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Vehicle model
func (Vehicle) TableName() string {
	return "vehicles"
}
