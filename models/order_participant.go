package models

import "time"

// ParticipantIdentity is the role a user holds on an order
type ParticipantIdentity string

const (
	IdentityDriver    ParticipantIdentity = "driver"
	IdentityPassenger ParticipantIdentity = "passenger"
)

// ParseParticipantIdentity validates an identity value received at the boundary
func ParseParticipantIdentity(value string) (ParticipantIdentity, bool) {
	switch i := ParticipantIdentity(value); i {
	case IdentityDriver, IdentityPassenger:
		return i, true
	default:
		return "", false
	}
}

// OrderParticipant binds a user to an order in the driver or passenger role.
// Rows are created on acceptance and never updated; at most one driver
// participant exists per order.
type OrderParticipant struct {
	OrderID     uint                `gorm:"primaryKey" json:"order_id"`
	UserID      uint                `gorm:"primaryKey" json:"user_id"`
	User        User                `gorm:"foreignKey:UserID" json:"user"`
	Identity    ParticipantIdentity `gorm:"size:20;not null" json:"identity"`
	InitiatorID *uint               `gorm:"index" json:"initiator_id,omitempty"`
	JoinedAt    time.Time           `gorm:"autoCreateTime" json:"joined_at"`
}

// TableName specifies the table name for the OrderParticipant model
func (OrderParticipant) TableName() string {
	return "order_participants"
}
