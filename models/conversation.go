package models

import "time"

// ConversationType distinguishes private 1:1 chats from order-bound groups
type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// ParseConversationType validates a conversation type received at the boundary
func ParseConversationType(value string) (ConversationType, bool) {
	switch t := ConversationType(value); t {
	case ConversationPrivate, ConversationGroup:
		return t, true
	default:
		return "", false
	}
}

// Conversation is a messaging channel. Group conversations created by order
// creation are 1:1 with their order. Private conversations with no bound
// order are unique per unordered user pair, enforced through PairKey
// ("smallerID_largerID").
type Conversation struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	Type         ConversationType `gorm:"size:20;not null" json:"type"`
	OrderID      *uint            `gorm:"uniqueIndex" json:"order_id,omitempty"`
	PairKey      *string          `gorm:"size:50;uniqueIndex" json:"-"`
	Title        *string          `gorm:"size:255" json:"title,omitempty"`
	Avatar       *string          `gorm:"size:255" json:"avatar,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// TableName specifies the table name for the Conversation model
func (Conversation) TableName() string {
	return "conversations"
}

// IsGroup reports whether the conversation is an order-bound group
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}
