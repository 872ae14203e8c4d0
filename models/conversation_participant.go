package models

import "time"

// ConversationParticipant tracks a user's membership in a conversation
// together with their read cursor. UnreadCount is the number of messages
// with an id greater than LastReadMessageID that the participant did not
// send themselves; it is maintained incrementally on every send and
// recomputed on read, never by full re-scan in steady state.
type ConversationParticipant struct {
	ConversationID    uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID            uint      `gorm:"primaryKey" json:"user_id"`
	User              User      `gorm:"foreignKey:UserID" json:"user"`
	JoinedAt          time.Time `gorm:"autoCreateTime" json:"joined_at"`
	LastReadMessageID *uint     `json:"last_read_message_id,omitempty"`
	UnreadCount       int       `gorm:"not null;default:0;check:unread_count >= 0" json:"unread_count"`
}

// TableName specifies the table name for the ConversationParticipant model
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}
