package models

import (
	"time"
)

// MessageType tags every ledger entry. Beyond plain chat content, workflow
// types encode a pending application or invitation; their Accept/Reject
// variants are written in place when the referenced action is resolved.
type MessageType string

const (
	MessageText             MessageType = "text"
	MessageImage            MessageType = "image"
	MessageFile             MessageType = "file"
	MessageInvitation       MessageType = "invitation"
	MessageInvitationAccept MessageType = "invitation_accept"
	MessageInvitationReject MessageType = "invitation_reject"
	MessageApplyJoin        MessageType = "apply_join"
	MessageApplyJoinAccept  MessageType = "apply_join_accept"
	MessageApplyJoinReject  MessageType = "apply_join_reject"
	MessageApplyOrder       MessageType = "apply_order"
	MessageApplyOrderAccept MessageType = "apply_order_accept"
	MessageApplyOrderReject MessageType = "apply_order_reject"
)

// workflowVariants maps each pending workflow type to its resolved variants
var workflowVariants = map[MessageType]struct{ accept, reject MessageType }{
	MessageInvitation: {MessageInvitationAccept, MessageInvitationReject},
	MessageApplyJoin:  {MessageApplyJoinAccept, MessageApplyJoinReject},
	MessageApplyOrder: {MessageApplyOrderAccept, MessageApplyOrderReject},
}

// ParseMessageType validates a message type received at the boundary
func ParseMessageType(value string) (MessageType, bool) {
	switch t := MessageType(value); t {
	case MessageText, MessageImage, MessageFile,
		MessageInvitation, MessageInvitationAccept, MessageInvitationReject,
		MessageApplyJoin, MessageApplyJoinAccept, MessageApplyJoinReject,
		MessageApplyOrder, MessageApplyOrderAccept, MessageApplyOrderReject:
		return t, true
	default:
		return "", false
	}
}

// IsPendingWorkflow reports whether the type is an unresolved application
// or invitation
func (t MessageType) IsPendingWorkflow() bool {
	_, ok := workflowVariants[t]
	return ok
}

// AcceptVariant returns the accepted form of a pending workflow type
func (t MessageType) AcceptVariant() (MessageType, bool) {
	v, ok := workflowVariants[t]
	return v.accept, ok
}

// RejectVariant returns the rejected form of a pending workflow type
func (t MessageType) RejectVariant() (MessageType, bool) {
	v, ok := workflowVariants[t]
	return v.reject, ok
}

// Message is one entry in the append-only per-conversation ledger. The
// auto-increment ID is the ordering key and the read-cursor key. Rows are
// immutable once created except for the one-way workflow type flip.
type Message struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ConversationID uint        `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint        `gorm:"not null;index" json:"sender_id"`
	Sender         User        `gorm:"foreignKey:SenderID" json:"sender"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	MessageType    MessageType `gorm:"size:30;not null;default:'text'" json:"message_type"`
	OrderID        *uint       `gorm:"index" json:"order_id,omitempty"`
	VehicleID      *uint       `json:"vehicle_id,omitempty"` // carried by driver applications
	AttachmentKey  *string     `gorm:"size:255" json:"attachment_key,omitempty"`
	AttachmentURL  *string     `gorm:"-" json:"attachment_url,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
