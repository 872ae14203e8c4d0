package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/models"
)

// Broadcaster fans a conversation event out to every connection currently
// joined to the conversation's room. Implemented by the websocket hub;
// nil disables fan-out (tests, offline tools).
type Broadcaster interface {
	BroadcastToConversation(conversationID uint, event string, payload interface{})
}

// ConversationService owns conversations, their participants and the
// per-conversation message ledger
type ConversationService struct {
	db          *gorm.DB
	attachments S3Interface
	broadcaster Broadcaster
}

// NewConversationService creates a conversation service. attachments and
// broadcaster may be nil.
func NewConversationService(db *gorm.DB, attachments S3Interface, broadcaster Broadcaster) *ConversationService {
	return &ConversationService{db: db, attachments: attachments, broadcaster: broadcaster}
}

// ConversationSummary is one row of a user's conversation list
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	LastMessage  *models.Message     `json:"last_message"`
	UnreadCount  int                 `json:"unread_count"`
}

// GetOrCreatePrivate returns the private conversation between the two
// users, creating it (with both participant rows) on first use. At most
// one such conversation exists per unordered pair; the pair key's unique
// index backs the invariant under concurrent calls.
func (s *ConversationService) GetOrCreatePrivate(userA, userB uint) (*models.Conversation, error) {
	if userA == userB {
		return nil, errValidation("a private conversation needs two distinct users")
	}
	var conv *models.Conversation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		found, _, err := getOrCreatePrivateTx(tx, userA, userB)
		if err != nil {
			return err
		}
		conv = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns every conversation the user participates in,
// with its latest message and the user's unread count, newest activity
// first
func (s *ConversationService) ListConversations(userID uint) ([]ConversationSummary, error) {
	var memberships []models.ConversationParticipant
	if err := s.db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, errInternal("failed to load conversation memberships", err)
	}

	summaries := make([]ConversationSummary, 0, len(memberships))
	for _, membership := range memberships {
		var conv models.Conversation
		if err := s.db.Preload("Participants").Preload("Participants.User").
			First(&conv, membership.ConversationID).Error; err != nil {
			return nil, errInternal("failed to load conversation", err)
		}

		var last models.Message
		var lastMessage *models.Message
		err := s.db.Preload("Sender").
			Where("conversation_id = ?", conv.ID).
			Order("id DESC").
			First(&last).Error
		if err == nil {
			s.fillAttachmentURL(&last)
			lastMessage = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInternal("failed to load latest message", err)
		}

		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			LastMessage:  lastMessage,
			UnreadCount:  membership.UnreadCount,
		})
	}

	// Newest activity first; conversations without messages order by
	// creation time.
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaryTime(summaries[i]).After(summaryTime(summaries[j]))
	})
	return summaries, nil
}

func summaryTime(s ConversationSummary) time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.Conversation.CreatedAt
}

// ListMessages returns the conversation's messages in ascending ledger
// order, optionally bounded to those created before the given time. As a
// side effect it advances the caller's read cursor to the newest returned
// message and recomputes the unread count — recomputed rather than zeroed,
// because sends may have landed concurrently.
func (s *ConversationService) ListMessages(conversationID, userID uint, before *time.Time) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var membership models.ConversationParticipant
		if err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			First(&membership).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errForbidden("you are not a participant of this conversation")
			}
			return errInternal("failed to load conversation membership", err)
		}

		query := tx.Preload("Sender").Where("conversation_id = ?", conversationID)
		if before != nil {
			query = query.Where("created_at < ?", *before)
		}
		if err := query.Order("id ASC").Find(&messages).Error; err != nil {
			return errInternal("failed to load messages", err)
		}
		if len(messages) == 0 {
			return nil
		}

		newest := messages[len(messages)-1].ID
		if membership.LastReadMessageID != nil && *membership.LastReadMessageID >= newest {
			// Cursor only moves forward.
			return nil
		}
		return advanceReadCursor(tx, conversationID, userID, newest)
	})
	if err != nil {
		return nil, err
	}
	for i := range messages {
		s.fillAttachmentURL(&messages[i])
	}
	return messages, nil
}

// SendMessage appends a message to the conversation ledger, bumps every
// other participant's unread count and broadcasts the message to the
// conversation's room
func (s *ConversationService) SendMessage(conversationID, senderID uint, content string, messageType models.MessageType, orderID *uint, attachmentKey *string) (*models.Message, error) {
	if content == "" && attachmentKey == nil {
		return nil, errValidation("message content is required")
	}

	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    messageType,
		OrderID:        orderID,
		AttachmentKey:  attachmentKey,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := isConversationParticipant(tx, conversationID, senderID)
		if err != nil {
			return err
		}
		if !ok {
			return errForbidden("you are not a participant of this conversation")
		}
		return appendMessage(tx, message)
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Preload("Sender").First(message, message.ID).Error; err != nil {
		return nil, errInternal("failed to load message", err)
	}
	s.fillAttachmentURL(message)
	s.broadcast(conversationID, message)
	return message, nil
}

// IsParticipant reports whether the user belongs to the conversation.
// The delivery layer consults this before admitting a connection to the
// conversation's room.
func (s *ConversationService) IsParticipant(conversationID, userID uint) (bool, error) {
	return isConversationParticipant(s.db, conversationID, userID)
}

// PrivateCounterpart returns the other user of a two-party conversation
func (s *ConversationService) PrivateCounterpart(conversationID, userID uint) (uint, error) {
	ok, err := isConversationParticipant(s.db, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errForbidden("you are not a participant of this conversation")
	}
	return privateCounterpart(s.db, conversationID, userID)
}

func (s *ConversationService) broadcast(conversationID uint, message *models.Message) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToConversation(conversationID, "new_message", message)
	}
}

func (s *ConversationService) fillAttachmentURL(message *models.Message) {
	if s.attachments == nil || message.AttachmentKey == nil {
		return
	}
	url, err := s.attachments.GetPresignedURL(*message.AttachmentKey)
	if err != nil {
		log.Printf("failed to presign attachment %s: %v", *message.AttachmentKey, err)
		return
	}
	message.AttachmentURL = &url
}

// privatePairKey builds the unordered-pair key for private conversations
func privatePairKey(userA, userB uint) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d_%d", userA, userB)
}

// getOrCreatePrivateTx looks up the non-order private conversation for the
// pair, creating it plus both participant rows when absent. The second
// return value reports whether a new conversation was created.
func getOrCreatePrivateTx(tx *gorm.DB, userA, userB uint) (*models.Conversation, bool, error) {
	pairKey := privatePairKey(userA, userB)

	var conv models.Conversation
	err := tx.Where("type = ? AND order_id IS NULL AND pair_key = ?", models.ConversationPrivate, pairKey).
		First(&conv).Error
	if err == nil {
		return &conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errInternal("failed to look up private conversation", err)
	}

	conv = models.Conversation{
		Type:    models.ConversationPrivate,
		PairKey: &pairKey,
	}
	if err := tx.Create(&conv).Error; err != nil {
		return nil, false, errInternal("failed to create private conversation", err)
	}
	for _, userID := range []uint{userA, userB} {
		if err := addConversationParticipant(tx, conv.ID, userID); err != nil {
			return nil, false, err
		}
	}
	return &conv, true, nil
}

// createGroupConversation creates the order-bound group conversation with
// the initiator as its first participant
func createGroupConversation(tx *gorm.DB, order *models.Order) (*models.Conversation, error) {
	title := order.StartLoc + " → " + order.DestLoc
	conv := models.Conversation{
		Type:    models.ConversationGroup,
		OrderID: &order.ID,
		Title:   &title,
	}
	if err := tx.Create(&conv).Error; err != nil {
		return nil, errInternal("failed to create group conversation", err)
	}
	if err := addConversationParticipant(tx, conv.ID, order.InitiatorID); err != nil {
		return nil, err
	}
	return &conv, nil
}

// addConversationParticipant inserts a membership row; already being a
// participant is treated as success
func addConversationParticipant(tx *gorm.DB, conversationID, userID uint) error {
	ok, err := isConversationParticipant(tx, conversationID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	participant := models.ConversationParticipant{
		ConversationID: conversationID,
		UserID:         userID,
	}
	if err := tx.Create(&participant).Error; err != nil {
		return errInternal("failed to add conversation participant", err)
	}
	return nil
}

func isConversationParticipant(tx *gorm.DB, conversationID, userID uint) (bool, error) {
	var count int64
	if err := tx.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error; err != nil {
		return false, errInternal("failed to check conversation membership", err)
	}
	return count > 0, nil
}

// appendMessage writes the ledger entry and increments the unread count of
// every other participant in the same transaction
func appendMessage(tx *gorm.DB, message *models.Message) error {
	if err := tx.Create(message).Error; err != nil {
		return errInternal("failed to create message", err)
	}
	res := tx.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", message.ConversationID, message.SenderID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1"))
	if res.Error != nil {
		return errInternal("failed to update unread counts", res.Error)
	}
	return nil
}

// advanceReadCursor moves the participant's cursor to messageID and
// recomputes the unread count as the number of newer messages sent by
// others
func advanceReadCursor(tx *gorm.DB, conversationID, userID, messageID uint) error {
	var unread int64
	if err := tx.Model(&models.Message{}).
		Where("conversation_id = ? AND id > ? AND sender_id <> ?", conversationID, messageID, userID).
		Count(&unread).Error; err != nil {
		return errInternal("failed to recompute unread count", err)
	}
	if err := tx.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"last_read_message_id": messageID,
			"unread_count":         unread,
		}).Error; err != nil {
		return errInternal("failed to advance read cursor", err)
	}
	return nil
}
