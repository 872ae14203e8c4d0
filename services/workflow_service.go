package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/models"
)

// WorkflowService ties matching decisions to their conversation side
// effects. Every operation runs as one transaction: the order mutation,
// the conversation mutation and the message append persist together or
// not at all.
type WorkflowService struct {
	db          *gorm.DB
	broadcaster Broadcaster
}

// NewWorkflowService creates a workflow service. broadcaster may be nil.
func NewWorkflowService(db *gorm.DB, broadcaster Broadcaster) *WorkflowService {
	return &WorkflowService{db: db, broadcaster: broadcaster}
}

// CreateOrder creates the order, the initiator's roster row and the
// order-bound group conversation
func (s *WorkflowService) CreateOrder(input CreateOrderInput) (*models.Order, *models.Conversation, error) {
	var (
		order *models.Order
		conv  *models.Conversation
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if input.VehicleID != nil {
			if err := checkVehicleOwnership(tx, *input.VehicleID, input.InitiatorID); err != nil {
				return err
			}
		}
		created, err := insertOrder(tx, input)
		if err != nil {
			return err
		}
		order = created
		conv, err = createGroupConversation(tx, order)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return order, conv, nil
}

// DriverApply records a driver's pending application to take over a
// person-find-car order. No order state changes until acceptance; the
// application lives as an apply_order message in the private conversation
// between driver and initiator.
func (s *WorkflowService) DriverApply(orderID, driverID, vehicleID uint) (*models.Message, error) {
	var message *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := loadOrderForApplication(tx, orderID, driverID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusNotStarted {
			return errConflict("order is not accepting driver applications")
		}
		if order.OrderType != models.OrderTypePersonFindCar {
			return errConflict("only a person-find-car order can receive driver applications")
		}
		if err := checkVehicleOwnership(tx, vehicleID, driverID); err != nil {
			return err
		}

		content := fmt.Sprintf("Driver application for %s → %s", order.StartLoc, order.DestLoc)
		message, err = s.appendApplication(tx, order, driverID, models.MessageApplyOrder, content, &vehicleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broadcastMessage(message)
	return message, nil
}

// PassengerApply records a passenger's pending application to join an
// order as an apply_join message
func (s *WorkflowService) PassengerApply(orderID, passengerID uint) (*models.Message, error) {
	var message *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := loadOrderForApplication(tx, orderID, passengerID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusNotStarted && order.Status != models.OrderStatusInProgress {
			return errConflict("order is not accepting applications")
		}
		if order.OrderType == models.OrderTypeCarFindPerson && order.SpareSeatNum < 1 {
			return errConflict("no spare seats left on this order")
		}

		content := fmt.Sprintf("Application to join %s → %s", order.StartLoc, order.DestLoc)
		message, err = s.appendApplication(tx, order, passengerID, models.MessageApplyJoin, content, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broadcastMessage(message)
	return message, nil
}

// InvitePassenger lets the order initiator invite a specific user. The
// invitation mirrors an application but is sender-initiated: it lands as
// an invitation message in the private conversation between the two.
func (s *WorkflowService) InvitePassenger(orderID, callerID, inviteeID uint) (*models.Message, error) {
	var message *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.InitiatorID != callerID {
			return errForbidden("only the order initiator may send invitations")
		}
		if inviteeID == callerID {
			return errConflict("cannot invite yourself")
		}
		if order.Status != models.OrderStatusNotStarted && order.Status != models.OrderStatusInProgress {
			return errConflict("order is not accepting new participants")
		}
		if order.OrderType == models.OrderTypeCarFindPerson && order.SpareSeatNum < 1 {
			return errConflict("no spare seats left on this order")
		}
		if err := checkNotParticipant(tx, orderID, inviteeID); err != nil {
			return err
		}
		if err := checkUserExists(tx, inviteeID); err != nil {
			return err
		}

		conv, _, err := getOrCreatePrivateTx(tx, callerID, inviteeID)
		if err != nil {
			return err
		}
		content := fmt.Sprintf("Invitation to join %s → %s", order.StartLoc, order.DestLoc)
		message = &models.Message{
			ConversationID: conv.ID,
			SenderID:       callerID,
			Content:        content,
			MessageType:    models.MessageInvitation,
			OrderID:        &orderID,
		}
		return appendMessage(tx, message)
	})
	if err != nil {
		return nil, err
	}
	s.broadcastMessage(message)
	return message, nil
}

// Accept resolves a pending application or invitation. The message type
// flips to its accept variant exactly once; the applicant joins the order
// roster and the group conversation, and seat counters move under the
// same transaction. A non-empty allowed list restricts which pending
// types the caller's endpoint may resolve.
func (s *WorkflowService) Accept(messageID, callerID uint, allowed ...models.MessageType) (*models.Message, error) {
	var (
		message  *models.Message
		announce *models.Message
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, order, err := loadWorkflowMessage(tx, messageID, allowed)
		if err != nil {
			return err
		}
		message = loaded

		joiner, identity, err := resolveWorkflowParties(tx, message, order, callerID)
		if err != nil {
			return err
		}

		accepted, _ := message.MessageType.AcceptVariant()
		if err := flipWorkflowMessage(tx, message.ID, message.MessageType, accepted); err != nil {
			return err
		}
		message.MessageType = accepted

		switch identity {
		case models.IdentityDriver:
			if err := acceptDriver(tx, order, message, joiner); err != nil {
				return err
			}
		case models.IdentityPassenger:
			if err := acceptPassenger(tx, order, joiner); err != nil {
				return err
			}
		}

		announce, err = announceJoin(tx, order, joiner)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broadcastMessage(message)
	s.broadcastMessage(announce)
	return message, nil
}

// Reject resolves a pending application or invitation without touching
// the order: only the message type flips to its reject variant.
func (s *WorkflowService) Reject(messageID, callerID uint, allowed ...models.MessageType) (*models.Message, error) {
	var message *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, order, err := loadWorkflowMessage(tx, messageID, allowed)
		if err != nil {
			return err
		}
		message = loaded

		if _, _, err := resolveWorkflowParties(tx, message, order, callerID); err != nil {
			return err
		}

		rejected, _ := message.MessageType.RejectVariant()
		if err := flipWorkflowMessage(tx, message.ID, message.MessageType, rejected); err != nil {
			return err
		}
		message.MessageType = rejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcastMessage(message)
	return message, nil
}

// appendApplication writes the pending message into the (possibly new)
// private conversation between applicant and initiator
func (s *WorkflowService) appendApplication(tx *gorm.DB, order *models.Order, applicantID uint, messageType models.MessageType, content string, vehicleID *uint) (*models.Message, error) {
	conv, _, err := getOrCreatePrivateTx(tx, applicantID, order.InitiatorID)
	if err != nil {
		return nil, err
	}
	message := &models.Message{
		ConversationID: conv.ID,
		SenderID:       applicantID,
		Content:        content,
		MessageType:    messageType,
		OrderID:        &order.ID,
		VehicleID:      vehicleID,
	}
	if err := appendMessage(tx, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (s *WorkflowService) broadcastMessage(message *models.Message) {
	if s.broadcaster == nil || message == nil {
		return
	}
	s.broadcaster.BroadcastToConversation(message.ConversationID, "new_message", message)
}

// acceptDriver adds the driver to the roster, binds the vehicle,
// recomputes the spare seats from its capacity and moves the order into
// progress as a car-find-person order
func acceptDriver(tx *gorm.DB, order *models.Order, message *models.Message, driverID uint) error {
	if message.VehicleID == nil {
		return errConflict("driver application carries no vehicle")
	}
	var vehicle models.Vehicle
	if err := tx.First(&vehicle, *message.VehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNotFound("vehicle not found")
		}
		return errInternal("failed to load vehicle", err)
	}

	if err := addOrderParticipant(tx, order.ID, driverID, models.IdentityDriver, &order.InitiatorID); err != nil {
		return err
	}

	spare := vehicle.SeatCapacity - 1 - order.TravelPartnerNum
	if spare < 0 {
		spare = 0
	}
	if err := transitionOrderStatus(tx, order.ID, order.Status, models.OrderStatusInProgress); err != nil {
		return err
	}
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"order_type":     models.OrderTypeCarFindPerson,
			"spare_seat_num": spare,
			"vehicle_id":     vehicle.ID,
		}).Error; err != nil {
		return errInternal("failed to update order after driver match", err)
	}
	return nil
}

// acceptPassenger adds the passenger to the roster and moves the seat
// counters: car-find-person orders give up a spare seat (flipping to
// in-progress when the last one goes), person-find-car orders grow the
// partner count
func acceptPassenger(tx *gorm.DB, order *models.Order, passengerID uint) error {
	if err := addOrderParticipant(tx, order.ID, passengerID, models.IdentityPassenger, &order.InitiatorID); err != nil {
		return err
	}
	switch order.OrderType {
	case models.OrderTypeCarFindPerson:
		remaining, err := claimSpareSeat(tx, order.ID)
		if err != nil {
			return err
		}
		if remaining == 0 && order.Status == models.OrderStatusNotStarted {
			return transitionOrderStatus(tx, order.ID, models.OrderStatusNotStarted, models.OrderStatusInProgress)
		}
	case models.OrderTypePersonFindCar:
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			UpdateColumn("travel_partner_num", gorm.Expr("travel_partner_num + 1")).Error; err != nil {
			return errInternal("failed to update partner count", err)
		}
	}
	return nil
}

// announceJoin adds the joiner to the order's group conversation
// (idempotent) and appends the system text message announcing them
func announceJoin(tx *gorm.DB, order *models.Order, joinerID uint) (*models.Message, error) {
	var conv models.Conversation
	if err := tx.Where("order_id = ?", order.ID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInternal("order has no group conversation", err)
		}
		return nil, errInternal("failed to load group conversation", err)
	}
	if err := addConversationParticipant(tx, conv.ID, joinerID); err != nil {
		return nil, err
	}

	var joiner models.User
	if err := tx.First(&joiner, joinerID).Error; err != nil {
		return nil, errInternal("failed to load joining user", err)
	}
	announce := &models.Message{
		ConversationID: conv.ID,
		SenderID:       joinerID,
		Content:        fmt.Sprintf("%s joined the carpool", joiner.Username),
		MessageType:    models.MessageText,
		OrderID:        &order.ID,
	}
	if err := appendMessage(tx, announce); err != nil {
		return nil, err
	}
	return announce, nil
}

// loadWorkflowMessage loads a pending workflow message and its order
func loadWorkflowMessage(tx *gorm.DB, messageID uint, allowed []models.MessageType) (*models.Message, *models.Order, error) {
	var message models.Message
	if err := tx.First(&message, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errNotFound("message not found")
		}
		return nil, nil, errInternal("failed to load message", err)
	}
	if !message.MessageType.IsPendingWorkflow() {
		return nil, nil, errConflict("message is not a pending application or invitation")
	}
	if len(allowed) > 0 {
		permitted := false
		for _, t := range allowed {
			if message.MessageType == t {
				permitted = true
				break
			}
		}
		if !permitted {
			return nil, nil, errConflict("message cannot be resolved through this endpoint")
		}
	}
	if message.OrderID == nil {
		return nil, nil, errConflict("workflow message references no order")
	}
	order, err := loadOrder(tx, *message.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return &message, order, nil
}

// resolveWorkflowParties authorizes the caller and identifies who joins
// the order in which role if the message is accepted. Applications are
// resolved by the order initiator; invitations by the invited user.
func resolveWorkflowParties(tx *gorm.DB, message *models.Message, order *models.Order, callerID uint) (uint, models.ParticipantIdentity, error) {
	switch message.MessageType {
	case models.MessageApplyOrder:
		if order.InitiatorID != callerID {
			return 0, "", errForbidden("only the order initiator may resolve applications")
		}
		return message.SenderID, models.IdentityDriver, nil
	case models.MessageApplyJoin:
		if order.InitiatorID != callerID {
			return 0, "", errForbidden("only the order initiator may resolve applications")
		}
		return message.SenderID, models.IdentityPassenger, nil
	case models.MessageInvitation:
		invitee, err := privateCounterpart(tx, message.ConversationID, message.SenderID)
		if err != nil {
			return 0, "", err
		}
		if invitee != callerID {
			return 0, "", errForbidden("only the invited user may resolve the invitation")
		}
		return invitee, models.IdentityPassenger, nil
	default:
		return 0, "", errConflict("message is not a pending application or invitation")
	}
}

// privateCounterpart returns the other participant of a two-party
// conversation
func privateCounterpart(tx *gorm.DB, conversationID, userID uint) (uint, error) {
	var other models.ConversationParticipant
	if err := tx.Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
		First(&other).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errInternal("private conversation has no counterpart", err)
		}
		return 0, errInternal("failed to load conversation counterpart", err)
	}
	return other.UserID, nil
}

// flipWorkflowMessage rewrites a workflow message's type in place. The
// WHERE clause on the current type makes the flip one-way: the second
// resolution attempt affects zero rows and fails with Conflict.
func flipWorkflowMessage(tx *gorm.DB, messageID uint, from, to models.MessageType) error {
	res := tx.Model(&models.Message{}).
		Where("id = ? AND message_type = ?", messageID, from).
		Update("message_type", to)
	if res.Error != nil {
		return errInternal("failed to update message type", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict("application already resolved")
	}
	return nil
}

func loadOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("order not found")
		}
		return nil, errInternal("failed to load order", err)
	}
	return &order, nil
}

// loadOrderForApplication loads the order and verifies the applicant can
// apply at all: not the initiator, not already on the roster
func loadOrderForApplication(tx *gorm.DB, orderID, applicantID uint) (*models.Order, error) {
	order, err := loadOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.InitiatorID == applicantID {
		return nil, errConflict("cannot apply to your own order")
	}
	if err := checkNotParticipant(tx, orderID, applicantID); err != nil {
		return nil, err
	}
	if err := checkUserExists(tx, applicantID); err != nil {
		return nil, err
	}
	return order, nil
}

func checkNotParticipant(tx *gorm.DB, orderID, userID uint) error {
	var count int64
	if err := tx.Model(&models.OrderParticipant{}).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		Count(&count).Error; err != nil {
		return errInternal("failed to check participation", err)
	}
	if count > 0 {
		return errConflict("user already participates in this order")
	}
	return nil
}

func checkUserExists(tx *gorm.DB, userID uint) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return errInternal("failed to check user", err)
	}
	if count == 0 {
		return errNotFound("user not found")
	}
	return nil
}

func checkVehicleOwnership(tx *gorm.DB, vehicleID, ownerID uint) error {
	var vehicle models.Vehicle
	if err := tx.First(&vehicle, vehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNotFound("vehicle not found")
		}
		return errInternal("failed to load vehicle", err)
	}
	if vehicle.OwnerID != ownerID {
		return errForbidden("vehicle does not belong to this user")
	}
	return nil
}
