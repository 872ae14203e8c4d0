package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/models"
)

// OrderService is the matching engine: it owns order lifecycle transitions
// and seat arithmetic. Multi-entity workflows (applications, invitations)
// are driven through WorkflowService, which composes the unexported
// helpers here inside one transaction.
type OrderService struct {
	db *gorm.DB
}

// NewOrderService creates an order service backed by the given database
func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// CreateOrderInput carries the validated fields for a new order
type CreateOrderInput struct {
	InitiatorID      uint
	OrderType        models.OrderType
	StartLoc         string
	DestLoc          string
	StartTime        time.Time
	Price            float64
	CarType          *string
	TravelPartnerNum int
	SpareSeatNum     int
	VehicleID        *uint
}

func (in *CreateOrderInput) validate() error {
	if in.StartLoc == "" || in.DestLoc == "" {
		return errValidation("start and destination locations are required")
	}
	if in.StartTime.IsZero() {
		return errValidation("start time is required")
	}
	if in.Price < 0 {
		return errValidation("price cannot be negative")
	}
	switch in.OrderType {
	case models.OrderTypePersonFindCar:
		if in.TravelPartnerNum < 1 {
			return errValidation("travel partner count is required for a person-find-car order")
		}
	case models.OrderTypeCarFindPerson:
		if in.VehicleID == nil {
			return errValidation("vehicle is required for a car-find-person order")
		}
		if in.SpareSeatNum < 1 {
			return errValidation("spare seat count is required for a car-find-person order")
		}
	default:
		return errValidation("invalid order type")
	}
	return nil
}

// GetOrder returns an order with its initiator, vehicle and roster loaded
func (s *OrderService) GetOrder(orderID uint) (*models.Order, []models.OrderParticipant, error) {
	var order models.Order
	if err := s.db.Preload("Initiator").Preload("Vehicle").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errNotFound("order not found")
		}
		return nil, nil, errInternal("failed to load order", err)
	}

	var participants []models.OrderParticipant
	if err := s.db.Preload("User").Where("order_id = ?", orderID).Find(&participants).Error; err != nil {
		return nil, nil, errInternal("failed to load order participants", err)
	}
	return &order, participants, nil
}

// CompleteTrip moves an in-progress order to to-pay. Only the initiator
// may end the trip.
func (s *OrderService) CompleteTrip(orderID, callerID uint) (*models.Order, error) {
	return s.initiatorTransition(orderID, callerID, models.OrderStatusInProgress, models.OrderStatusToPay, nil)
}

// MarkPaid moves a to-pay order to to-review
func (s *OrderService) MarkPaid(orderID, callerID uint) (*models.Order, error) {
	return s.initiatorTransition(orderID, callerID, models.OrderStatusToPay, models.OrderStatusToReview, nil)
}

// Rate records a rating and completes a to-review order
func (s *OrderService) Rate(orderID, callerID uint, rate int) (*models.Order, error) {
	if rate < 0 || rate > 5 {
		return nil, errValidation("rating must be between 0 and 5")
	}
	return s.initiatorTransition(orderID, callerID, models.OrderStatusToReview, models.OrderStatusCompleted,
		map[string]interface{}{"rate": rate})
}

// RejectOrder moves a pre-trip order to the terminal rejected state,
// recording the reason
func (s *OrderService) RejectOrder(orderID, callerID uint, reason string) (*models.Order, error) {
	var order models.Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("order not found")
		}
		return nil, errInternal("failed to load order", err)
	}
	if order.InitiatorID != callerID {
		return nil, errForbidden("only the order initiator may reject the order")
	}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := transitionOrderStatus(tx, orderID, order.Status, models.OrderStatusRejected); err != nil {
			return err
		}
		if reason != "" {
			if err := tx.Model(&models.Order{}).Where("id = ?", orderID).
				Update("reject_reason", reason).Error; err != nil {
				return errInternal("failed to record rejection reason", err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s.reload(orderID)
}

// DeleteOrder removes a not-started order together with its participants
// and its bound group conversation
func (s *OrderService) DeleteOrder(orderID, callerID uint) error {
	var order models.Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNotFound("order not found")
		}
		return errInternal("failed to load order", err)
	}
	if order.InitiatorID != callerID {
		return errForbidden("only the order initiator may delete the order")
	}
	if order.Status != models.OrderStatusNotStarted {
		return errInvalidState("only a not-started order can be deleted")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&models.OrderParticipant{}).Error; err != nil {
			return errInternal("failed to delete order participants", err)
		}
		var conv models.Conversation
		err := tx.Where("order_id = ?", orderID).First(&conv).Error
		if err == nil {
			if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.ConversationParticipant{}).Error; err != nil {
				return errInternal("failed to delete conversation participants", err)
			}
			if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
				return errInternal("failed to delete conversation messages", err)
			}
			if err := tx.Delete(&conv).Error; err != nil {
				return errInternal("failed to delete conversation", err)
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errInternal("failed to load order conversation", err)
		}
		if err := tx.Delete(&order).Error; err != nil {
			return errInternal("failed to delete order", err)
		}
		return nil
	})
}

func (s *OrderService) initiatorTransition(orderID, callerID uint, from, to models.OrderStatus, extra map[string]interface{}) (*models.Order, error) {
	var order models.Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("order not found")
		}
		return nil, errInternal("failed to load order", err)
	}
	if order.InitiatorID != callerID {
		return nil, errForbidden("only the order initiator may update the order")
	}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := transitionOrderStatus(tx, orderID, from, to); err != nil {
			return err
		}
		if len(extra) > 0 {
			if err := tx.Model(&models.Order{}).Where("id = ?", orderID).Updates(extra).Error; err != nil {
				return errInternal("failed to update order", err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s.reload(orderID)
}

func (s *OrderService) reload(orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Initiator").First(&order, orderID).Error; err != nil {
		return nil, errInternal("failed to load order", err)
	}
	return &order, nil
}

// insertOrder creates the order row and its initiator participant inside
// the caller's transaction
func insertOrder(tx *gorm.DB, input CreateOrderInput) (*models.Order, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	order := models.Order{
		InitiatorID: input.InitiatorID,
		StartLoc:    input.StartLoc,
		DestLoc:     input.DestLoc,
		StartTime:   input.StartTime,
		Price:       input.Price,
		Status:      models.OrderStatusNotStarted,
		OrderType:   input.OrderType,
		CarType:     input.CarType,
	}

	identity := models.IdentityPassenger
	switch input.OrderType {
	case models.OrderTypePersonFindCar:
		order.TravelPartnerNum = input.TravelPartnerNum
	case models.OrderTypeCarFindPerson:
		order.SpareSeatNum = input.SpareSeatNum
		order.VehicleID = input.VehicleID
		identity = models.IdentityDriver
	}

	if err := tx.Create(&order).Error; err != nil {
		return nil, errInternal("failed to create order", err)
	}
	if err := addOrderParticipant(tx, order.ID, input.InitiatorID, identity, nil); err != nil {
		return nil, err
	}
	return &order, nil
}

// addOrderParticipant inserts a roster row, enforcing the single-driver
// invariant and rejecting duplicate participation
func addOrderParticipant(tx *gorm.DB, orderID, userID uint, identity models.ParticipantIdentity, initiatorID *uint) error {
	var count int64
	if err := tx.Model(&models.OrderParticipant{}).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		Count(&count).Error; err != nil {
		return errInternal("failed to check participation", err)
	}
	if count > 0 {
		return errConflict("user already participates in this order")
	}
	if identity == models.IdentityDriver {
		if err := tx.Model(&models.OrderParticipant{}).
			Where("order_id = ? AND identity = ?", orderID, models.IdentityDriver).
			Count(&count).Error; err != nil {
			return errInternal("failed to check driver participation", err)
		}
		if count > 0 {
			return errConflict("order already has a driver")
		}
	}

	participant := models.OrderParticipant{
		OrderID:     orderID,
		UserID:      userID,
		Identity:    identity,
		InitiatorID: initiatorID,
	}
	if err := tx.Create(&participant).Error; err != nil {
		return errInternal("failed to add order participant", err)
	}
	return nil
}

// transitionOrderStatus performs a guarded status change. The WHERE clause
// on the current status makes the check-and-set atomic: a concurrent
// transition loses the race and surfaces as InvalidState instead of
// silently overwriting.
func transitionOrderStatus(tx *gorm.DB, orderID uint, from, to models.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return errInvalidState("order cannot move from " + string(from) + " to " + string(to))
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return errInternal("failed to update order status", res.Error)
	}
	if res.RowsAffected == 0 {
		return errInvalidState("order is no longer " + string(from))
	}
	return nil
}

// claimSpareSeat atomically decrements spare_seat_num, failing with
// Conflict when no seat is left. Returns the remaining seat count.
func claimSpareSeat(tx *gorm.DB, orderID uint) (int, error) {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND spare_seat_num >= 1", orderID).
		UpdateColumn("spare_seat_num", gorm.Expr("spare_seat_num - 1"))
	if res.Error != nil {
		return 0, errInternal("failed to claim seat", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, errConflict("no spare seats left on this order")
	}

	var order models.Order
	if err := tx.Select("spare_seat_num").First(&order, orderID).Error; err != nil {
		return 0, errInternal("failed to reload seat count", err)
	}
	return order.SpareSeatNum, nil
}
