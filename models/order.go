package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the closed set of order lifecycle states
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusNotStarted OrderStatus = "not-started"
	OrderStatusInProgress OrderStatus = "in-progress"
	OrderStatusToPay      OrderStatus = "to-pay"
	OrderStatusToReview   OrderStatus = "to-review"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusRejected   OrderStatus = "rejected"
)

// OrderType distinguishes who is looking for whom
type OrderType string

const (
	// OrderTypePersonFindCar is a passenger-initiated order looking for a driver
	OrderTypePersonFindCar OrderType = "person_find_car"
	// OrderTypeCarFindPerson is a driver-initiated order offering spare seats
	OrderTypeCarFindPerson OrderType = "car_find_person"
)

// orderTransitions is the exhaustive table of legal status transitions.
// Completed and rejected are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusNotStarted, OrderStatusRejected},
	OrderStatusNotStarted: {OrderStatusInProgress, OrderStatusRejected},
	OrderStatusInProgress: {OrderStatusToPay},
	OrderStatusToPay:      {OrderStatusToReview},
	OrderStatusToReview:   {OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusRejected:   {},
}

// CanTransitionTo reports whether moving from s to target is a legal
// lifecycle transition
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// ParseOrderStatus validates a status value received at the boundary
func ParseOrderStatus(value string) (OrderStatus, bool) {
	s := OrderStatus(value)
	_, ok := orderTransitions[s]
	return s, ok
}

// ParseOrderType validates an order type value received at the boundary
func ParseOrderType(value string) (OrderType, bool) {
	switch t := OrderType(value); t {
	case OrderTypePersonFindCar, OrderTypeCarFindPerson:
		return t, true
	default:
		return "", false
	}
}

// Order represents a carpool order in the system.
//
// Exactly one of TravelPartnerNum / SpareSeatNum is meaningful per type:
// TravelPartnerNum counts seats wanted on a person_find_car order,
// SpareSeatNum counts seats still offered on a car_find_person order.
type Order struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	InitiatorID      uint           `gorm:"not null;index" json:"initiator_id"`
	Initiator        User           `gorm:"foreignKey:InitiatorID" json:"initiator"`
	StartLoc         string         `gorm:"size:100;not null;index" json:"start_loc"`
	DestLoc          string         `gorm:"size:100;not null" json:"dest_loc"`
	StartTime        time.Time      `gorm:"not null" json:"start_time"`
	Price            float64        `gorm:"not null" json:"price"`
	Status           OrderStatus    `gorm:"size:20;not null;index" json:"status"`
	OrderType        OrderType      `gorm:"size:20;not null" json:"order_type"`
	CarType          *string        `gorm:"size:50" json:"car_type,omitempty"`
	TravelPartnerNum int            `gorm:"not null;default:0;check:travel_partner_num >= 0" json:"travel_partner_num"`
	SpareSeatNum     int            `gorm:"not null;default:0;check:spare_seat_num >= 0" json:"spare_seat_num"`
	VehicleID        *uint          `gorm:"index" json:"vehicle_id,omitempty"`
	Vehicle          *Vehicle       `gorm:"foreignKey:VehicleID" json:"vehicle,omitempty"`
	Rate             *int           `json:"rate,omitempty"`
	RejectReason     *string        `gorm:"size:255" json:"reject_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}
