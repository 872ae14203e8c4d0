package controllers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
	"github.com/shiyuan-lin/carpool-api/utils"
)

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	OrderType        string  `json:"order_type" binding:"required"`
	StartLoc         string  `json:"start_loc" binding:"required"`
	DestLoc          string  `json:"dest_loc" binding:"required"`
	StartTime        string  `json:"start_time" binding:"required"`
	Price            float64 `json:"price"`
	CarType          *string `json:"car_type"`
	TravelPartnerNum int     `json:"travel_partner_num"`
	SpareSeatNum     int     `json:"spare_seat_num"`
	VehicleID        *uint   `json:"vehicle_id"`
}

// startTimeLayouts are the accepted departure time formats
var startTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04"}

func parseStartTime(value string) (time.Time, bool) {
	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CreateOrder handles POST /api/v1/orders
func CreateOrder(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	orderType, ok := models.ParseOrderType(req.OrderType)
	if !ok {
		utils.RespondValidation(c, "invalid order type")
		return
	}
	startTime, ok := parseStartTime(req.StartTime)
	if !ok {
		utils.RespondValidation(c, "invalid start time format")
		return
	}

	workflow := services.NewWorkflowService(config.GetDB(), services.DefaultHub)
	order, conv, err := workflow.CreateOrder(services.CreateOrderInput{
		InitiatorID:      userID,
		OrderType:        orderType,
		StartLoc:         req.StartLoc,
		DestLoc:          req.DestLoc,
		StartTime:        startTime,
		Price:            req.Price,
		CarType:          req.CarType,
		TravelPartnerNum: req.TravelPartnerNum,
		SpareSeatNum:     req.SpareSeatNum,
		VehicleID:        req.VehicleID,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.RespondCreated(c, "order created", gin.H{
		"order":           order,
		"conversation_id": conv.ID,
	})
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	orders := services.NewOrderService(config.GetDB())
	order, participants, err := orders.GetOrder(orderID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.RespondOK(c, "order detail", gin.H{
		"order":        order,
		"participants": participants,
	})
}

// CompleteOrder handles POST /api/v1/orders/:id/complete
func CompleteOrder(c *gin.Context) {
	orderStatusTransition(c, func(orders *services.OrderService, orderID, userID uint) (*models.Order, error) {
		return orders.CompleteTrip(orderID, userID)
	}, "trip completed")
}

// MarkOrderPaid handles POST /api/v1/orders/:id/paid
func MarkOrderPaid(c *gin.Context) {
	orderStatusTransition(c, func(orders *services.OrderService, orderID, userID uint) (*models.Order, error) {
		return orders.MarkPaid(orderID, userID)
	}, "order marked as paid")
}

// RateOrderRequest represents the request body for rating an order
type RateOrderRequest struct {
	Rate *int `json:"rate" binding:"required"`
}

// RateOrder handles POST /api/v1/orders/:id/rate
func RateOrder(c *gin.Context) {
	var req RateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}
	orderStatusTransition(c, func(orders *services.OrderService, orderID, userID uint) (*models.Order, error) {
		return orders.Rate(orderID, userID, *req.Rate)
	}, "order rated")
}

// RejectOrderRequest represents the request body for rejecting an order
type RejectOrderRequest struct {
	Reason string `json:"reason"`
}

// RejectOrder handles POST /api/v1/orders/:id/reject
func RejectOrder(c *gin.Context) {
	var req RejectOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}
	orderStatusTransition(c, func(orders *services.OrderService, orderID, userID uint) (*models.Order, error) {
		return orders.RejectOrder(orderID, userID, req.Reason)
	}, "order rejected")
}

// DeleteOrder handles DELETE /api/v1/orders/:id
func DeleteOrder(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	orders := services.NewOrderService(config.GetDB())
	if err := orders.DeleteOrder(orderID, userID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, "order deleted", nil)
}

func orderStatusTransition(c *gin.Context, apply func(*services.OrderService, uint, uint) (*models.Order, error), message string) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	orders := services.NewOrderService(config.GetDB())
	order, err := apply(orders, orderID, userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, message, gin.H{"order": order})
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		utils.RespondValidation(c, "invalid "+name+" parameter")
		return 0, false
	}
	return uint(id), true
}
