package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
	"github.com/shiyuan-lin/carpool-api/utils"
)

// DriverApplyRequest represents the request body for a driver application
type DriverApplyRequest struct {
	OrderID   uint `json:"order_id" binding:"required"`
	VehicleID uint `json:"vehicle_id" binding:"required"`
}

// DriverApply handles POST /api/v1/orders/driver/apply
func DriverApply(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	var req DriverApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	workflow := services.NewWorkflowService(config.GetDB(), services.DefaultHub)
	message, err := workflow.DriverApply(req.OrderID, userID, req.VehicleID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, "application submitted", gin.H{"message": message})
}

// PassengerApplyRequest represents the request body for a passenger
// application
type PassengerApplyRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

// PassengerApply handles POST /api/v1/orders/passenger/apply
func PassengerApply(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	var req PassengerApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	workflow := services.NewWorkflowService(config.GetDB(), services.DefaultHub)
	message, err := workflow.PassengerApply(req.OrderID, userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, "application submitted", gin.H{"message": message})
}

// InvitePassengerRequest represents the request body for inviting a user
type InvitePassengerRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
	UserID  uint `json:"user_id" binding:"required"`
}

// InvitePassenger handles POST /api/v1/orders/passenger/invite
func InvitePassenger(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	var req InvitePassengerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	workflow := services.NewWorkflowService(config.GetDB(), services.DefaultHub)
	message, err := workflow.InvitePassenger(req.OrderID, userID, req.UserID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, "invitation sent", gin.H{"message": message})
}

// ResolveRequest represents the request body for accepting or rejecting a
// pending application or invitation
type ResolveRequest struct {
	MessageID uint `json:"message_id" binding:"required"`
}

var applicationTypes = []models.MessageType{models.MessageApplyJoin, models.MessageApplyOrder}

// AcceptApplication handles POST /api/v1/orders/apply/accept
func AcceptApplication(c *gin.Context) {
	resolveWorkflow(c, true, applicationTypes, "application accepted")
}

// RejectApplication handles POST /api/v1/orders/apply/reject
func RejectApplication(c *gin.Context) {
	resolveWorkflow(c, false, applicationTypes, "application rejected")
}

// AcceptInvitation handles POST /api/v1/orders/invitation/accept
func AcceptInvitation(c *gin.Context) {
	resolveWorkflow(c, true, []models.MessageType{models.MessageInvitation}, "invitation accepted")
}

// RejectInvitation handles POST /api/v1/orders/invitation/reject
func RejectInvitation(c *gin.Context) {
	resolveWorkflow(c, false, []models.MessageType{models.MessageInvitation}, "invitation rejected")
}

func resolveWorkflow(c *gin.Context, accept bool, allowed []models.MessageType, okMessage string) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	workflow := services.NewWorkflowService(config.GetDB(), services.DefaultHub)
	var message *models.Message
	if accept {
		message, err = workflow.Accept(req.MessageID, userID, allowed...)
	} else {
		message, err = workflow.Reject(req.MessageID, userID, allowed...)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, okMessage, gin.H{"message": message})
}
