package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/utils"
)

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	ConversationID uint    `json:"conversation_id" binding:"required"`
	Content        string  `json:"content"`
	MessageType    string  `json:"message_type"`
	AttachmentKey  *string `json:"attachment_key"`
}

// SendMessage handles POST /api/v1/messages
func SendMessage(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	messageType := models.MessageText
	if req.MessageType != "" {
		parsed, ok := models.ParseMessageType(req.MessageType)
		if !ok {
			utils.RespondValidation(c, "invalid message type")
			return
		}
		// Workflow types are minted by the orchestrator, not by clients.
		if parsed != models.MessageText && parsed != models.MessageImage && parsed != models.MessageFile {
			utils.RespondValidation(c, "message type is reserved for workflow operations")
			return
		}
		messageType = parsed
	}

	message, err := conversationService().SendMessage(req.ConversationID, userID, req.Content, messageType, nil, req.AttachmentKey)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, "message sent", gin.H{"message": message})
}
