package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/services"
	"github.com/shiyuan-lin/carpool-api/utils"
)

func conversationService() *services.ConversationService {
	return services.NewConversationService(config.GetDB(), services.GetS3Service(), services.DefaultHub)
}

// ListConversations handles GET /api/v1/conversations
func ListConversations(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}

	summaries, err := conversationService().ListConversations(userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, "conversation list", summaries)
}

// ListMessages handles GET /api/v1/conversations/:id/messages
// The optional "before" query parameter (RFC3339) bounds the page.
func ListMessages(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.RespondValidation(c, "invalid before parameter")
			return
		}
		before = &parsed
	}

	messages, err := conversationService().ListMessages(conversationID, userID, before)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, "message list", messages)
}

// CreatePrivateConversationRequest represents the request body for
// opening a private conversation
type CreatePrivateConversationRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// CreatePrivateConversation handles POST /api/v1/conversations/private
func CreatePrivateConversation(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondUnauthorized(c, "could not extract user information")
		return
	}
	var req CreatePrivateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidation(c, "invalid request data: "+err.Error())
		return
	}

	// The counterpart must resolve before a channel is opened to them.
	directory := services.NewDirectoryService(config.GetDB())
	if _, err := directory.LookupUser(req.UserID); err != nil {
		utils.RespondError(c, err)
		return
	}

	conv, err := conversationService().GetOrCreatePrivate(userID, req.UserID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, "private conversation", gin.H{"conversation": conv})
}
