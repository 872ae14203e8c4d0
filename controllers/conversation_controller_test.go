package controllers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
)

func newConversationTestRouter(userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/v1", asUser(userID))
	{
		group.GET("/conversations", ListConversations)
		group.GET("/conversations/:id/messages", ListMessages)
		group.POST("/conversations/private", CreatePrivateConversation)
		group.POST("/messages", SendMessage)
	}
	return router
}

func seedTwoUsers(t *testing.T, db *gorm.DB) (*models.User, *models.User) {
	t.Helper()
	alice := models.User{Username: "alice"}
	bob := models.User{Username: "bob"}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)
	return &alice, &bob
}

func TestCreatePrivateConversationEndpoint(t *testing.T) {
	db := setupControllerTestDB(t)
	alice, bob := seedTwoUsers(t, db)

	router := newConversationTestRouter(alice.ID)

	w := performJSON(router, "POST", "/api/v1/conversations/private", map[string]interface{}{"user_id": bob.ID})
	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeEnvelope(t, w)
	data := response["data"].(map[string]interface{})
	conv := data["conversation"].(map[string]interface{})
	assert.Equal(t, "private", conv["type"])

	// Opening it again returns the same conversation.
	w = performJSON(router, "POST", "/api/v1/conversations/private", map[string]interface{}{"user_id": bob.ID})
	assert.Equal(t, http.StatusOK, w.Code)
	again := decodeEnvelope(t, w)["data"].(map[string]interface{})["conversation"].(map[string]interface{})
	assert.Equal(t, conv["id"], again["id"])

	// Unknown counterpart.
	w = performJSON(router, "POST", "/api/v1/conversations/private", map[string]interface{}{"user_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Missing body field.
	w = performJSON(router, "POST", "/api/v1/conversations/private", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendAndListMessagesEndpoints(t *testing.T) {
	db := setupControllerTestDB(t)
	alice, bob := seedTwoUsers(t, db)

	conversations := services.NewConversationService(db, nil, nil)
	conv, err := conversations.GetOrCreatePrivate(alice.ID, bob.ID)
	require.NoError(t, err)

	aliceRouter := newConversationTestRouter(alice.ID)
	bobRouter := newConversationTestRouter(bob.ID)

	w := performJSON(aliceRouter, "POST", "/api/v1/messages", map[string]interface{}{
		"conversation_id": conv.ID,
		"content":         "hello bob",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Workflow types cannot be minted through the chat endpoint.
	w = performJSON(aliceRouter, "POST", "/api/v1/messages", map[string]interface{}{
		"conversation_id": conv.ID,
		"content":         "sneaky",
		"message_type":    "apply_join",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bob reads the conversation; his unread count drops to zero.
	w = performJSON(bobRouter, "GET", "/api/v1/conversations/1/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeEnvelope(t, w)
	messages := response["data"].([]interface{})
	require.Len(t, messages, 1)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "hello bob", first["content"])
	assert.Equal(t, "text", first["message_type"])

	w = performJSON(bobRouter, "GET", "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	summaries := decodeEnvelope(t, w)["data"].([]interface{})
	require.Len(t, summaries, 1)
	summary := summaries[0].(map[string]interface{})
	assert.Equal(t, float64(0), summary["unread_count"])
	assert.Equal(t, "hello bob", summary["last_message"].(map[string]interface{})["content"])

	// An invalid before bound is rejected.
	w = performJSON(bobRouter, "GET", "/api/v1/conversations/1/messages?before=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMessagesForbiddenForOutsiders(t *testing.T) {
	db := setupControllerTestDB(t)
	alice, bob := seedTwoUsers(t, db)
	mallory := models.User{Username: "mallory"}
	require.NoError(t, db.Create(&mallory).Error)

	conversations := services.NewConversationService(db, nil, nil)
	conv, err := conversations.GetOrCreatePrivate(alice.ID, bob.ID)
	require.NoError(t, err)

	malloryRouter := newConversationTestRouter(mallory.ID)

	w := performJSON(malloryRouter, "GET", "/api/v1/conversations/1/messages", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performJSON(malloryRouter, "POST", "/api/v1/messages", map[string]interface{}{
		"conversation_id": conv.ID,
		"content":         "let me in",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
