package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
)

// authDeadline bounds how long an unauthenticated connection may hold a
// socket before sending its credential frame
const authDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set custom headers on websocket upgrades, so
	// origin checking is left to the CORS layer in front of us.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientEvent is the wire shape of every client-to-server frame
type clientEvent struct {
	Event          string  `json:"event"`
	Token          string  `json:"token"`
	ConversationID uint    `json:"conversation_id"`
	OrderID        uint    `json:"order_id"`
	Content        string  `json:"content"`
	MessageType    string  `json:"message_type"`
	AttachmentKey  *string `json:"attachment_key"`
}

// HandleWebSocket upgrades GET /ws connections and runs the per-client
// event loop. The credential is taken from the Authorization header, then
// the token query parameter, then the first frame's token field; the
// connection is bound to the resolved user for its whole lifetime.
func HandleWebSocket(validator services.CredentialValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractSocketToken(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		if token == "" {
			token, err = readTokenFrame(conn)
			if err != nil {
				closeUnauthorized(conn, "authentication credential is missing")
				return
			}
		}
		userID, err := validator.ValidateCredential(token)
		if err != nil {
			closeUnauthorized(conn, "invalid authentication credential")
			return
		}

		client := services.NewClient(conn, userID)
		hub := services.DefaultHub
		hub.Register(client)
		go client.WritePump()
		defer hub.Unregister(client)

		client.SendEvent("connected", gin.H{"user_id": userID})

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var event clientEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				client.SendEvent("message_error", gin.H{"message": "malformed event payload"})
				continue
			}
			dispatchClientEvent(hub, client, event)
		}
	}
}

func dispatchClientEvent(hub *services.Hub, client *services.Client, event clientEvent) {
	switch event.Event {
	case "join_conversation":
		joinConversation(hub, client, event)
	case "leave_conversation":
		hub.LeaveRoom(event.ConversationID, client)
	case "send_message":
		sendSocketMessage(client, event)
	case "send_invitation":
		sendSocketInvitation(client, event)
	default:
		client.SendEvent("message_error", gin.H{"message": "unknown event: " + event.Event})
	}
}

// joinConversation admits the connection to a conversation's room after a
// membership check; joining a room twice is a no-op
func joinConversation(hub *services.Hub, client *services.Client, event clientEvent) {
	ok, err := conversationService().IsParticipant(event.ConversationID, client.UserID)
	if err != nil {
		client.SendEvent("message_error", gin.H{"message": "failed to check conversation membership"})
		return
	}
	if !ok {
		client.SendEvent("message_error", gin.H{"message": "you are not a participant of this conversation"})
		return
	}
	hub.JoinRoom(event.ConversationID, client)
	client.SendEvent("joined_conversation", gin.H{"conversation_id": event.ConversationID})
}

func sendSocketMessage(client *services.Client, event clientEvent) {
	messageType := models.MessageText
	if event.MessageType != "" {
		parsed, ok := models.ParseMessageType(event.MessageType)
		if !ok || (parsed != models.MessageText && parsed != models.MessageImage && parsed != models.MessageFile) {
			client.SendEvent("message_error", gin.H{"message": "invalid message type"})
			return
		}
		messageType = parsed
	}

	// The service broadcasts new_message to the room, which includes the
	// sender's own connection.
	_, err := conversationService().SendMessage(event.ConversationID, client.UserID, event.Content, messageType, nil, event.AttachmentKey)
	if err != nil {
		client.SendEvent("message_error", gin.H{"message": err.Error()})
	}
}

// sendSocketInvitation invites the counterpart of a private conversation
// to the caller's order
func sendSocketInvitation(client *services.Client, event clientEvent) {
	inviteeID, err := conversationService().PrivateCounterpart(event.ConversationID, client.UserID)
	if err != nil {
		client.SendEvent("invitation_error", gin.H{"message": err.Error()})
		return
	}
	workflow := services.NewWorkflowService(config.GetDB(), services.DefaultHub)
	if _, err := workflow.InvitePassenger(event.OrderID, client.UserID, inviteeID); err != nil {
		client.SendEvent("invitation_error", gin.H{"message": err.Error()})
	}
}

// extractSocketToken checks the Authorization header first, then the
// token query parameter
func extractSocketToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// readTokenFrame waits for the first frame and extracts its token field
func readTokenFrame(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(authDeadline))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	var frame clientEvent
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", err
	}
	if frame.Token == "" {
		return "", errors.New("credential frame carried no token")
	}
	return frame.Token, nil
}

func closeUnauthorized(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}
