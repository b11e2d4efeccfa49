package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	config "workhub/configs"
	"workhub/database"
	"workhub/services"
	"workhub/websocket"
)

// currentUserID pulls the authenticated user out of the JWT the Protected
// middleware already verified.
func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, errors.New("missing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("malformed claims")
	}
	raw, _ := claims["user_id"].(string)
	return uuid.Parse(raw)
}

func GetUserConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	summaries, err := services.ListConversations(c.Context(), database.DB, userID)
	if err != nil {
		log.Printf("Failed to load conversations for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load conversations"})
	}

	return c.JSON(summaries)
}

func CreateOrGetConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	type Request struct {
		RecipientID string `json:"recipient_id" validate:"required,uuid"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	recipientID, _ := uuid.Parse(req.RecipientID)

	conversation, created, err := services.FindOrCreateDirectConversation(c.Context(), database.DB, userID, recipientID)
	switch {
	case errors.Is(err, services.ErrSameUser):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot start a conversation with yourself"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	case err != nil:
		log.Printf("Failed to create conversation for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create conversation"})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conversation)
}

func GetConversationMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "50"))

	messages, err := services.LoadMessages(c.Context(), database.DB, conversationID, userID, page, pageSize)
	if errors.Is(err, services.ErrAccessDenied) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}
	if err != nil {
		log.Printf("Failed to fetch messages for %s: %v", conversationID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch messages"})
	}

	return c.JSON(messages)
}

func SendConversationMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	type Request struct {
		Content string `json:"content"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	message, err := services.SendMessage(c.Context(), database.DB, conversationID, userID, req.Content)
	if errors.Is(err, services.ErrAccessDenied) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}
	if err != nil {
		log.Printf("Failed to send message to %s: %v", conversationID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send message"})
	}
	if message == nil {
		// Blank content is silently dropped, not an error.
		return c.SendStatus(fiber.StatusNoContent)
	}

	websocket.Broadcast <- message

	return c.Status(fiber.StatusCreated).JSON(message)
}

func MarkConversationRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	err = services.MarkConversationRead(c.Context(), database.DB, conversationID, userID)
	if errors.Is(err, services.ErrAccessDenied) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}
	if err != nil {
		log.Printf("Failed to mark %s read: %v", conversationID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark conversation read"})
	}

	return c.JSON(fiber.Map{"message": "Conversation marked as read"})
}

// ServeWs upgrades an authenticated client onto the realtime bridge. The
// first frame must be {"type":"auth","token":...}; after that every frame
// is a message to post. Unregister runs in a defer so no exit path leaks
// a registered client.
func ServeWs(c *websocketcontrib.Conn) {
	type AuthMessage struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	var authMsg AuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	raw, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid user_id %q: %v", raw, err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid user ID"})
		c.Close()
		return
	}

	client := &websocket.Client{UserID: userID, Conn: c}
	websocket.Register <- client
	defer func() {
		websocket.Unregister <- client
		c.Close()
	}()

	for {
		var msg websocket.MessagePayload
		if err := c.ReadJSON(&msg); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %s: %v", userID, err)
			} else {
				log.Printf("WebSocket read error for client %s: %v", userID, err)
			}
			break
		}

		conversationID, err := uuid.Parse(msg.ConversationID)
		if err != nil {
			_ = client.WriteJSON(fiber.Map{"error": "Invalid conversation ID"})
			continue
		}

		message, err := services.SendMessage(context.Background(), database.DB, conversationID, userID, msg.Content)
		if errors.Is(err, services.ErrAccessDenied) {
			_ = client.WriteJSON(fiber.Map{"error": "Not a participant of this conversation"})
			continue
		}
		if err != nil {
			log.Printf("Failed to save message for client %s: %v", userID, err)
			_ = client.WriteJSON(fiber.Map{"error": "Failed to save message"})
			continue
		}
		if message == nil {
			continue
		}

		websocket.Broadcast <- message
	}
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
