package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"workhub/models"
	"workhub/services"
)

type Client struct {
	UserID uuid.UUID
	Conn   *websocket.Conn

	writeMu sync.Mutex
}

// WriteJSON serializes writes to the connection. The hub goroutine and
// the connection's reader goroutine both send frames, and the underlying
// websocket forbids concurrent writers.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// MessagePayload is what a connected client sends to post into a
// conversation over the socket.
type MessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// Event is the envelope pushed to subscribed clients. Type is "message"
// for new message rows and "presence" for presence row changes.
type Event struct {
	Type     string               `json:"type"`
	Message  *models.Message      `json:"message,omitempty"`
	Presence *models.UserPresence `json:"presence,omitempty"`
}

var clients = make(map[uuid.UUID]*Client)
var clientsMu sync.RWMutex
var Register = make(chan *Client)
var Unregister = make(chan *Client)
var Broadcast = make(chan *models.Message)

var dbMu sync.RWMutex
var hubDB *gorm.DB

// UseDB points the hub's lookups at a database handle. Called once at
// startup before RunHub; tests swap in their own handle the same way.
func UseDB(db *gorm.DB) {
	dbMu.Lock()
	hubDB = db
	dbMu.Unlock()
}

func hubDatabase() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return hubDB
}

func addClient(client *Client) {
	clientsMu.Lock()
	clients[client.UserID] = client
	clientsMu.Unlock()
}

// removeClient drops the client's registration and reports whether it was
// still the current one. A reconnect replaces the map entry, so the old
// connection's deferred unregister finds someone else's registration and
// must not remove it or announce its owner offline.
func removeClient(client *Client) bool {
	clientsMu.Lock()
	defer clientsMu.Unlock()
	if current, ok := clients[client.UserID]; ok && current == client {
		delete(clients, client.UserID)
		return true
	}
	return false
}

// RunHub owns the client registry. Connecting marks a user online and
// disconnecting marks them offline; both changes fan out to every client
// so peers can refresh their online-user lists. New messages are delivered
// to the conversation's participants, sender excluded.
func RunHub() {
	for {
		select {
		case client := <-Register:
			log.Printf("Client registered: %s", client.UserID)
			addClient(client)
			announcePresence(client.UserID, models.PresenceOnline)

		case client := <-Unregister:
			log.Printf("Client unregistered: %s", client.UserID)
			if removeClient(client) {
				announcePresence(client.UserID, models.PresenceOffline)
			}

		case message := <-Broadcast:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			participantIDs, err := services.ParticipantIDs(ctx, hubDatabase(), message.ConversationID)
			cancel()
			if err != nil {
				log.Printf("Error fetching participant IDs for conversation %s: %v", message.ConversationID, err)
				continue
			}

			event := Event{Type: "message", Message: message}
			for _, participantID := range participantIDs {
				if participantID == message.SenderID {
					continue
				}
				sendToUser(participantID, event)
			}
		}
	}
}

// announcePresence persists the status change and tells every connected
// client about it. Clients react by reloading their online-user list.
func announcePresence(userID uuid.UUID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	presence, err := services.UpdatePresence(ctx, hubDatabase(), userID, status)
	if err != nil {
		log.Printf("Error updating presence for %s: %v", userID, err)
		return
	}

	event := Event{Type: "presence", Presence: presence}
	clientsMu.RLock()
	ids := make([]uuid.UUID, 0, len(clients))
	for id := range clients {
		ids = append(ids, id)
	}
	clientsMu.RUnlock()

	for _, id := range ids {
		sendToUser(id, event)
	}
}

func sendToUser(userID uuid.UUID, event Event) {
	clientsMu.RLock()
	client, ok := clients[userID]
	clientsMu.RUnlock()
	if !ok {
		return
	}

	if err := client.WriteJSON(event); err != nil {
		log.Printf("Error sending event to client %s: %v", userID, err)
		client.Conn.Close()
		removeClient(client)
	}
}
