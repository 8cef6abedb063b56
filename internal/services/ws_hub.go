package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"palpitos-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket event
type WSMessage struct {
	Type      string      `json:"type"`
	State     string      `json:"state,omitempty"`
	Intensity int         `json:"intensity,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Alert     bool        `json:"alert,omitempty"`
	Online    *bool       `json:"online,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// wsClient wraps one registered connection. gorilla/websocket allows a
// single concurrent writer per connection, while a connected user has
// several: two poller goroutines, handler pushes, and the read loop's
// error replies. The mutex serializes them all.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) close() {
	c.conn.Close()
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.clients[userID]; exists {
		existing.close()
	}

	h.clients[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes a WebSocket connection for a user
func (h *WSHub) Unregister(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[userID]; exists {
		client.close()
		delete(h.clients, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends an event to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.clients[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user has a live connection
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// NotifyPartnerStatus tells a user their partner went online or offline
func (h *WSHub) NotifyPartnerStatus(partnerID string, online bool) {
	if partnerID == "" {
		return
	}

	message := WSMessage{
		Type:   "partner_status",
		Online: &online,
	}

	if err := h.SendToUser(partnerID, message); err != nil {
		log.Debug().
			Err(err).
			Str("user_id", partnerID).
			Msg("Failed to notify partner status")
	}
}

// NotifyStateChanged pushes a partner's fresh emotional state to a user
func (h *WSHub) NotifyStateChanged(userID string, state *models.EmotionalState) {
	message := WSMessage{
		Type:      "partner_state",
		State:     string(state.State),
		Intensity: state.Intensity,
	}

	if err := h.SendToUser(userID, message); err != nil {
		log.Debug().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to push partner state")
	}
}

// NotifyNewMessage pushes a freshly sent sync message to its recipient
func (h *WSHub) NotifyNewMessage(userID string, msg *models.SyncMessage) {
	message := WSMessage{
		Type: "new_message",
		Data: msg,
	}

	if err := h.SendToUser(userID, message); err != nil {
		log.Debug().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to push new message")
	}
}

// NotifyNewImage tells a recipient a private image is waiting. Only the
// id and caption travel over the socket; the bytes stay behind signed URLs.
func (h *WSHub) NotifyNewImage(userID string, img *models.PrivateImage) {
	data := map[string]interface{}{
		"image_id":   img.ID,
		"media_type": img.MediaType,
	}
	if img.Caption != nil {
		data["caption"] = *img.Caption
	}

	message := WSMessage{
		Type: "new_image",
		Data: data,
	}

	if err := h.SendToUser(userID, message); err != nil {
		log.Debug().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to push new image event")
	}
}

// NotifyCoupleLinked notifies a user that their couple was created
func (h *WSHub) NotifyCoupleLinked(userID string, couple *models.Couple) error {
	message := WSMessage{
		Type: "couple_linked",
		Data: couple,
	}
	return h.SendToUser(userID, message)
}

// NotifyCoupleUnlinked notifies a user that their couple was deleted
func (h *WSHub) NotifyCoupleUnlinked(userID string) error {
	message := WSMessage{
		Type: "couple_unlinked",
	}
	return h.SendToUser(userID, message)
}
