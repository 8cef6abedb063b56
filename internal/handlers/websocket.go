package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"palpitos-backend/internal/middleware"
	"palpitos-backend/internal/models"
	"palpitos-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for MVP
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *services.WSHub
	userService    *services.UserService
	coupleService  *services.CoupleService
	emotionService *services.EmotionService
	pollInterval   time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	userService *services.UserService,
	coupleService *services.CoupleService,
	emotionService *services.EmotionService,
	pollInterval time.Duration,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		userService:    userService,
		coupleService:  coupleService,
		emotionService: emotionService,
		pollInterval:   pollInterval,
	}
}

// hubSink forwards watcher observations to the user's connection.
type hubSink struct {
	hub    *services.WSHub
	userID string
}

func (s *hubSink) PartnerState(state *models.EmotionalState) {
	s.hub.NotifyStateChanged(s.userID, state)
}

func (s *hubSink) UnreadCount(count int, alert bool) {
	c := count
	if err := s.hub.SendToUser(s.userID, services.WSMessage{
		Type:  "unread_count",
		Count: &c,
		Alert: alert,
	}); err != nil {
		log.Debug().Err(err).Str("user_id", s.userID).Msg("Failed to push unread count")
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.userService)
	if err != nil {
		respondError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID)

	ctx := r.Context()

	// Resolve the partner; the pollers only run for paired users
	var partnerID string
	couple, err := h.coupleService.GetByUserID(ctx, userID)
	if err == nil && couple != nil {
		partnerID = couple.PartnerOf(userID)
		h.hub.NotifyPartnerStatus(partnerID, true)
		defer h.hub.NotifyPartnerStatus(partnerID, false)
	}

	statusMsg := services.WSMessage{
		Type: "couple_status",
		Data: map[string]interface{}{"linked": couple != nil},
	}
	if couple != nil {
		statusMsg.Data = map[string]interface{}{"linked": true, "couple_id": couple.ID}
	}
	if err := h.hub.SendToUser(userID, statusMsg); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("Failed to send couple status")
	}

	if partnerID != "" {
		watcher := services.NewWatcher(userID, partnerID, h.emotionService,
			&hubSink{hub: h.hub, userID: userID}, h.pollInterval)
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendErrorToUser(userID, "Invalid message format")
			continue
		}

		if err := h.handleMessage(ctx, userID, partnerID, msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
			h.sendErrorToUser(userID, err.Error())
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID, partnerID string, msg services.WSMessage) error {
	switch msg.Type {
	case "set_state":
		return h.handleSetState(ctx, userID, partnerID, msg)
	default:
		return h.sendErrorToUser(userID, "Unknown message type")
	}
}

// handleSetState appends a state record announced over the socket and
// pushes it straight to the partner.
func (h *WebSocketHandler) handleSetState(ctx context.Context, userID, partnerID string, msg services.WSMessage) error {
	emotion, err := models.ParseEmotion(msg.State)
	if err != nil {
		return h.sendErrorToUser(userID, err.Error())
	}

	intensity := msg.Intensity
	if intensity == 0 {
		intensity = 1
	}

	state, err := h.emotionService.SetMyState(ctx, userID, emotion, intensity)
	if err != nil {
		return h.sendErrorToUser(userID, "Failed to set state")
	}

	if partnerID != "" && h.hub.IsOnline(partnerID) {
		h.hub.NotifyStateChanged(partnerID, state)
	}

	return nil
}

// sendErrorToUser sends an error event through the hub, which owns the
// connection's write lock; nothing writes to the conn directly.
func (h *WebSocketHandler) sendErrorToUser(userID, message string) error {
	msg := services.WSMessage{
		Type:    "error",
		Message: message,
	}
	return h.hub.SendToUser(userID, msg)
}
