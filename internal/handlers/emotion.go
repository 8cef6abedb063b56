package handlers

import (
	"encoding/json"
	"net/http"

	"palpitos-backend/internal/middleware"
	"palpitos-backend/internal/models"
	"palpitos-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// EmotionHandler handles emotional state and sync message HTTP requests
type EmotionHandler struct {
	emotionService *services.EmotionService
	coupleService  *services.CoupleService
	userService    *services.UserService
	wsHub          *services.WSHub
	push           *services.PushNotifier
}

// NewEmotionHandler creates a new emotion handler. push may be nil.
func NewEmotionHandler(
	emotionService *services.EmotionService,
	coupleService *services.CoupleService,
	userService *services.UserService,
	wsHub *services.WSHub,
	push *services.PushNotifier,
) *EmotionHandler {
	return &EmotionHandler{
		emotionService: emotionService,
		coupleService:  coupleService,
		userService:    userService,
		wsHub:          wsHub,
		push:           push,
	}
}

// SetStateRequest represents the request body for setting an emotional state
type SetStateRequest struct {
	State     string `json:"state"`
	Intensity int    `json:"intensity"`
}

// SetState handles POST /api/v1/state
func (h *EmotionHandler) SetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SetStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	emotion, err := models.ParseEmotion(req.State)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Intensity == 0 {
		req.Intensity = 1
	}

	state, err := h.emotionService.SetMyState(ctx, userID, emotion, req.Intensity)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to set state")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	// Push the change straight to the partner; polling is the fallback path
	if couple, err := h.coupleService.GetByUserID(ctx, userID); err == nil && couple != nil {
		partnerID := couple.PartnerOf(userID)
		if h.wsHub.IsOnline(partnerID) {
			h.wsHub.NotifyStateChanged(partnerID, state)
		}
	}

	respondJSON(w, http.StatusOK, state)
}

// GetMyState handles GET /api/v1/state
func (h *EmotionHandler) GetMyState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	state, err := h.emotionService.CurrentState(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get state")
		respondError(w, "Failed to get state", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// GetPartnerState handles GET /api/v1/state/partner
func (h *EmotionHandler) GetPartnerState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	couple, err := h.coupleService.GetByUserID(ctx, userID)
	if err != nil {
		respondError(w, "Failed to get couple", http.StatusInternalServerError)
		return
	}
	if couple == nil {
		respondError(w, "user is not linked", http.StatusNotFound)
		return
	}

	state, err := h.emotionService.CurrentState(ctx, couple.PartnerOf(userID))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get partner state")
		respondError(w, "Failed to get partner state", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// GetSyncStatus handles GET /api/v1/sync
func (h *EmotionHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	couple, err := h.coupleService.GetByUserID(ctx, userID)
	if err != nil {
		respondError(w, "Failed to get couple", http.StatusInternalServerError)
		return
	}
	if couple == nil {
		respondError(w, "user is not linked", http.StatusNotFound)
		return
	}

	status, err := h.emotionService.SyncStatus(ctx, couple.ID)
	if err != nil {
		log.Error().Err(err).Str("couple_id", couple.ID).Msg("Failed to get sync status")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// GetQuota handles GET /api/v1/messages/quota?emotion=loving
func (h *EmotionHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	emotion, err := models.ParseEmotion(r.URL.Query().Get("emotion"))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	couple, err := h.coupleService.GetByUserID(ctx, userID)
	if err != nil {
		respondError(w, "Failed to get couple", http.StatusInternalServerError)
		return
	}
	if couple == nil {
		respondError(w, "user is not linked", http.StatusNotFound)
		return
	}

	quota, err := h.emotionService.CheckEmotionQuota(ctx, couple.ID, userID, emotion)
	if err != nil {
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	respondJSON(w, http.StatusOK, quota)
}

// SendMessageRequest represents the request body for sending a sync message
type SendMessageRequest struct {
	Message string `json:"message"`
	Emotion string `json:"emotion"`
}

// SendMessage handles POST /api/v1/messages
func (h *EmotionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	emotion, err := models.ParseEmotion(req.Emotion)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	couple, err := h.coupleService.GetByUserID(ctx, userID)
	if err != nil {
		respondError(w, "Failed to get couple", http.StatusInternalServerError)
		return
	}
	if couple == nil {
		respondError(w, "user is not linked", http.StatusNotFound)
		return
	}

	partnerID := couple.PartnerOf(userID)
	msg, err := h.emotionService.SendSyncMessage(ctx, couple.ID, userID, partnerID, req.Message, emotion)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("couple_id", couple.ID).
			Msg("Failed to send sync message")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	h.notifyRecipient(r, partnerID, msg)

	// Re-derive the quota after the send so the client can display the
	// authoritative remaining count without tracking its own
	quota, err := h.emotionService.CheckEmotionQuota(ctx, couple.ID, userID, emotion)
	if err != nil {
		quota = services.QuotaStatus{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": msg,
		"quota":   quota,
	})
}

// notifyRecipient pushes the message over the hub when the recipient is
// connected, and falls back to APNs otherwise.
func (h *EmotionHandler) notifyRecipient(r *http.Request, partnerID string, msg *models.SyncMessage) {
	if h.wsHub.IsOnline(partnerID) {
		h.wsHub.NotifyNewMessage(partnerID, msg)
		return
	}
	if h.push == nil {
		return
	}
	partner, err := h.userService.GetUser(r.Context(), partnerID)
	if err != nil || partner.PushToken == nil {
		return
	}
	go h.push.Notify(*partner.PushToken, "Tu pareja te envió un mensaje 💌")
}

// GetUnread handles GET /api/v1/messages/unread
func (h *EmotionHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	messages, err := h.emotionService.UnreadMessages(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list unread messages")
		respondError(w, "Failed to list unread messages", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

// MarkRead handles POST /api/v1/messages/{message_id}/read
func (h *EmotionHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	messageID := chi.URLParam(r, "message_id")

	if messageID == "" {
		respondError(w, "message_id is required", http.StatusBadRequest)
		return
	}

	if err := h.emotionService.MarkRead(ctx, userID, messageID); err != nil {
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/messages/read
func (h *EmotionHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	affected, err := h.emotionService.MarkAllRead(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to mark all messages read")
		respondError(w, "Failed to mark all messages read", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"marked": affected})
}
