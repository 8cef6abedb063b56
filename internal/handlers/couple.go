package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"palpitos-backend/internal/middleware"
	"palpitos-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CoupleHandler handles pairing HTTP requests
type CoupleHandler struct {
	coupleService *services.CoupleService
	wsHub         *services.WSHub
}

// NewCoupleHandler creates a new couple handler
func NewCoupleHandler(coupleService *services.CoupleService, wsHub *services.WSHub) *CoupleHandler {
	return &CoupleHandler{
		coupleService: coupleService,
		wsHub:         wsHub,
	}
}

// LinkRequest represents the request body for linking with a partner
type LinkRequest struct {
	PartnerCode string `json:"partner_code"`
}

// Link handles POST /api/v1/couples
func (h *CoupleHandler) Link(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.PartnerCode = strings.ToUpper(strings.TrimSpace(req.PartnerCode))
	if req.PartnerCode == "" {
		respondError(w, "partner_code is required", http.StatusBadRequest)
		return
	}

	couple, err := h.coupleService.Link(ctx, userID, req.PartnerCode)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to link couple")

		statusCode := statusFromError(err)
		if statusCode == http.StatusInternalServerError && strings.Contains(err.Error(), "already linked") {
			statusCode = http.StatusConflict
		}

		respondError(w, err.Error(), statusCode)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("couple_id", couple.ID).
		Msg("Couple linked")

	// Push the linked event to both members if they are connected
	for _, memberID := range []string{couple.User1ID, couple.User2ID} {
		if h.wsHub.IsOnline(memberID) {
			if err := h.wsHub.NotifyCoupleLinked(memberID, couple); err != nil {
				log.Debug().Err(err).Str("user_id", memberID).Msg("Failed to notify couple linked")
			}
		}
	}

	respondJSON(w, http.StatusOK, couple)
}

// GetMine handles GET /api/v1/couples/me
func (h *CoupleHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	couple, err := h.coupleService.GetByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get couple")
		respondError(w, "Failed to get couple", http.StatusInternalServerError)
		return
	}
	if couple == nil {
		respondError(w, "user is not linked", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"couple":     couple,
		"partner_id": couple.PartnerOf(userID),
	})
}

// Unlink handles DELETE /api/v1/couples/{couple_id}
func (h *CoupleHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	coupleID := chi.URLParam(r, "couple_id")

	if coupleID == "" {
		respondError(w, "couple_id is required", http.StatusBadRequest)
		return
	}

	// Resolve the partner before the row disappears
	couple, err := h.coupleService.GetByID(ctx, coupleID)
	if err != nil {
		respondError(w, err.Error(), statusFromError(err))
		return
	}
	if !couple.IsMember(userID) {
		respondError(w, "user is not a member of this couple", http.StatusForbidden)
		return
	}
	partnerID := couple.PartnerOf(userID)

	if err := h.coupleService.Unlink(ctx, coupleID, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("couple_id", coupleID).
			Msg("Failed to unlink couple")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("couple_id", coupleID).
		Msg("Couple unlinked")

	for _, memberID := range []string{userID, partnerID} {
		if h.wsHub.IsOnline(memberID) {
			if err := h.wsHub.NotifyCoupleUnlinked(memberID); err != nil {
				log.Debug().Err(err).Str("user_id", memberID).Msg("Failed to notify couple unlinked")
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
