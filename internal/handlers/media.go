package handlers

import (
	"net/http"
	"strconv"

	"palpitos-backend/internal/middleware"
	"palpitos-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes caps a single private image upload at 25 MiB.
const maxUploadBytes = 25 << 20

// MediaHandler handles private image HTTP requests
type MediaHandler struct {
	mediaService  *services.MediaService
	coupleService *services.CoupleService
	userService   *services.UserService
	wsHub         *services.WSHub
	push          *services.PushNotifier
}

// NewMediaHandler creates a new media handler. push may be nil.
func NewMediaHandler(
	mediaService *services.MediaService,
	coupleService *services.CoupleService,
	userService *services.UserService,
	wsHub *services.WSHub,
	push *services.PushNotifier,
) *MediaHandler {
	return &MediaHandler{
		mediaService:  mediaService,
		coupleService: coupleService,
		userService:   userService,
		wsHub:         wsHub,
		push:          push,
	}
}

// SendImage handles POST /api/v1/images (multipart: file, caption,
// max_views, expires_in_hours, media_type)
func (h *MediaHandler) SendImage(w http.ResponseWriter, r *http.Request) {
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
	partnerID := couple.PartnerOf(userID)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	opts := services.SendImageOptions{
		Caption:   r.FormValue("caption"),
		MediaType: r.FormValue("media_type"),
	}

	// max_views defaults to one view; "unlimited" lifts the bound
	switch raw := r.FormValue("max_views"); raw {
	case "":
		one := 1
		opts.MaxViews = &one
	case "unlimited":
		opts.MaxViews = nil
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, "max_views must be a number or \"unlimited\"", http.StatusBadRequest)
			return
		}
		opts.MaxViews = &n
	}

	if raw := r.FormValue("expires_in_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, "expires_in_hours must be a number", http.StatusBadRequest)
			return
		}
		opts.ExpiresInHours = n
	}

	img, err := h.mediaService.Send(ctx, userID, partnerID, file, contentType, opts)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to send private image")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("image_id", img.ID).
		Msg("Private image sent")

	if h.wsHub.IsOnline(partnerID) {
		h.wsHub.NotifyNewImage(partnerID, img)
	} else if h.push != nil {
		if partner, err := h.userService.GetUser(ctx, partnerID); err == nil && partner.PushToken != nil {
			go h.push.Notify(*partner.PushToken, "Tu pareja te envió una imagen 📸")
		}
	}

	respondJSON(w, http.StatusOK, img)
}

// ListPending handles GET /api/v1/images/pending
func (h *MediaHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	images, err := h.mediaService.ListPending(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list pending images")
		respondError(w, "Failed to list pending images", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"images": images,
		"total":  len(images),
	})
}

// OpenImage handles GET /api/v1/images/{image_id}/url
func (h *MediaHandler) OpenImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	imageID := chi.URLParam(r, "image_id")

	url, err := h.mediaService.Open(ctx, userID, imageID)
	if err != nil {
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"url": url})
}

// CloseImage handles POST /api/v1/images/{image_id}/close
func (h *MediaHandler) CloseImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	imageID := chi.URLParam(r, "image_id")

	result, err := h.mediaService.Close(ctx, userID, imageID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("image_id", imageID).
			Msg("Failed to close private image")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// DestroyImage handles POST /api/v1/images/{image_id}/destroy
func (h *MediaHandler) DestroyImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID := chi.URLParam(r, "image_id")

	if err := h.mediaService.DestroyIfExhausted(ctx, imageID); err != nil {
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveImage handles DELETE /api/v1/images/{image_id}
func (h *MediaHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	imageID := chi.URLParam(r, "image_id")

	if err := h.mediaService.Remove(ctx, userID, imageID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("image_id", imageID).
			Msg("Failed to remove private image")
		respondError(w, err.Error(), statusFromError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
