package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"palpitos-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// statusFromError maps business errors to HTTP status codes
func statusFromError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrNotSynced),
		errors.Is(err, services.ErrNotExhausted):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrMessageTooLong),
		errors.Is(err, services.ErrCaptionTooLong),
		errors.Is(err, services.ErrInvalidEmotion):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUploadFailed),
		errors.Is(err, services.ErrPersistFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
