package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/broadcast/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{"error": msg, "code": code})
}

// mapError translates domain sentinel errors to HTTP status codes and stable
// machine-readable code strings. All mapping lives here so individual
// handlers stay concise; uncategorised errors never leak internal text.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrDeliveryNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrAlreadyCancelled):
		respondError(w, http.StatusConflict, "ALREADY_CANCELLED", err.Error())
	case errors.Is(err, domain.ErrAlreadyCompleted):
		respondError(w, http.StatusConflict, "ALREADY_COMPLETED", err.Error())
	case errors.Is(err, domain.ErrNotUpdatable):
		respondError(w, http.StatusConflict, "NOT_UPDATABLE", err.Error())
	case errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidSubject),
		errors.Is(err, domain.ErrInvalidBody),
		errors.Is(err, domain.ErrInvalidSendAt),
		errors.Is(err, domain.ErrInvalidAudience):
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, domain.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, "QUEUE_FULL", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
