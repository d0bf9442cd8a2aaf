package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/domain"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/suppression"
)

// feedbackEvent is the provider's delivery feedback shape. MessageID matches
// the id returned when the email was accepted for sending.
type feedbackEvent struct {
	Type      string `json:"type"` // "bounce", "complaint" or "unsubscribe"
	MessageID string `json:"messageId"`
	Email     string `json:"email"`
	SubType   string `json:"subType,omitempty"` // bounce only: "permanent" or "transient"
}

// WebhookHandler ingests asynchronous provider feedback and reflects it on
// delivery rows and the suppression list.
type WebhookHandler struct {
	deliveries   repository.DeliveryRepository
	suppressions suppression.Store
	logger       *zap.Logger
}

func NewWebhookHandler(deliveries repository.DeliveryRepository, suppressions suppression.Store, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{deliveries: deliveries, suppressions: suppressions, logger: logger}
}

// EmailFeedback handles POST /webhooks/email
func (h *WebhookHandler) EmailFeedback(w http.ResponseWriter, r *http.Request) {
	var ev feedbackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_JSON", "invalid feedback payload")
		return
	}

	var status domain.DeliveryStatus
	var reason suppression.Reason
	suppress := true

	switch strings.ToLower(ev.Type) {
	case "bounce":
		status = domain.DeliveryBounced
		reason = suppression.ReasonHardBounce
		// transient bounces are recorded on the row but do not suppress
		suppress = !strings.EqualFold(ev.SubType, "transient")
	case "complaint":
		status = domain.DeliveryComplained
		reason = suppression.ReasonComplaint
	case "unsubscribe":
		// unsubscribe usually arrives without a message id; it only
		// updates the suppression list.
		status = 0
		reason = suppression.ReasonUnsubscribe
	default:
		respondError(w, http.StatusBadRequest, "UNKNOWN_EVENT", "unknown feedback type")
		return
	}

	ctx := r.Context()

	if status != 0 && ev.MessageID != "" {
		if err := h.deliveries.UpdateResultByMessageID(ctx, ev.MessageID, status, ev.Type); err != nil {
			if errors.Is(err, domain.ErrDeliveryNotFound) {
				// late or duplicate feedback for a row that already moved on
				h.logger.Debug("feedback for unknown message",
					zap.String("message_id", ev.MessageID),
					zap.String("type", ev.Type),
				)
			} else {
				h.logger.Error("failed to apply feedback", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
				return
			}
		}
	}

	if suppress && ev.Email != "" {
		if err := h.suppressions.Add(ctx, ev.Email, reason); err != nil {
			h.logger.Error("failed to add suppression",
				zap.String("reason", string(reason)),
				zap.Error(err),
			)
			respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
