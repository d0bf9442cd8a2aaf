package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/fanout"
	"github.com/notifyhub/broadcast/internal/scheduler"
)

// FanoutHandler is the scheduler's invocation target. At fire time the
// scheduler POSTs the trigger payload here; the run itself happens in the
// background because a broadcast can take minutes to drain.
type FanoutHandler struct {
	runner *fanout.Runner
	logger *zap.Logger

	// base context for detached runs; cancelled on shutdown.
	runCtx context.Context
	runs   sync.WaitGroup
}

func NewFanoutHandler(runCtx context.Context, runner *fanout.Runner, logger *zap.Logger) *FanoutHandler {
	return &FanoutHandler{runner: runner, logger: logger, runCtx: runCtx}
}

// Trigger handles POST /internal/fanout
func (h *FanoutHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var payload scheduler.TriggerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.NotificationID == "" {
		respondError(w, http.StatusBadRequest, "BAD_JSON", "expected {\"notificationId\": \"...\"}")
		return
	}

	h.runs.Add(1)
	go func(id string) {
		defer h.runs.Done()
		if err := h.runner.Process(h.runCtx, id); err != nil && h.runCtx.Err() == nil {
			h.logger.Error("fan-out failed",
				zap.String("notification_id", id),
				zap.Error(err),
			)
		}
	}(payload.NotificationID)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"notification_id": payload.NotificationID,
		"status":          "accepted",
	})
}

// Wait blocks until every run started by Trigger has returned. Called during
// shutdown after the run context is cancelled, so the server does not exit
// with fan-out state updates still in flight.
func (h *FanoutHandler) Wait() {
	h.runs.Wait()
}
