package handler

import (
	"log/slog"
	"net/http"
)

// ArchiveHandler exposes manual control over the archive pipeline. Triggers
// are delivered over a channel consumed by the pipeline run loop.
type ArchiveHandler struct {
	trigger chan<- struct{}
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. A nil trigger channel means the
// archive pipeline is disabled.
func NewArchiveHandler(trigger chan<- struct{}, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		trigger: trigger,
		logger:  logger,
	}
}

// TriggerArchive requests an immediate archive run. The send is non-blocking:
// if a run is already pending the request is coalesced into it.
// POST /api/archive/trigger
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "archive pipeline is disabled")
		return
	}

	select {
	case h.trigger <- struct{}{}:
		h.logger.InfoContext(r.Context(), "handler: archive run triggered")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already pending"})
	}
}
