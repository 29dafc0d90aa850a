package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// SinkHandler accepts emails and logs them instead of delivering.
type SinkHandler struct {
	logger *slog.Logger
}

func NewSinkHandler(logger *slog.Logger) *SinkHandler {
	return &SinkHandler{logger: logger}
}

func (h *SinkHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var email Email
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !strings.Contains(email.To, "@") {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid recipient"})
		return
	}

	h.logger.InfoContext(r.Context(), "email accepted", "to", email.To, "subject", email.Subject)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *SinkHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
