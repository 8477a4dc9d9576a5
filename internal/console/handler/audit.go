package handler

import (
	"net/http"
	"time"

	"github.com/xela07ax/liveops-guard/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetEntries возвращает записи леджера по игроку.
// GET /v1/ledger?player_id=...&since=RFC3339
func (h *AuditHandler) GetEntries(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "player_id query param is required", http.StatusBadRequest)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	entries, err := h.service.FetchEntries(r.Context(), playerID, since)
	if err != nil {
		http.Error(w, "failed to fetch ledger entries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
