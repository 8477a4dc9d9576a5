package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/liveops-guard/internal/console/service"
)

type DashboardHandler struct {
	service *service.DashboardService
}

func NewDashboardHandler(s *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s}
}

// Overview — сводка за 24 часа.
// GET /v1/dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Overview(r.Context())
	if err != nil {
		http.Error(w, "failed to build dashboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Channels — разбивка исполненных действий по каналам.
// GET /v1/dashboard/channels?window_hours=24
func (h *DashboardHandler) Channels(w http.ResponseWriter, r *http.Request) {
	windowHours := 24
	if raw := r.URL.Query().Get("window_hours"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			windowHours = v
		}
	}

	points, err := h.service.Channels(r.Context(), windowHours)
	if err != nil {
		http.Error(w, "failed to build channel breakdown", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, points)
}
