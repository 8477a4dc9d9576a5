package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/liveops-guard/internal/console/service"
	"github.com/xela07ax/liveops-guard/internal/domain"
)

type ConstraintsHandler struct {
	service *service.ConstraintsService
}

func NewConstraintsHandler(s *service.ConstraintsService) *ConstraintsHandler {
	return &ConstraintsHandler{service: s}
}

// Get возвращает действующую версию safety rails.
// GET /v1/constraints
func (h *ConstraintsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Current())
}

// Update принимает полный набор constraints и сохраняет его новой версией.
// PUT /v1/constraints
func (h *ConstraintsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var c domain.SafetyConstraints
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	updated, err := h.service.Update(r.Context(), c)
	if err != nil {
		// Некорректная конфигурация — это 422, не 500
		if errors.Is(err, domain.ErrInvalidConstraints) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "failed to update constraints: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// SetCompliance переключает bypass-рубильник.
// POST /v1/compliance  {"enabled": false}
func (h *ConstraintsHandler) SetCompliance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "body must be {\"enabled\": true|false}", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	updated, err := h.service.SetCompliance(r.Context(), *req.Enabled)
	if err != nil {
		http.Error(w, "failed to toggle compliance: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Encoding error", http.StatusInternalServerError)
	}
}
