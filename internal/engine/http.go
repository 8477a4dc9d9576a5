package engine

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// HandleHTTPRequest — единственный входной интерфейс шлюза.
// POST /v1/evaluate, тело — ProposedAction, ответ — GatewayVerdict.
// Блокировка политики — это 200 с вердиктом BLOCKED, а не HTTP-ошибка.
func (g *Gateway) HandleHTTPRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	var p domain.ProposedAction
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	verdict, err := g.Evaluate(r.Context(), p)
	if err != nil {
		// Сюда попадает только невалидный вход (битое предложение оракла)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verdict)
}
