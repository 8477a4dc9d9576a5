package outcome

import (
	"encoding/json"
	"net/http"
)

// HandleHTTP принимает отметки от трекинговых систем.
// POST /v1/outcomes  {"action_id": "...", "player_id": "...", "response": "opened"}
func (f *Feed) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	var e Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if e.ActionID == "" || e.PlayerID == "" {
		http.Error(w, "action_id and player_id are required", http.StatusBadRequest)
		return
	}
	if !ValidResponse(e.Response) {
		http.Error(w, "unknown response code", http.StatusBadRequest)
		return
	}

	f.Note(e)

	// 202: событие принято в буфер, персистентность — асинхронная
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}
