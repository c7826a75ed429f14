package api

import (
	"encoding/json"
	"net/http"

	"github.com/Pradhumn115/ruma-core/internal/retrieval"
)

type retrieveRequest struct {
	UserID      string   `json:"user_id"`
	Text        string   `json:"text"`
	Urgency     string   `json:"urgency"`
	MemoryTypes []string `json:"memory_types"`
	Limit       int      `json:"limit"`
}

func (s *ControlServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.router.Retrieve(r.Context(), retrieval.Query{
		UserID:      req.UserID,
		Text:        req.Text,
		Urgency:     req.Urgency,
		MemoryTypes: req.MemoryTypes,
		Limit:       req.Limit,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}
