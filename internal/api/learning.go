package api

import (
	"encoding/json"
	"net/http"

	"github.com/Pradhumn115/ruma-core/internal/learning"
)

func (s *ControlServer) handleLearningStatus(w http.ResponseWriter, r *http.Request) {
	status, err := learning.Status(s.downloads.GetStorage())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(status)
}
