package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Pradhumn115/ruma-core/internal/download"
)

// startArtifactRequest is the body for POST /v1/artifacts: the spec
// §6.3 start(model_id, kind, files) operation.
type startArtifactRequest struct {
	ModelID string                   `json:"model_id"`
	Kind    string                   `json:"kind"`
	Files   []download.ArtifactFile `json:"files"`
}

type startArtifactResponse struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

type artifactControlRequest struct {
	Action  string `json:"action"` // "pause", "resume", "cancel", "delete"
	Cleanup bool   `json:"cleanup"`
}

type artifactControlResponse struct {
	Result string `json:"result"`
}

func (s *ControlServer) handleStartArtifact(w http.ResponseWriter, r *http.Request) {
	var req startArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.audit.Log("127.0.0.1", r.UserAgent(), "POST /v1/artifacts", 400, "Bad Request JSON")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ModelID == "" || len(req.Files) == 0 {
		http.Error(w, "model_id and files are required", http.StatusBadRequest)
		return
	}

	id, result := s.downloads.StartArtifact(req.ModelID, req.Kind, req.Files)
	json.NewEncoder(w).Encode(startArtifactResponse{ID: id, Result: result})
}

func (s *ControlServer) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.downloads.ListArtifacts())
}

func (s *ControlServer) handleArtifactProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, ok := s.downloads.ArtifactProgress(id)
	if !ok {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(progress)
}

func (s *ControlServer) handleArtifactControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req artifactControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result string
	switch req.Action {
	case "pause":
		result = s.downloads.PauseArtifact(id)
	case "resume":
		result = s.downloads.ResumeArtifact(id)
	case "cancel":
		result = s.downloads.CancelArtifact(id, req.Cleanup)
	case "delete":
		result = s.downloads.DeleteArtifact(id)
	default:
		http.Error(w, "invalid action", http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(artifactControlResponse{Result: result})
}
