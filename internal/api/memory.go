package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

type storeMemoryRequest struct {
	UserID          string         `json:"user_id"`
	Content         string         `json:"content"`
	MemoryType      string         `json:"memory_type"`
	Importance      float64        `json:"importance"`
	Confidence      float64        `json:"confidence"`
	Category        string         `json:"category"`
	Keywords        []string       `json:"keywords"`
	Context         string         `json:"context"`
	TemporalPattern string         `json:"temporal_pattern"`
	Metadata        map[string]any `json:"metadata"`
}

func (s *ControlServer) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var req storeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := s.mem.Store(r.Context(), memstore.Input{
		UserID:          req.UserID,
		Content:         req.Content,
		MemoryType:      req.MemoryType,
		Importance:      req.Importance,
		Confidence:      req.Confidence,
		Category:        req.Category,
		Keywords:        req.Keywords,
		Context:         req.Context,
		TemporalPattern: req.TemporalPattern,
		Metadata:        req.Metadata,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.router.Invalidate(req.UserID)

	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *ControlServer) handleListMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	memories, err := s.mem.List(storage.MemoryFilter{
		UserID: q.Get("user_id"),
		Tier:   q.Get("tier"),
	}, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(memories)
}

func (s *ControlServer) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.mem.Delete(storage.MemoryFilter{IDs: []string{id}})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int64{"deleted": n})
}

type optimizeMemoryRequest struct {
	UserID string `json:"user_id"`
	Force  bool   `json:"force"`
}

func (s *ControlServer) handleOptimizeMemory(w http.ResponseWriter, r *http.Request) {
	var req optimizeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.mem.Optimize(req.UserID, req.Force)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.router.Invalidate(req.UserID)
	json.NewEncoder(w).Encode(report)
}
