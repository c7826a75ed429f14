package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/Pradhumn115/ruma-core/internal/chat"
	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/download"
	"github.com/Pradhumn115/ruma-core/internal/learning"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/retrieval"
	"github.com/Pradhumn115/ruma-core/internal/scheduler"
	"github.com/Pradhumn115/ruma-core/internal/security"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ControlServer is the loopback-only control plane fronting the
// download engine and the memory/chat subsystem. Every route requires
// the shared AI token and a loopback (127.0.0.1 or ::1) source address.
type ControlServer struct {
	downloads *download.Manager
	mem       *memstore.Store
	router    *retrieval.Router
	chat      *chat.Orchestrator
	learn     *learning.Supervisor
	sched     *scheduler.Scheduler

	cfg        *config.ConfigManager
	audit      *security.AuditLogger
	mux        *chi.Mux
	activeReqs int64
}

func NewControlServer(downloads *download.Manager, mem *memstore.Store, ret *retrieval.Router, orchestrator *chat.Orchestrator, learn *learning.Supervisor, sched *scheduler.Scheduler, cfg *config.ConfigManager, audit *security.AuditLogger) *ControlServer {
	s := &ControlServer{
		downloads: downloads,
		mem:       mem,
		router:    ret,
		chat:      orchestrator,
		learn:     learn,
		sched:     sched,
		cfg:       cfg,
		audit:     audit,
		mux:       chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *ControlServer) concurrencyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		max := int64(s.cfg.GetAIMaxConcurrent())
		if max <= 0 {
			max = 1 // Safety default
		}

		current := atomic.AddInt64(&s.activeReqs, 1)
		defer atomic.AddInt64(&s.activeReqs, -1)

		if current > max {
			s.audit.Log("127.0.0.1", r.UserAgent(), "Overloaded "+r.URL.Path, 429, "Max Concurrent Reached")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *ControlServer) Start(port int) {
	if !s.cfg.GetEnableAI() {
		return // Do not start if disabled
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Control Server listening on %s", addr)

	go func() {
		conn, err := net.Listen("tcp", addr)
		if err != nil {
			log.Printf("Control Server failed to bind: %v", err)
			return
		}

		if err := http.Serve(conn, s.mux); err != nil {
			log.Printf("Control Server failed: %v", err)
		}
	}()
}

func (s *ControlServer) setupRoutes() {
	s.mux.Use(middleware.Logger)
	s.mux.Use(middleware.Recoverer)

	s.mux.Use(s.securityMiddleware)
	s.mux.Use(s.concurrencyLimitMiddleware)

	s.mux.Post("/v1/queue", s.handleQueueDownload)
	s.mux.Post("/v1/browser/trigger", s.handleBrowserTrigger)
	s.mux.Get("/v1/tasks/{id}", s.handleGetTask)
	s.mux.Post("/v1/tasks/{id}/control", s.handleTaskControl)
	s.mux.Get("/v1/status", s.handleGetStatus)

	s.mux.Post("/v1/artifacts", s.handleStartArtifact)
	s.mux.Get("/v1/artifacts", s.handleListArtifacts)
	s.mux.Get("/v1/artifacts/{id}", s.handleArtifactProgress)
	s.mux.Post("/v1/artifacts/{id}/control", s.handleArtifactControl)

	s.mux.Post("/api/memory", s.handleStoreMemory)
	s.mux.Get("/api/memory", s.handleListMemory)
	s.mux.Delete("/api/memory/{id}", s.handleDeleteMemory)
	s.mux.Post("/api/memory/optimize", s.handleOptimizeMemory)

	s.mux.Post("/api/retrieve", s.handleRetrieve)

	s.mux.Post("/api/chat", s.handleChat)

	s.mux.Get("/api/learning/status", s.handleLearningStatus)

	s.mux.Post("/api/scheduler/run", s.handleSchedulerRunNow)

	s.mux.Get("/v1/analytics", s.handleAnalytics)
	s.mux.Post("/v1/speedtest", s.handleSpeedTest)
	s.mux.Get("/v1/speedtest/history", s.handleSpeedTestHistory)
}

func (s *ControlServer) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		userAgent := r.UserAgent()
		action := fmt.Sprintf("%s %s", r.Method, r.URL.Path)

		if !s.cfg.GetEnableAI() {
			s.audit.Log(sourceIP, userAgent, action, 503, "Feature Disabled")
			http.Error(w, "AI Interface Disabled", http.StatusServiceUnavailable)
			return
		}

		if sourceIP != "127.0.0.1" && sourceIP != "::1" {
			s.audit.Log(sourceIP, userAgent, action, 403, "External Access Denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		token := r.Header.Get("X-Ruma-Token")
		expectedToken := s.cfg.GetAIToken()

		if token != expectedToken {
			s.audit.Log(sourceIP, userAgent, action, 401, "Invalid Token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		s.audit.Log(sourceIP, userAgent, action, 200, "Authorized")
		next.ServeHTTP(w, r)
	})
}

// Request/Response Models
type EnqueueRequest struct {
	URL      string `json:"url"`
	Path     string `json:"path"`     // Optional custom path
	Filename string `json:"filename"` // Optional custom filename
	Priority int    `json:"priority"` // Optional 1-3
}

type EnqueueResponse struct {
	TaskID string `json:"task_id"`
}

type ControlRequest struct {
	Action string `json:"action"` // "pause", "resume", "cancel", "delete"
}

func (s *ControlServer) handleQueueDownload(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.audit.Log("127.0.0.1", r.UserAgent(), "POST /queue", 400, "Bad Request JSON")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.downloads.StartDownload(req.URL, req.Path, req.Filename, nil)
	if err != nil {
		s.audit.Log("127.0.0.1", r.UserAgent(), "POST /queue", 500, err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if req.Priority > 0 {
		s.downloads.SetPriority(id, req.Priority)
	}

	json.NewEncoder(w).Encode(EnqueueResponse{TaskID: id})
}

func (s *ControlServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.downloads.GetTask(id)
	if err != nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(task)
}

func (s *ControlServer) handleTaskControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var err error
	switch req.Action {
	case "pause":
		err = s.downloads.PauseDownload(id)
	case "resume":
		err = s.downloads.ResumeDownload(id)
	case "cancel", "stop":
		err = s.downloads.StopDownload(id)
	case "delete":
		err = s.downloads.DeleteDownload(id, false)
	default:
		http.Error(w, "Invalid action", http.StatusBadRequest)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *ControlServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"status": "running"}`))
}
