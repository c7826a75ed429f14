package download

import (
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/analytics"
	"github.com/Pradhumn115/ruma-core/internal/filesystem"
	"github.com/Pradhumn115/ruma-core/internal/integrity"
	"github.com/Pradhumn115/ruma-core/internal/network"
	"github.com/Pradhumn115/ruma-core/internal/queue"
	"github.com/Pradhumn115/ruma-core/internal/security"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Configurable constants
const (
	DownloadChunkSize = 1 * 1024 * 1024 // 1MB Part Size
	BufferSize        = 32 * 1024       // 32KB Buffer for CopyBuffer
	GenericUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

	// Status for tasks needing URL refresh (403 received)
	StatusNeedsAuth = "needs_auth"
)

// Manager is the core download orchestrator
type Manager struct {
	logger          *slog.Logger
	storage         *storage.Storage
	events          *EventBus
	queue           *queue.DownloadQueue
	scheduler       *queue.SmartScheduler
	activeDownloads sync.Map // map[string]*activeDownloadInfo
	bufferPool      *sync.Pool
	httpClient      *http.Client
	stats           *analytics.StatsManager

	// Concurrency Control
	maxConcurrent    int
	runningDownloads int
	workerCond       *sync.Cond
	workerMutex      sync.Mutex

	// Bandwidth & Traffic
	bandwidthManager *network.BandwidthManager

	// integrity
	allocator *filesystem.Allocator
	verifier  *integrity.FileVerifier

	// utilities
	organizer *filesystem.SmartOrganizer

	// Phase 7 Components
	stateManager         *StateManager
	congestionController *network.CongestionController

	// Security
	scanner security.Scanner

	// Custom User-Agent (thread-safe)
	userAgentMu sync.RWMutex
	userAgent   string

	// C3 artifact (model download) state, separate from the legacy
	// single-URL DownloadTask table above: one JSON document per §6.1,
	// plus the root directory artifacts are laid out under.
	artifacts       *ArtifactStore
	artifactRoot    string
	artifactWorkers sync.Map // map[string]*artifactHandle
}

// NewEngine creates a new Manager instance
func NewEngine(logger *slog.Logger, storage *storage.Storage) *Manager {
	// Custom Transport for Connection Reuse
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100, // Global pool size
		MaxIdleConnsPerHost:   32,  // Allow high concurrency per host
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true, // We want raw bytes
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   0, // No timeout for the client itself, request contexts handles it
	}

	q := queue.NewDownloadQueue()
	s := queue.NewSmartScheduler(logger, q)

	downloadRoot, err := filesystem.GetDefaultDownloadPath()
	if err != nil {
		logger.Error("resolving default download path for artifacts", "error", err)
		downloadRoot = "."
	}
	artifacts := NewArtifactStore(filepath.Join(downloadRoot, ".rumad_downloads.json"))
	if err := artifacts.Load(); err != nil {
		logger.Error("loading artifact state file", "error", err)
	}

	e := &Manager{
		logger:          logger,
		storage:         storage,
		events:          NewEventBus(),
		queue:           q,
		scheduler:       s,
		activeDownloads: sync.Map{},
		bufferPool: &sync.Pool{
			New: func() interface{} {
				// Allocate 32KB buffer
				b := make([]byte, BufferSize)
				return &b
			},
		},
		httpClient:           client,
		stats:                analytics.NewStatsManager(storage, filesystem.GetDefaultDownloadPath),
		maxConcurrent:        5, // System wide limit of downloads
		runningDownloads:     0,
		bandwidthManager:     network.NewBandwidthManager(),
		allocator:            filesystem.NewAllocator(),
		verifier:             integrity.NewFileVerifier(),
		organizer:            filesystem.NewSmartOrganizer(),
		stateManager:         NewStateManager(),
		congestionController: network.NewCongestionController(1, 32),
		scanner:              security.NewArtifactTypeScanner(logger, security.NewScanner(logger)),
		artifacts:            artifacts,
		artifactRoot:         filepath.Join(downloadRoot, "models"),
	}
	e.workerCond = sync.NewCond(&e.workerMutex)

	go e.queueWorker()
	return e
}

// Events returns the bus download-lifecycle notifications are published
// on; the CLI's download progress printer subscribes to it.
func (e *Manager) Events() *EventBus {
	return e.events
}

// Start recovers any downloads left mid-flight by an unclean shutdown.
// Called once at startup, after NewEngine.
func (e *Manager) Start() {
	e.RecoverInterruptedDownloads()
	e.ReconcileArtifacts()
}

// Shutdown gracefully stops the engine
func (e *Manager) Shutdown() error {
	e.logger.Info("Engine shutting down...")

	// 1. Cancel all active downloads
	var shutdownWg sync.WaitGroup
	e.activeDownloads.Range(func(key, value interface{}) bool {
		if info, ok := value.(*activeDownloadInfo); ok {
			if info.Cancel != nil {
				info.Cancel()
			}
			shutdownWg.Add(1)
			go func() {
				shutdownWg.Done()
			}()
		}
		return true
	})

	// Wait for workers to cleanup (max 2 seconds)
	deadline := time.Now().Add(2 * time.Second)
	for {
		e.workerMutex.Lock()
		count := e.runningDownloads
		e.workerMutex.Unlock()
		if count == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// 2. Force Checkpoint
	if err := e.storage.Checkpoint(); err != nil {
		e.logger.Error("Failed to checkpoint DB", "error", err)
		return err
	}
	e.logger.Info("Engine shutdown complete")
	return nil
}

// RecoverInterruptedDownloads finds downloads stuck in "downloading" or "pending" status
// and moves them to "paused" so they can be manually resumed
func (e *Manager) RecoverInterruptedDownloads() {
	tasks, err := e.storage.GetAllTasks()
	if err != nil {
		e.logger.Error("Failed to recover interrupted downloads", "error", err)
		return
	}

	for _, task := range tasks {
		if task.Status == "downloading" || task.Status == "pending" {
			// Move to paused state
			task.Status = "paused"
			if err := e.storage.SaveTask(task); err != nil {
				e.logger.Error("Failed to pause interrupted download", "id", task.ID, "error", err)
				continue
			}
			e.logger.Info("Recovered interrupted download", "id", task.ID, "filename", task.Filename)
		}
	}
}

// GetStorage returns the storage instance
func (e *Manager) GetStorage() *storage.Storage {
	return e.storage
}

// GetUserAgent returns the current custom User-Agent (thread-safe)
func (e *Manager) GetUserAgent() string {
	e.userAgentMu.RLock()
	defer e.userAgentMu.RUnlock()
	return e.userAgent
}

// SetUserAgent sets a custom User-Agent for all requests (thread-safe)
func (e *Manager) SetUserAgent(ua string) {
	e.userAgentMu.Lock()
	defer e.userAgentMu.Unlock()
	e.userAgent = ua
	e.logger.Info("User-Agent updated", "user_agent", ua)
}

// GetStats returns the stats manager
func (e *Manager) GetStats() *analytics.StatsManager {
	return e.stats
}

// SetMaxConcurrent sets the maximum number of concurrent downloads
func (e *Manager) SetMaxConcurrent(n int) {
	e.workerMutex.Lock()
	defer e.workerMutex.Unlock()

	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	e.maxConcurrent = n
	// Signal to check if more can be started
	e.workerCond.Signal()
}

// SetGlobalLimit sets the global download speed limit
func (e *Manager) SetGlobalLimit(bytesPerSec int) {
	e.bandwidthManager.SetLimit(bytesPerSec)
}

// SetHostLimit sets the per-host connection limit
func (e *Manager) SetHostLimit(domain string, limit int) {
	e.scheduler.SetHostLimit(domain, limit)
}

// GetHostLimit returns the per-host connection limit
func (e *Manager) GetHostLimit(domain string) int {
	return e.scheduler.GetHostLimit(domain)
}
