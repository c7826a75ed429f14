package main

import (
	"fmt"
	"os"

	"github.com/Pradhumn115/ruma-core/internal/chat"
	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/logger"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/retrieval"
	"github.com/Pradhumn115/ruma-core/internal/scheduler"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"

	"github.com/ollama/ollama/api"
	"log/slog"
)

// app bundles the process-wide singletons every subcommand needs at
// minimum: logging, persistent storage and settings. Subcommands that
// drive the download engine or the memory subsystem layer more on top
// via downloadEngine/memoryStack below.
type app struct {
	log *slog.Logger
	db  *storage.Storage
	cfg *config.ConfigManager
}

func bootstrap() (*app, error) {
	log, _, err := logger.New(os.Stderr, nil)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := storage.NewStorage()
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	return &app{log: log, db: db, cfg: config.NewConfigManager(db)}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// buildEngine constructs the LLM engine selected by domain config.
// "ollama" talks to a local daemon through the client built from
// OLLAMA_HOST (defaulting to 127.0.0.1:11434); anything else falls
// back to the deterministic mock so the binary still runs with no
// model installed.
func buildEngine(cfg *config.ConfigManager) llmengine.Engine {
	domain := cfg.Domain()
	if domain.LLMEngine == "ollama" {
		if client, err := api.ClientFromEnvironment(); err == nil {
			return llmengine.NewOllamaEngine(client, domain.OllamaModel)
		}
	}
	return llmengine.NewMockEngine("model unavailable, running in mock mode")
}

// memoryStack wires the vector index, memory store, retrieval router
// and chat orchestrator on top of an already-open app. vectorDir holds
// the on-disk HNSW/PQ segments, one directory per install.
type memoryStack struct {
	vectors *vectorindex.Store
	mem     *memstore.Store
	router  *retrieval.Router
	chat    *chat.Orchestrator
	sched   *scheduler.Scheduler
}

// buildMemstoreOnly builds just the vector index + memory store, the
// subset the extraction worker process needs - it never retrieves or
// streams chat, so the router and orchestrator would sit unused.
func (a *app) buildMemstoreOnly() (*memstore.Store, llmengine.Engine, error) {
	vectorDir, err := vectorIndexDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve vector index dir: %w", err)
	}

	vectors := vectorindex.NewStore(vectorDir)
	if err := vectors.Load(); err != nil {
		return nil, nil, fmt.Errorf("load vector index: %w", err)
	}
	engine := buildEngine(a.cfg)
	embedder, _ := engine.(llmengine.Embedder)
	mem := memstore.New(a.log, a.db, vectors, embedder, a.cfg)
	return mem, engine, nil
}

func (a *app) buildMemoryStack() (*memoryStack, error) {
	vectorDir, err := vectorIndexDir()
	if err != nil {
		return nil, fmt.Errorf("resolve vector index dir: %w", err)
	}

	vectors := vectorindex.NewStore(vectorDir)
	if err := vectors.Load(); err != nil {
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	engine := buildEngine(a.cfg)
	embedder, _ := engine.(llmengine.Embedder)

	mem := memstore.New(a.log, a.db, vectors, embedder, a.cfg)
	router := retrieval.New(a.log, a.db, vectors, embedder, a.cfg)
	orchestrator := chat.New(a.log, a.db, mem, router, engine, a.cfg)
	sched := scheduler.New(a.log, a.db, vectors, mem, a.cfg)

	return &memoryStack{vectors: vectors, mem: mem, router: router, chat: orchestrator, sched: sched}, nil
}

func vectorIndexDir() (string, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := appData + string(os.PathSeparator) + "Ruma" + string(os.PathSeparator) + "vectors"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
