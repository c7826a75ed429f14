// Command extractworker is a standalone child process for the
// background learning pipeline: it drains the learning queue and
// extracts structured memories via an LLM, entirely out of the
// interactive chat path. `rumad serve` spawns its own worker by
// re-execing itself with --extract-worker; this binary is the same
// logic shipped separately for deployments that want the worker as an
// independently managed process (a container sidecar, a systemd unit)
// instead of a self-exec child.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ollama/ollama/api"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/learning"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/logger"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log, _, err := logger.New(os.Stderr, nil)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := storage.NewStorage()
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer db.Close()

	cfg := config.NewConfigManager(db)

	vectorDir, err := vectorIndexDir()
	if err != nil {
		return fmt.Errorf("resolve vector index dir: %w", err)
	}
	vectors := vectorindex.NewStore(vectorDir)
	if err := vectors.Load(); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	defer vectors.Shutdown()

	engine := buildEngine(cfg)
	embedder, _ := engine.(llmengine.Embedder)
	mem := memstore.New(log, db, vectors, embedder, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log.Info("extraction worker starting")
	return learning.RunWorker(ctx, log, db, cfg, mem, engine)
}

func buildEngine(cfg *config.ConfigManager) llmengine.Engine {
	domain := cfg.Domain()
	if domain.LLMEngine == "ollama" {
		if client, err := api.ClientFromEnvironment(); err == nil {
			return llmengine.NewOllamaEngine(client, domain.OllamaModel)
		}
	}
	return llmengine.NewMockEngine("model unavailable, running in mock mode")
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
