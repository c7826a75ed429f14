// Package chat implements C8: the per-turn orchestration that resolves a
// session, asks the retrieval router for context, streams the reply,
// persists the transcript, and hands the turn off to the learning queue.
package chat

import (
	"log/slog"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/retrieval"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// TranscriptWindow bounds how many prior messages are rendered into the
// prompt alongside the retrieved context block.
const TranscriptWindow = 20

// MaxTitleLength caps the synthesized session title.
const MaxTitleLength = 50

// FastPathImportanceThreshold is the bar a regex-extracted candidate must
// clear to be stored immediately instead of waiting on C6/C7.
const FastPathImportanceThreshold = 0.5

// TurnEvent is one unit delivered to the caller of Orchestrator.Send,
// shaped for direct forwarding as a server-sent event.
type TurnEvent struct {
	Token   string
	Done    bool
	Err     error
	Message storage.ChatMessage // set on the final Done event
}

// Orchestrator is C8.
type Orchestrator struct {
	logger   *slog.Logger
	db       *storage.Storage
	mem      *memstore.Store
	router   *retrieval.Router
	engine   llmengine.Engine
	cfg      *config.ConfigManager
}

func New(logger *slog.Logger, db *storage.Storage, mem *memstore.Store, router *retrieval.Router, engine llmengine.Engine, cfg *config.ConfigManager) *Orchestrator {
	return &Orchestrator{logger: logger, db: db, mem: mem, router: router, engine: engine, cfg: cfg}
}
