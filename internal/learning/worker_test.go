package learning

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

func newTestEnv(t *testing.T) (*storage.Storage, *config.ConfigManager, *memstore.Store) {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vectors := vectorindex.NewStore(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.NewConfigManager(db)
	mock := &llmengine.MockEngine{Reply: "ok", Dim: 8}
	mem := memstore.New(logger, db, vectors, mock, cfg)
	return db, cfg, mem
}

func TestDrainOneQueueItemMovesRowToPendingChats(t *testing.T) {
	db, _, _ := newTestEnv(t)

	messages, _ := json.Marshal([]llmengine.Message{{Role: "user", Content: "hello"}})
	if err := db.EnqueueLearning(storage.LearningQueueItem{UserID: "u1", ChatID: "c1", MessagesJSON: string(messages)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	moved, err := drainOneQueueItem(db)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !moved {
		t.Fatal("expected a row to be moved")
	}

	pc, err := db.NextPendingChat()
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if pc == nil {
		t.Fatal("expected a pending chat row")
	}
}

func TestExtractChatAbortsOnUIActive(t *testing.T) {
	_, _, mem := newTestEnv(t)
	engine := &llmengine.MockEngine{Reply: `[{"content":"x","category":"fact","importance":0.9,"keywords":[]}]`, Dim: 8}

	messages, _ := json.Marshal([]llmengine.Message{{Role: "user", Content: "hi"}})
	preempted, err := extractChat(context.Background(), mem, engine, func() bool { return true }, "u1", "c1", string(messages))
	if err != nil {
		t.Fatalf("extractChat: %v", err)
	}
	if !preempted {
		t.Error("expected extraction to report preempted when UI is active")
	}
}

func TestExtractChatStoresParsedItems(t *testing.T) {
	_, _, mem := newTestEnv(t)
	engine := &llmengine.MockEngine{Reply: `[{"content":"likes espresso in the morning","category":"preference","importance":0.8,"keywords":["coffee"]}]`, Dim: 8}

	messages, _ := json.Marshal([]llmengine.Message{{Role: "user", Content: "I love espresso"}})
	preempted, err := extractChat(context.Background(), mem, engine, func() bool { return false }, "u1", "c1", string(messages))
	if err != nil {
		t.Fatalf("extractChat: %v", err)
	}
	if preempted {
		t.Fatal("did not expect preemption")
	}

	stored, err := mem.List(storage.MemoryFilter{UserID: "u1"}, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) == 0 {
		t.Error("expected at least one memory to be extracted and stored")
	}
}
