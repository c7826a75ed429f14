package retrieval

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

func newTestRouter(t *testing.T) (*Router, *storage.Storage) {
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
	return New(logger, db, vectors, mock, cfg), db
}

func seedMemory(t *testing.T, db *storage.Storage, id, content, keywords string) {
	t.Helper()
	if err := db.SaveMemory(storage.Memory{
		ID: id, UserID: "u1", Content: content, MemoryType: storage.MemoryTypeFact,
		Importance: 0.7, Keywords: keywords, Tier: storage.TierHot,
		ContentHash: id,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestInstantKeywordSearch(t *testing.T) {
	router, db := newTestRouter(t)
	seedMemory(t, db, "m1", "the user prefers dark mode interfaces", "preference,ui")
	seedMemory(t, db, "m2", "completely unrelated content about cooking", "food")

	result, err := router.Retrieve(context.Background(), Query{Text: "dark mode preference", UserID: "u1", Urgency: UrgencyInstant})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.SearchStrategy != StrategySQL {
		t.Errorf("expected sql strategy, got %s", result.SearchStrategy)
	}
	if len(result.Memories) == 0 || result.Memories[0].ID != "m1" {
		t.Errorf("expected m1 to rank first, got %+v", result.Memories)
	}
}

func TestHybridRetrieval(t *testing.T) {
	router, db := newTestRouter(t)
	seedMemory(t, db, "m1", "memory one content", "")
	seedMemory(t, db, "m2", "memory two content", "")

	result, err := router.Retrieve(context.Background(), Query{Text: "memory content", UserID: "u1", Urgency: UrgencyNormal})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.SearchStrategy != StrategyHybrid {
		t.Errorf("expected hybrid strategy, got %s", result.SearchStrategy)
	}
	if len(result.Memories) == 0 {
		t.Error("expected at least one hybrid match")
	}
}

func TestCacheServesRepeatQuery(t *testing.T) {
	router, db := newTestRouter(t)
	seedMemory(t, db, "m1", "cached query content", "")

	q := Query{Text: "cached query", UserID: "u1", Urgency: UrgencyInstant}
	first, err := router.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("first retrieve: %v", err)
	}
	second, err := router.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("second retrieve: %v", err)
	}
	if len(first.Memories) != len(second.Memories) {
		t.Errorf("expected cached result to match, got %d vs %d", len(first.Memories), len(second.Memories))
	}
}

func TestInvalidateBustsCache(t *testing.T) {
	router, db := newTestRouter(t)
	seedMemory(t, db, "m1", "invalidation test content", "")

	q := Query{Text: "invalidation test", UserID: "u1", Urgency: UrgencyInstant}
	if _, err := router.Retrieve(context.Background(), q); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	router.Invalidate("u1")
	if _, ok := router.lookup(q); ok {
		t.Error("expected cache entry to be invalidated")
	}
}
