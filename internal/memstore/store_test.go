package memstore

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

func newTestStore(t *testing.T) *Store {
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
	return New(logger, db, vectors, mock, cfg)
}

func TestStoreGatesOnImportance(t *testing.T) {
	s := newTestStore(t)
	status, err := s.Store(context.Background(), Input{UserID: "u1", Content: "trivial", MemoryType: storage.MemoryTypeFact, Importance: 0.05})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if status != StatusSkippedImportance {
		t.Errorf("expected skipped_importance, got %s", status)
	}
}

func TestStoreDeduplicatesByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	in := Input{UserID: "u1", Content: "the sky is blue", MemoryType: storage.MemoryTypeFact, Importance: 0.6}

	status, err := s.Store(ctx, in)
	if err != nil || status != StatusStored {
		t.Fatalf("first store: status=%s err=%v", status, err)
	}
	status, err = s.Store(ctx, in)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if status != StatusSkippedDuplicate {
		t.Errorf("expected skipped_duplicate, got %s", status)
	}
}

func TestOptimizeCompressesLongContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	long := ""
	for i := 0; i < 50; i++ {
		long += "word "
	}
	if _, err := s.Store(ctx, Input{UserID: "u1", Content: long, MemoryType: storage.MemoryTypeFact, Importance: 0.9}); err != nil {
		t.Fatalf("store: %v", err)
	}

	report, err := s.Optimize("u1", false)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if report.CompressedCount != 1 {
		t.Errorf("expected 1 compressed memory, got %d", report.CompressedCount)
	}
}

func TestDeleteCascadesToVectorIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	status, err := s.Store(ctx, Input{UserID: "u1", Content: "remember this fact", MemoryType: storage.MemoryTypeFact, Importance: 0.9})
	if err != nil || status != StatusStored {
		t.Fatalf("store: status=%s err=%v", status, err)
	}

	memories, err := s.List(storage.MemoryFilter{UserID: "u1"}, 0, 0)
	if err != nil || len(memories) != 1 {
		t.Fatalf("list: %v, len=%d", err, len(memories))
	}

	n, err := s.Delete(storage.MemoryFilter{IDs: []string{memories[0].ID}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}
