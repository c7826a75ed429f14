package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

func newTestScheduler(t *testing.T) (*Scheduler, *storage.Storage, *memstore.Store) {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vectors := vectorindex.NewStore(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.NewConfigManager(db)
	engine := &llmengine.MockEngine{Reply: "ok", Dim: 8}
	mem := memstore.New(logger, db, vectors, engine, cfg)

	return New(logger, db, vectors, mem, cfg), db, mem
}

func TestRunOnceRemovesVeryLowImportanceCold(t *testing.T) {
	s, db, _ := newTestScheduler(t)

	low := storage.Memory{
		ID: "m1", UserID: "u1", Content: "barely relevant", ContentHash: "h1",
		MemoryType: storage.MemoryTypeFact, Importance: 0.05, Tier: storage.TierCold,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	keep := storage.Memory{
		ID: "m2", UserID: "u1", Content: "quite relevant", ContentHash: "h2",
		MemoryType: storage.MemoryTypeFact, Importance: 0.6, Tier: storage.TierCold,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if err := db.SaveMemory(low); err != nil {
		t.Fatalf("save low: %v", err)
	}
	if err := db.SaveMemory(keep); err != nil {
		t.Fatalf("save keep: %v", err)
	}

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.LowImportanceRemoved != 1 {
		t.Fatalf("expected exactly one low-importance removal, got %d", report.LowImportanceRemoved)
	}

	if _, err := db.GetMemory("m1"); err == nil {
		t.Error("expected low-importance cold memory to be removed")
	}
	if _, err := db.GetMemory("m2"); err != nil {
		t.Error("expected higher-importance cold memory to survive")
	}
}

func TestDueIsTrueOnFirstRun(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	due, err := s.due()
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if !due {
		t.Error("expected a fresh scheduler with no prior marker to be due")
	}
}

func TestDueFalseRightAfterRunning(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	if err := db.SetString(lastRunKey, time.Now().Format(time.RFC3339)); err != nil {
		t.Fatalf("set marker: %v", err)
	}
	due, err := s.due()
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if due {
		t.Error("expected scheduler to not be due right after running")
	}
}
