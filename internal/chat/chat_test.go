package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/retrieval"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

func newTestOrchestrator(t *testing.T, reply string) *Orchestrator {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vectors := vectorindex.NewStore(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.NewConfigManager(db)
	engine := &llmengine.MockEngine{Reply: reply, Dim: 8}
	mem := memstore.New(logger, db, vectors, engine, cfg)
	router := retrieval.New(logger, db, vectors, engine, cfg)

	return New(logger, db, mem, router, engine, cfg)
}

func drain(t *testing.T, ch <-chan TurnEvent, timeout time.Duration) TurnEvent {
	t.Helper()
	var last TurnEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return last
			}
			last = ev
			if ev.Done {
				return last
			}
		case <-deadline:
			t.Fatal("timed out waiting for turn to complete")
		}
	}
}

func TestSendCreatesSessionAndPersistsTranscript(t *testing.T) {
	o := newTestOrchestrator(t, "hello there")

	ch, err := o.Send(context.Background(), "u1", "", "hi, my name is Sam", "instant")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	final := drain(t, ch, 2*time.Second)
	if final.Err != nil {
		t.Fatalf("unexpected stream error: %v", final.Err)
	}

	var sessions []storage.ChatSession
	if err := o.db.DB.Find(&sessions).Error; err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(sessions))
	}
	if sessions[0].Title == "" {
		t.Error("expected a synthesized title on the first turn")
	}

	msgs, err := o.db.RecentMessages(sessions[0].ID, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(msgs))
	}
}

func TestSendRunsFastPathExtraction(t *testing.T) {
	o := newTestOrchestrator(t, "nice to meet you")

	ch, err := o.Send(context.Background(), "u2", "", "my name is Priya", "instant")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(t, ch, 2*time.Second)

	stored, err := o.mem.List(storage.MemoryFilter{UserID: "u2"}, 0, 0)
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(stored) == 0 {
		t.Error("expected the name pattern to be stored via the fast path")
	}
}

func TestSendEnqueuesLearningItem(t *testing.T) {
	o := newTestOrchestrator(t, "got it")

	ch, err := o.Send(context.Background(), "u3", "", "remember that I prefer tea", "instant")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(t, ch, 2*time.Second)

	item, err := o.db.NextLearningItem()
	if err != nil {
		t.Fatalf("next learning item: %v", err)
	}
	if item == nil {
		t.Error("expected a learning_queue row for the completed turn")
	}
}
