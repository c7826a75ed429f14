package storage

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *Storage {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")

	s := &Storage{DB: db}
	if err := s.migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return s
}

func TestTaskCRUD(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	task := DownloadTask{
		ID:       "test-123",
		Filename: "test.safetensors",
		URL:      "https://example.com/test.safetensors",
		SavePath: "/downloads/test.safetensors",
		Status:   "downloading",
		Category: "Models",
		Priority: 1,
	}

	if err := s.SaveTask(task); err != nil {
		t.Fatalf("Failed to save task: %v", err)
	}

	retrieved, err := s.GetTask("test-123")
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if retrieved.ID != task.ID {
		t.Errorf("Expected ID %s, got %s", task.ID, retrieved.ID)
	}
	if retrieved.Filename != task.Filename {
		t.Errorf("Expected filename %s, got %s", task.Filename, retrieved.Filename)
	}

	retrieved.Status = "completed"
	retrieved.Progress = 100
	if err := s.SaveTask(retrieved); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}

	updated, _ := s.GetTask("test-123")
	if updated.Status != "completed" {
		t.Errorf("Expected status completed, got %s", updated.Status)
	}

	tasks, err := s.GetAllTasks()
	if err != nil {
		t.Fatalf("Failed to get all tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	if err := s.DeleteTask("test-123"); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	tasks, _ = s.GetAllTasks()
	if len(tasks) != 0 {
		t.Errorf("Expected 0 tasks after delete, got %d", len(tasks))
	}
}

func TestStatistics(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	if err := s.IncrementDailyBytes(100); err != nil {
		t.Fatalf("Failed to increment bytes: %v", err)
	}
	if err := s.IncrementDailyBytes(100); err != nil {
		t.Fatalf("Failed to increment bytes again: %v", err)
	}

	total, err := s.GetTotalLifetime()
	if err != nil {
		t.Fatalf("Failed to get total: %v", err)
	}
	if total != 200 {
		t.Errorf("Expected 200 bytes, got %d", total)
	}

	s.IncrementDailyFiles()
	s.IncrementDailyFiles()

	files, err := s.GetTotalFiles()
	if err != nil {
		t.Fatalf("Failed to get files: %v", err)
	}
	if files != 2 {
		t.Errorf("Expected 2 files, got %d", files)
	}

	history, err := s.GetDailyHistory(7)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	found := false
	for _, stat := range history {
		if stat.Date == today {
			found = true
			if stat.Bytes != 200 {
				t.Errorf("Expected 200 bytes for today, got %d", stat.Bytes)
			}
			if stat.Files != 2 {
				t.Errorf("Expected 2 files for today, got %d", stat.Files)
			}
		}
	}
	if !found {
		t.Errorf("Today's stats not found in history")
	}
}

func TestLocations(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	if err := s.AddLocation("/downloads/models", "Model Drive"); err != nil {
		t.Fatalf("Failed to add location: %v", err)
	}

	locations, err := s.GetLocations()
	if err != nil {
		t.Fatalf("Failed to get locations: %v", err)
	}
	if len(locations) != 1 {
		t.Fatalf("Expected 1 location, got %d", len(locations))
	}
	if locations[0].Nickname != "Model Drive" {
		t.Errorf("Expected nickname 'Model Drive', got %s", locations[0].Nickname)
	}

	if err := s.AddLocation("/downloads/models", "SSD Models"); err != nil {
		t.Fatalf("Failed to update location: %v", err)
	}

	locations, _ = s.GetLocations()
	if len(locations) != 1 {
		t.Errorf("Expected 1 location after upsert, got %d", len(locations))
	}
	if locations[0].Nickname != "SSD Models" {
		t.Errorf("Expected nickname 'SSD Models', got %s", locations[0].Nickname)
	}
}

func TestAppSettings(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	if err := s.SetString("retrieval_urgency_default", "normal"); err != nil {
		t.Fatalf("Failed to set string: %v", err)
	}

	val, err := s.GetString("retrieval_urgency_default")
	if err != nil {
		t.Fatalf("Failed to get string: %v", err)
	}
	if val != "normal" {
		t.Errorf("Expected 'normal', got %s", val)
	}

	if err := s.SetStringList("blocked_domains", []string{"ads.com", "spam.net"}); err != nil {
		t.Fatalf("Failed to set string list: %v", err)
	}

	list, err := s.GetStringList("blocked_domains")
	if err != nil {
		t.Fatalf("Failed to get string list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 items in list, got %d", len(list))
	}

	if !s.GetBool("missing_flag", true) {
		t.Errorf("Expected default true for missing flag")
	}
}

func TestMemoryCRUDAndDedup(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	m := Memory{
		ID:          "mem-1",
		UserID:      "u1",
		Content:     "likes dark mode",
		ContentHash: "hash-1",
		MemoryType:  MemoryTypePreference,
		Importance:  0.6,
		Tier:        TierHot,
	}
	if err := s.SaveMemory(m); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	_, found, err := s.FindByContentHash("u1", "hash-1")
	if err != nil {
		t.Fatalf("FindByContentHash: %v", err)
	}
	if !found {
		t.Errorf("expected duplicate content hash to be found")
	}

	_, found, err = s.FindByContentHash("u1", "hash-2")
	if err != nil {
		t.Fatalf("FindByContentHash: %v", err)
	}
	if found {
		t.Errorf("expected no match for unseen content hash")
	}

	memories, err := s.ListMemories(MemoryFilter{UserID: "u1"}, 10, 0)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(memories))
	}

	if err := s.UpdateMemoryTier("mem-1", TierWarm); err != nil {
		t.Fatalf("UpdateMemoryTier: %v", err)
	}
	got, _ := s.GetMemory("mem-1")
	if got.Tier != TierWarm {
		t.Errorf("expected tier warm, got %s", got.Tier)
	}

	lowImportance := 0.3
	n, err := s.DeleteMemories(MemoryFilter{UserID: "u1", ImportanceLT: &lowImportance, AccessCountZero: true})
	if err != nil {
		t.Fatalf("DeleteMemories: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 deleted (importance 0.6 not < 0.3), got %d", n)
	}
}

func TestLearningQueueLifecycle(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	if err := s.EnqueueLearning(LearningQueueItem{UserID: "u1", ChatID: "c1", MessagesJSON: "[]"}); err != nil {
		t.Fatalf("EnqueueLearning: %v", err)
	}

	item, err := s.NextLearningItem()
	if err != nil {
		t.Fatalf("NextLearningItem: %v", err)
	}
	if item == nil {
		t.Fatalf("expected one queued item")
	}

	if err := s.MarkLearningInProgress(item.ID); err != nil {
		t.Fatalf("MarkLearningInProgress: %v", err)
	}

	next, err := s.NextLearningItem()
	if err != nil {
		t.Fatalf("NextLearningItem: %v", err)
	}
	if next != nil {
		t.Errorf("expected no unprocessed rows while item is in-progress")
	}

	if err := s.MarkLearningUnprocessed(item.ID); err != nil {
		t.Fatalf("MarkLearningUnprocessed: %v", err)
	}
	requeued, err := s.NextLearningItem()
	if err != nil {
		t.Fatalf("NextLearningItem: %v", err)
	}
	if requeued == nil {
		t.Fatalf("expected item to be visible again after requeue")
	}

	if err := s.MarkLearningDone(requeued.ID); err != nil {
		t.Fatalf("MarkLearningDone: %v", err)
	}
	done, _ := s.NextLearningItem()
	if done != nil {
		t.Errorf("expected queue drained after marking done")
	}
}

func TestChatSessionAndMessages(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	sess := ChatSession{ID: "sess-1", UserID: "u1"}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.SetSessionTitle("sess-1", "what is the weather in paris"); err != nil {
		t.Fatalf("SetSessionTitle: %v", err)
	}

	if err := s.AppendMessage(ChatMessage{SessionID: "sess-1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage user: %v", err)
	}
	if err := s.AppendMessage(ChatMessage{SessionID: "sess-1", Role: "assistant", Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage assistant: %v", err)
	}

	msgs, err := s.RecentMessages("sess-1", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("expected chronological order user,assistant; got %s,%s", msgs[0].Role, msgs[1].Role)
	}
}
