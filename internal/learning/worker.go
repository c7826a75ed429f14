package learning

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// RunWorker is the body of the extraction worker (C7), meant to run in
// its own OS process (cmd/extractworker, or rumad re-exec'd with
// --extract-worker). It loops until ctx is cancelled, per §4.5's
// "Worker loop":
//  1. if the UI-active signal is set, sleep and continue
//  2. fetch the oldest unprocessed learning_queue row
//  3. mark it in-progress, copy it into pending_chats, mark it done
//  4. drain pending_chats (the actual memory-extraction pass) while the
//     UI is still inactive
func RunWorker(ctx context.Context, logger *slog.Logger, db *storage.Storage, cfg *config.ConfigManager, mem *memstore.Store, engine llmengine.Engine) error {
	poll := time.Duration(cfg.Domain().LearningQueuePollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 2 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if cfg.IsUIActive() {
			sleep(ctx, poll)
			continue
		}

		moved, err := drainOneQueueItem(db)
		if err != nil {
			logger.Warn("learning queue drain failed", "err", err)
			sleep(ctx, poll)
			continue
		}

		if err := processPendingChats(ctx, logger, db, cfg, mem, engine); err != nil {
			logger.Warn("memory extraction pass failed", "err", err)
		}

		if !moved {
			sleep(ctx, poll)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// drainOneQueueItem moves the oldest unprocessed learning_queue row into
// pending_chats, reporting whether a row was found.
func drainOneQueueItem(db *storage.Storage) (bool, error) {
	item, err := db.NextLearningItem()
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	if err := db.MarkLearningInProgress(item.ID); err != nil {
		return false, err
	}

	if err := db.EnqueuePendingChat(storage.PendingChat{
		UserID:       item.UserID,
		ChatID:       item.ChatID,
		MessagesJSON: item.MessagesJSON,
	}); err != nil {
		_ = db.MarkLearningUnprocessed(item.ID)
		return false, err
	}

	return true, db.MarkLearningDone(item.ID)
}

// processPendingChats drains every unprocessed pending_chats row,
// running the full aspect-extraction sweep on each. It stops (without
// failing rows) the moment the UI-active signal appears, re-queuing the
// in-flight row for the next idle pass.
func processPendingChats(ctx context.Context, logger *slog.Logger, db *storage.Storage, cfg *config.ConfigManager, mem *memstore.Store, engine llmengine.Engine) error {
	uiActive := func() bool { return cfg.IsUIActive() }

	for {
		if uiActive() {
			return nil
		}

		pc, err := db.NextPendingChat()
		if err != nil {
			return err
		}
		if pc == nil {
			return nil
		}

		preempted, err := extractChat(ctx, mem, engine, uiActive, pc.UserID, pc.ChatID, pc.MessagesJSON)
		if preempted {
			return db.MarkPendingChat(pc.ID, storage.QueueUnprocessed)
		}
		if err != nil {
			logger.Warn("chat extraction failed", "chat_id", pc.ChatID, "err", err)
			if err := db.MarkPendingChat(pc.ID, storage.QueueFailed); err != nil {
				return err
			}
			continue
		}
		if err := db.MarkPendingChat(pc.ID, storage.QueueDone); err != nil {
			return err
		}
	}
}
