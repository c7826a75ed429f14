// Package scheduler implements C9: the weekly background optimization
// pass over the memory subsystem, ported from hybrid_memory_system.py's
// _init_weekly_scheduler/_run_weekly_vacuum. The corpus carries no
// cron-style library (no robfig/cron or go-co-op/gocron anywhere in the
// example pack); every teacher background loop - internal/engine's
// congestion/speed tickers included - is a plain time.Ticker, so this
// package follows that idiom rather than pulling in a scheduling
// dependency nothing else in the tree uses.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

const lastRunKey = "scheduler_last_run"

// checkInterval mirrors the Python scheduler's hourly schedule.run_pending
// poll; the weekly threshold itself comes from config.
const checkInterval = time.Hour

// Scheduler runs Run's weekly sweep on its own goroutine.
type Scheduler struct {
	logger  *slog.Logger
	db      *storage.Storage
	vectors *vectorindex.Store
	mem     *memstore.Store
	cfg     *config.ConfigManager
}

func New(logger *slog.Logger, db *storage.Storage, vectors *vectorindex.Store, mem *memstore.Store, cfg *config.ConfigManager) *Scheduler {
	return &Scheduler{logger: logger, db: db, vectors: vectors, mem: mem, cfg: cfg}
}

// Run blocks, waking every checkInterval to decide whether a week has
// elapsed since the last sweep, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	s.maybeRun(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeRun(ctx)
		}
	}
}

func (s *Scheduler) maybeRun(ctx context.Context) {
	due, err := s.due()
	if err != nil {
		s.logger.Warn("scheduler: failed to read last-run marker", "err", err)
		return
	}
	if !due {
		return
	}
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled vacuum failed", "err", err)
		return
	}
	if err := s.db.SetString(lastRunKey, time.Now().Format(time.RFC3339)); err != nil {
		s.logger.Warn("scheduler: failed to persist last-run marker", "err", err)
	}
}

func (s *Scheduler) due() (bool, error) {
	raw, err := s.db.GetString(lastRunKey)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true, nil
	}
	interval := time.Duration(s.cfg.Domain().SchedulerIntervalDays) * 24 * time.Hour
	return time.Since(last) >= interval, nil
}
