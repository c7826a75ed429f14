package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/memstore"
)

// lowImportanceColdThreshold matches the Python scheduler's hardcoded
// "very low importance" bar for cold-tier removal (distinct from the
// access/age-gated cleanupLowImportance pass memstore.Optimize already
// runs at the general cleanup threshold).
const lowImportanceColdThreshold = 0.1

// Report summarizes one weekly vacuum pass across every user, mirroring
// vacuum_and_optimize's returned operations list.
type Report struct {
	StartedAt      time.Time                  `json:"started_at"`
	ExecutionMS    int64                       `json:"execution_time_ms"`
	PerUser        map[string]memstore.Report `json:"per_user"`
	LowImportanceRemoved int                  `json:"low_importance_cold_removed"`
	Vacuumed       bool                        `json:"relational_vacuum_ran"`
	IndexSaved     bool                        `json:"vector_index_saved"`
}

// RunOnce performs the four operations _run_weekly_vacuum chains,
// fanned out across every user that owns at least one memory:
//  1. age-based tier promotion + the rest of memstore.Optimize's pipeline
//  2. removal of very-low-importance cold memories
//  3. relational VACUUM
//  4. vector index persistence
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{StartedAt: start, PerUser: make(map[string]memstore.Report)}

	users, err := s.db.DistinctMemoryUsers()
	if err != nil {
		return report, fmt.Errorf("listing users: %w", err)
	}

	for _, userID := range users {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		optReport, err := s.mem.Optimize(userID, true)
		if err != nil {
			s.logger.Warn("scheduled optimize failed for user", "user_id", userID, "err", err)
			continue
		}
		report.PerUser[userID] = optReport

		removed, err := s.mem.RemoveLowImportanceCold(userID, lowImportanceColdThreshold)
		if err != nil {
			s.logger.Warn("scheduled low-importance cold removal failed", "user_id", userID, "err", err)
			continue
		}
		report.LowImportanceRemoved += removed
	}

	if err := s.db.Vacuum(); err != nil {
		s.logger.Warn("relational VACUUM failed", "err", err)
	} else {
		report.Vacuumed = true
	}

	if s.vectors != nil {
		if err := s.vectors.Shutdown(); err != nil {
			s.logger.Warn("vector index save failed", "err", err)
		} else {
			report.IndexSaved = true
		}
	}

	report.ExecutionMS = time.Since(start).Milliseconds()
	s.logger.Info("weekly vacuum completed", "users", len(users), "low_importance_removed", report.LowImportanceRemoved, "ms", report.ExecutionMS)
	return report, nil
}
