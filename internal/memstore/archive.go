package memstore

import (
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// archive enforces per-tier quotas (max_hot_per_user, max_warm_per_user)
// by promoting the oldest rows in an over-quota tier to the next tier
// down, per §4.2's "Quotas" note. force is accepted for API symmetry
// with the Python optimizer's force_optimization flag but this pass is
// already idempotent and cheap enough to always run.
func (s *Store) archive(userID string, force bool) (int, error) {
	cfg := s.cfg.Domain()
	count := 0

	hotCount, err := s.db.CountMemories(storage.MemoryFilter{UserID: userID, Tier: storage.TierHot})
	if err != nil {
		return count, err
	}
	if excess := int(hotCount) - cfg.MaxHotPerUser; excess > 0 {
		n, err := s.promoteOldest(userID, storage.TierHot, storage.TierWarm, excess)
		if err != nil {
			return count, err
		}
		count += n
	}

	warmCount, err := s.db.CountMemories(storage.MemoryFilter{UserID: userID, Tier: storage.TierWarm})
	if err != nil {
		return count, err
	}
	if excess := int(warmCount) - cfg.MaxWarmPerUser; excess > 0 {
		n, err := s.promoteOldest(userID, storage.TierWarm, storage.TierCold, excess)
		if err != nil {
			return count, err
		}
		count += n
	}

	return count, nil
}

func (s *Store) promoteOldest(userID, from, to string, n int) (int, error) {
	oldest, err := s.db.OldestMemories(storage.MemoryFilter{UserID: userID, Tier: from}, n)
	if err != nil {
		return 0, err
	}
	for _, m := range oldest {
		if err := s.db.UpdateMemoryTier(m.ID, to); err != nil {
			return 0, err
		}
	}
	return len(oldest), nil
}

// sweepOrphanVectors deletes any vector-index entry whose SQL row is
// gone, per §4.2's orphan-vector sweep.
func (s *Store) sweepOrphanVectors(userID string) (int, error) {
	if s.vectors == nil {
		return 0, nil
	}

	liveIDs, err := s.db.AllMemoryIDs(userID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, tier := range []string{storage.TierHot, storage.TierWarm, storage.TierCold} {
		ids, err := s.vectors.TierIDs(tier)
		if err != nil {
			continue
		}
		var orphans []string
		for _, id := range ids {
			if !liveIDs[id] {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) == 0 {
			continue
		}
		n, err := s.vectors.Remove(tier, orphans)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}
