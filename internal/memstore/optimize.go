package memstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Report summarizes one Optimize pass, per sub-strategy.
type Report struct {
	DeduplicatedCount  int `json:"deduplicated_count"`
	CleanedCount       int `json:"cleaned_count"`
	CompressedCount    int `json:"compressed_count"`
	MergedCount        int `json:"merged_count"`
	ArchivedCount      int `json:"archived_count"`
	PromotedCount      int `json:"promoted_count"`
	OrphanedVectors    int `json:"orphaned_vectors_removed"`
	StrategiesApplied  []string `json:"strategies_applied"`
}

func (r *Report) apply(name string, n int) {
	if n > 0 {
		r.StrategiesApplied = append(r.StrategiesApplied, name)
	}
}

// Optimize runs the full strategy pipeline in the order §4.2 specifies:
// dedup -> importance cleanup -> compression -> similarity merge ->
// tiering -> archival -> orphan-vector sweep. Each sub-pass commits its
// own deletions before the next runs, so a failure partway through
// leaves the store in a consistent (if incompletely optimized) state.
func (s *Store) Optimize(userID string, force bool) (Report, error) {
	var report Report

	n, err := s.deduplicate(userID)
	if err != nil {
		return report, fmt.Errorf("dedup: %w", err)
	}
	report.DeduplicatedCount = n
	report.apply("deduplication", n)

	n, err = s.cleanupLowImportance(userID)
	if err != nil {
		return report, fmt.Errorf("importance cleanup: %w", err)
	}
	report.CleanedCount = n
	report.apply("importance_cleanup", n)

	n, err = s.compressLargeContent(userID)
	if err != nil {
		return report, fmt.Errorf("compression: %w", err)
	}
	report.CompressedCount = n
	report.apply("compression", n)

	n, err = s.mergeSimilar(userID)
	if err != nil {
		return report, fmt.Errorf("similarity merge: %w", err)
	}
	report.MergedCount = n
	report.apply("similarity_merge", n)

	n, err = s.retier(userID)
	if err != nil {
		return report, fmt.Errorf("tiering: %w", err)
	}
	report.PromotedCount = n
	report.apply("tiering", n)

	n, err = s.archive(userID, force)
	if err != nil {
		return report, fmt.Errorf("archival: %w", err)
	}
	report.ArchivedCount = n
	report.apply("archival", n)

	n, err = s.sweepOrphanVectors(userID)
	if err != nil {
		return report, fmt.Errorf("orphan sweep: %w", err)
	}
	report.OrphanedVectors = n
	report.apply("orphan_sweep", n)

	return report, nil
}

// deduplicate groups memories by exact content and keeps only the
// earliest id per group.
func (s *Store) deduplicate(userID string) (int, error) {
	memories, err := s.db.ListMemories(storage.MemoryFilter{UserID: userID}, 0, 0)
	if err != nil {
		return 0, err
	}

	byContent := make(map[string][]storage.Memory)
	for _, m := range memories {
		byContent[m.Content] = append(byContent[m.Content], m)
	}

	var toDelete []string
	for _, group := range byContent {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt < group[j].CreatedAt })
		for _, dup := range group[1:] {
			toDelete = append(toDelete, dup.ID)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	n, err := s.Delete(storage.MemoryFilter{IDs: toDelete})
	return int(n), err
}

// cleanupLowImportance removes memories that never earned their keep:
// importance < threshold, never accessed, older than 30 days.
func (s *Store) cleanupLowImportance(userID string) (int, error) {
	cfg := s.cfg.Domain()
	threshold := cfg.CleanupImportanceThreshold
	n, err := s.Delete(storage.MemoryFilter{
		UserID:          userID,
		ImportanceLT:    &threshold,
		AccessCountZero: true,
		OlderThanDays:   30,
	})
	return int(n), err
}

// compressLargeContent rewrites long content to a prefix+suffix excerpt,
// idempotent via the leading marker.
func (s *Store) compressLargeContent(userID string) (int, error) {
	cfg := s.cfg.Domain()
	threshold := cfg.CompressionCharThreshold

	memories, err := s.db.ListMemories(storage.MemoryFilter{UserID: userID}, 0, 0)
	if err != nil {
		return 0, err
	}

	const marker = "[COMPRESSED] "
	count := 0
	for _, m := range memories {
		if strings.HasPrefix(m.Content, marker) || len(m.Content) <= threshold {
			continue
		}
		prefix := m.Content
		if len(prefix) > 200 {
			prefix = prefix[:200]
		}
		suffixStart := len(m.Content) - 100
		if suffixStart < 0 {
			suffixStart = 0
		}
		compressed := marker + prefix + "..." + m.Content[suffixStart:]
		if err := s.db.MarkSummaryOnly(m.ID, compressed); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// mergeSimilar pairwise-compares same-type memories by Jaccard
// similarity over word sets and folds matches into the higher-importance
// memory.
func (s *Store) mergeSimilar(userID string) (int, error) {
	cfg := s.cfg.Domain()
	threshold := cfg.SimilarityMergeThreshold

	memories, err := s.db.ListMemories(storage.MemoryFilter{UserID: userID}, 0, 0)
	if err != nil {
		return 0, err
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].Importance > memories[j].Importance })

	merged := make(map[string]bool)
	count := 0
	for i := range memories {
		if merged[memories[i].ID] {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			if merged[memories[j].ID] || memories[i].MemoryType != memories[j].MemoryType {
				continue
			}
			if jaccard(memories[i].Content, memories[j].Content) < threshold {
				continue
			}

			keep := memories[i]
			keep.Content = keep.Content + " [MERGED: Similar content consolidated]"
			if memories[j].Importance > keep.Importance {
				keep.Importance = memories[j].Importance
			}
			if err := s.db.SaveMemory(keep); err != nil {
				return count, err
			}
			if _, err := s.Delete(storage.MemoryFilter{IDs: []string{memories[j].ID}}); err != nil {
				return count, err
			}
			merged[memories[j].ID] = true
			memories[i] = keep
			count++
		}
	}
	return count, nil
}

func jaccard(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// retier recomputes each memory's target tier from age/importance and
// promotes strictly hot->warm->cold. The vector index entry for a
// promoted memory is left in its original tier index until the next
// embed pass re-adds it under the new tier (moving a FAISS-style entry
// between tier indexes without the raw vector on hand would require
// either re-embedding or reconstructing from the PQ codebook, neither
// of which this pass does); multi_tier_search still finds it regardless
// of which tier index it physically lives in.
func (s *Store) retier(userID string) (int, error) {
	cfg := s.cfg.Domain()
	memories, err := s.db.ListMemories(storage.MemoryFilter{UserID: userID}, 0, 0)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range memories {
		target := targetTier(m, cfg)
		if target == m.Tier || tierRank(target) < tierRank(m.Tier) {
			continue // monotonic: never demote
		}
		if err := s.db.UpdateMemoryTier(m.ID, target); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// RemoveLowImportanceCold deletes cold-tier memories below threshold
// regardless of access count or age, the scheduler's weekly sweep
// distinct from cleanupLowImportance's access/age-gated pass.
func (s *Store) RemoveLowImportanceCold(userID string, threshold float64) (int, error) {
	n, err := s.Delete(storage.MemoryFilter{
		UserID:       userID,
		Tier:         storage.TierCold,
		ImportanceLT: &threshold,
	})
	return int(n), err
}

func tierRank(tier string) int {
	switch tier {
	case storage.TierHot:
		return 0
	case storage.TierWarm:
		return 1
	default:
		return 2
	}
}

// targetTier is a pure function of age and importance, per §4.2's
// tiering table. High-importance memories get double the age allowance
// before demotion.
func targetTier(m storage.Memory, cfg config.DomainDefaults) string {
	created, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		return storage.TierHot
	}
	ageDays := time.Since(created).Hours() / 24

	hotMax := float64(cfg.HotTierMaxAgeDays)
	warmMax := float64(cfg.WarmTierMaxAgeDays)
	if m.Importance >= cfg.HighImportanceThreshold {
		hotMax *= cfg.HighImportanceAgeMultiplier
		warmMax *= cfg.HighImportanceAgeMultiplier
	}

	switch {
	case ageDays <= hotMax:
		return storage.TierHot
	case ageDays <= warmMax:
		return storage.TierWarm
	default:
		return storage.TierCold
	}
}
