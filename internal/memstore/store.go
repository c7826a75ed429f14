package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pradhumn115/ruma-core/internal/storage"
)

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Store persists a memory, gating on importance and deduplicating by
// exact content hash, per §4.2.
func (s *Store) Store(ctx context.Context, in Input) (string, error) {
	cfg := s.cfg.Domain()
	if in.Importance < cfg.EmbedImportanceThreshold {
		return StatusSkippedImportance, nil
	}

	hash := contentHash(in.Content)
	if _, found, err := s.db.FindByContentHash(in.UserID, hash); err != nil {
		return StatusError, err
	} else if found {
		return StatusSkippedDuplicate, nil
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = 1
	}

	m := storage.Memory{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		Content:         in.Content,
		ContentHash:     hash,
		MemoryType:      in.MemoryType,
		Importance:      in.Importance,
		Confidence:      confidence,
		Category:        in.Category,
		Keywords:        strings.Join(in.Keywords, ","),
		Context:         in.Context,
		TemporalPattern: in.TemporalPattern,
		Tier:            storage.TierHot,
		CreatedAt:       time.Now().Format(time.RFC3339),
	}
	if err := m.SetMetadata(in.Metadata); err != nil {
		return StatusError, err
	}
	if err := s.db.SaveMemory(m); err != nil {
		return StatusError, err
	}

	// Best-effort: a vector failure here must not undo the SQL write.
	s.embedAndIndex(ctx, m)

	return StatusStored, nil
}

// Get fetches one memory and bumps its access counters.
func (s *Store) Get(id string) (storage.Memory, error) {
	m, err := s.db.GetMemory(id)
	if err != nil {
		return storage.Memory{}, err
	}
	_ = s.db.TouchMemoryAccess(id)
	return m, nil
}

// Delete removes every memory matching filter, cascading the deletion
// into the vector index (§4.2 "Must cascade to C2").
func (s *Store) Delete(filter storage.MemoryFilter) (int64, error) {
	var ids []string
	if len(filter.IDs) > 0 {
		ids = filter.IDs
	} else {
		matches, err := s.db.ListMemories(filter, 0, 0)
		if err != nil {
			return 0, err
		}
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
	}

	n, err := s.db.DeleteMemories(filter)
	if err != nil {
		return 0, err
	}

	if s.vectors != nil && len(ids) > 0 {
		for _, tier := range []string{storage.TierHot, storage.TierWarm, storage.TierCold} {
			s.vectors.Remove(tier, ids)
		}
	}
	return n, nil
}

// List returns a page of memories matching filter, newest first.
func (s *Store) List(filter storage.MemoryFilter, limit, offset int) ([]storage.Memory, error) {
	return s.db.ListMemories(filter, limit, offset)
}
