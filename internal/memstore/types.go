// Package memstore implements C4: the typed, tiered memory store that
// sits on top of the relational schema and the vector index.
package memstore

import (
	"context"
	"log/slog"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

// Result codes for Store.
const (
	StatusStored            = "stored"
	StatusSkippedImportance = "skipped_importance"
	StatusSkippedDuplicate  = "skipped_duplicate"
	StatusError              = "error"
)

// Input is the caller-supplied memory payload before gating/dedup.
type Input struct {
	UserID          string
	Content         string
	MemoryType      string
	Importance      float64
	Confidence      float64 // 0 means "unspecified", defaulted to 1 in Store
	Category        string
	Keywords        []string
	Context         string
	TemporalPattern string
	Metadata        map[string]any
}

// Store is C4: the memory store. It owns no storage of its own -
// storage.Storage holds the relational rows, vectorindex.Store holds the
// embeddings; this type is the policy layer gating, deduplicating, and
// tiering what flows between them.
type Store struct {
	logger  *slog.Logger
	db      *storage.Storage
	vectors *vectorindex.Store
	embed   llmengine.Embedder
	cfg     *config.ConfigManager
}

func New(logger *slog.Logger, db *storage.Storage, vectors *vectorindex.Store, embed llmengine.Embedder, cfg *config.ConfigManager) *Store {
	return &Store{logger: logger, db: db, vectors: vectors, embed: embed, cfg: cfg}
}

// embedAndIndex is best-effort: a failure here must not roll back the
// already-committed SQL row (§4.2 "SQL success with vector failure is
// acceptable; the inverse is not").
func (s *Store) embedAndIndex(ctx context.Context, m storage.Memory) {
	if s.embed == nil || s.vectors == nil {
		return
	}
	vec, err := s.embed.Embed(ctx, m.Content)
	if err != nil {
		s.logger.Warn("memory embed failed", "id", m.ID, "err", err)
		return
	}
	if err := s.vectors.Add(m.Tier, []string{m.ID}, [][]float32{vec}); err != nil {
		s.logger.Warn("vector index insert failed", "id", m.ID, "err", err)
		return
	}
	if err := s.db.SetMemoryVectorIndexed(m.ID, true); err != nil {
		s.logger.Warn("marking memory vector-indexed failed", "id", m.ID, "err", err)
	}
}
