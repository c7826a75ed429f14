package vectorindex

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Pradhumn115/ruma-core/internal/storage"

	"github.com/gofrs/flock"
)

// Tier names, matching storage.Tier* constants.
const (
	TierHot  = storage.TierHot
	TierWarm = storage.TierWarm
	TierCold = storage.TierCold
)

// Store is the tier-partitioned vector index: one HotIndex, one
// WarmIndex, one ColdIndex, each persisted under dir as one gob file
// holding both the index and its id map (no separate id-map file is
// written), rewritten every 1000 adds and at Shutdown.
type Store struct {
	mu  sync.Mutex
	dir string

	hot  *HotIndex
	warm *WarmIndex
	cold *ColdIndex

	addsSinceSave int

	diskMu sync.Mutex // serializes flock.Flock use by this process's own goroutines
	lock   *flock.Flock
}

func NewStore(dir string) *Store {
	return &Store{
		dir:  dir,
		hot:  NewHotIndex(),
		warm: NewWarmIndex(),
		cold: NewColdIndex(),
		lock: flock.New(filepath.Join(dir, ".lock")),
	}
}

func (s *Store) tier(name string) (tierIndex, error) {
	switch name {
	case TierHot:
		return s.hot, nil
	case TierWarm:
		return s.warm, nil
	case TierCold:
		return s.cold, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTier, name)
	}
}

func (s *Store) paths(tierName string) (string, string) {
	return filepath.Join(s.dir, tierName+"_index.gob"), filepath.Join(s.dir, tierName+"_idmap.gob")
}

// Load reads all three persisted tier files, if present, under the
// same directory guard Save uses - rumad serve and the extraction
// worker both open this directory from separate processes, and the
// gob snapshots have no WAL of their own to arbitrate a read landing
// mid-write.
func (s *Store) Load() error {
	if err := s.withDirLock(func() error {
		for _, name := range []string{TierHot, TierWarm, TierCold} {
			idx, _ := s.tier(name)
			indexPath, idMapPath := s.paths(name)
			if err := idx.Load(indexPath, idMapPath); err != nil {
				return fmt.Errorf("loading %s tier: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return nil
}

// withDirLock runs fn while holding an exclusive, cross-process lock
// on the store's directory, blocking (rather than failing outright)
// until the other process - worker or interactive - finishes its own
// save/load.
func (s *Store) withDirLock(fn func() error) error {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking vector index dir %s: %w", s.dir, err)
	}
	defer s.lock.Unlock()
	return fn()
}

// Add inserts vectors into one tier's index, checkpointing to disk
// every 1000 adds across all tiers combined.
func (s *Store) Add(tierName string, ids []string, vectors [][]float32) error {
	idx, err := s.tier(tierName)
	if err != nil {
		return err
	}
	if err := idx.Add(ids, vectors); err != nil {
		return err
	}

	s.mu.Lock()
	s.addsSinceSave += len(ids)
	shouldSave := s.addsSinceSave >= saveEvery
	if shouldSave {
		s.addsSinceSave = 0
	}
	s.mu.Unlock()

	if shouldSave {
		return s.Shutdown()
	}
	return nil
}

func (s *Store) Search(tierName string, query []float32, k int) ([]SearchResult, error) {
	idx, err := s.tier(tierName)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, k)
}

// MultiTierSearch searches the given tiers (all three if empty) and
// returns the merged top-k sorted by ascending distance.
func (s *Store) MultiTierSearch(query []float32, k int, tiers []string) ([]SearchResult, error) {
	if len(tiers) == 0 {
		tiers = []string{TierHot, TierWarm, TierCold}
	}

	var all []SearchResult
	for _, t := range tiers {
		idx, err := s.tier(t)
		if err != nil {
			return nil, err
		}
		if idx.Stats().Count == 0 {
			continue
		}
		res, err := idx.Search(query, k)
		if err != nil {
			continue
		}
		all = append(all, res...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

// TierIDs lists every non-deleted external memory id currently present
// in one tier's index, used by the orphan-vector sweep.
func (s *Store) TierIDs(tierName string) ([]string, error) {
	idx, err := s.tier(tierName)
	if err != nil {
		return nil, err
	}
	return idx.ActiveIDs(), nil
}

func (s *Store) Remove(tierName string, ids []string) (int, error) {
	idx, err := s.tier(tierName)
	if err != nil {
		return 0, err
	}
	return idx.Remove(ids), nil
}

func (s *Store) Stats(tierName string) (Stats, error) {
	idx, err := s.tier(tierName)
	if err != nil {
		return Stats{}, err
	}
	return idx.Stats(), nil
}

func (s *Store) saveTier(tierName string) error {
	idx, err := s.tier(tierName)
	if err != nil {
		return err
	}
	indexPath, idMapPath := s.paths(tierName)
	return s.withDirLock(func() error {
		return idx.Save(indexPath, idMapPath)
	})
}

// Shutdown flushes every tier to disk unconditionally.
func (s *Store) Shutdown() error {
	for _, name := range []string{TierHot, TierWarm, TierCold} {
		if err := s.saveTier(name); err != nil {
			return err
		}
	}
	return nil
}
