// Package retrieval implements C5: the urgency-budget retrieval router
// sitting in front of the memory store and vector index.
package retrieval

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/config"
	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/storage"
	"github.com/Pradhumn115/ruma-core/internal/vectorindex"
)

var errNoEmbedder = errors.New("retrieval: no embedder configured")

// Urgency levels and the search strategy each one targets.
const (
	UrgencyInstant       = "instant"
	UrgencyNormal        = "normal"
	UrgencyComprehensive = "comprehensive"
)

const (
	StrategySQL    = "sql"
	StrategyHybrid = "hybrid"
	StrategyVector = "vector"
)

// Query is one retrieval request.
type Query struct {
	Text        string
	UserID      string
	Urgency     string
	MemoryTypes []string
	Limit       int
}

// Result is C5's unified return shape, per §4.4.
type Result struct {
	Memories        []storage.Memory `json:"memories"`
	SearchStrategy  string           `json:"search_strategy"`
	LatencyMS       int64            `json:"latency_ms"`
	TotalSearched   int              `json:"total_searched"`
	RelevanceScores []float64        `json:"relevance_scores"`
	Query           string           `json:"query"`
	Urgency         string           `json:"urgency"`
}

// Router is C5.
type Router struct {
	logger  *slog.Logger
	db      *storage.Storage
	vectors *vectorindex.Store
	embed   llmengine.Embedder
	cfg     *config.ConfigManager

	mu    sync.Mutex
	cache map[string]cacheEntry
	gen   map[string]int // per-user generation counter, bumped by Invalidate
}

type cacheEntry struct {
	result    Result
	storedAt  time.Time
	generation int
}

func New(logger *slog.Logger, db *storage.Storage, vectors *vectorindex.Store, embed llmengine.Embedder, cfg *config.ConfigManager) *Router {
	return &Router{
		logger:  logger,
		db:      db,
		vectors: vectors,
		embed:   embed,
		cfg:     cfg,
		cache:   make(map[string]cacheEntry),
		gen:     make(map[string]int),
	}
}

// Invalidate bumps a user's generation counter so stale cache entries
// stop being served without a scan over the whole cache. The control
// API's memory handlers and the chat orchestrator call it after their
// writes; memories written by the extraction worker process do not bump
// it, and reach cached results only once the TTL expires.
func (r *Router) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen[userID]++
}
