package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

func cacheKey(q Query) string {
	types := append([]string(nil), q.MemoryTypes...)
	sort.Strings(types)
	return fmt.Sprintf("%s|%s|%s|%s", q.UserID, strings.ToLower(strings.TrimSpace(q.Text)), q.Urgency, strings.Join(types, ","))
}

// lookup returns a cached result if present, unexpired, and still
// current for the user's generation counter.
func (r *Router) lookup(q Query) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[cacheKey(q)]
	if !ok {
		return Result{}, false
	}
	ttl := time.Duration(r.cfg.Domain().RetrievalCacheTTLSeconds) * time.Second
	if time.Since(entry.storedAt) > ttl {
		return Result{}, false
	}
	if entry.generation != r.gen[q.UserID] {
		return Result{}, false
	}
	return entry.result, true
}

func (r *Router) store(q Query, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[cacheKey(q)] = cacheEntry{result: result, storedAt: time.Now(), generation: r.gen[q.UserID]}
}
