package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Retrieve answers q, selecting a strategy from q.Urgency per §4.4's
// budget table, reporting whichever strategy actually ran (a downgrade
// may pick a cheaper one than requested).
func (r *Router) Retrieve(ctx context.Context, q Query) (Result, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if cached, ok := r.lookup(q); ok {
		return cached, nil
	}

	start := time.Now()
	var result Result
	var err error

	switch q.Urgency {
	case UrgencyComprehensive:
		result, err = r.comprehensive(ctx, q)
		if err != nil {
			r.logger.Warn("comprehensive retrieval failed, downgrading to hybrid", "err", err)
			result, err = r.hybrid(ctx, q)
		}
	case UrgencyNormal:
		result, err = r.hybrid(ctx, q)
	case UrgencyInstant:
		result, err = r.instant(q)
	default:
		result, err = r.instant(q)
	}

	if err != nil {
		r.logger.Warn("retrieval strategy failed, downgrading to sql", "urgency", q.Urgency, "err", err)
		result, err = r.instant(q)
	}
	if err != nil {
		return Result{}, err
	}

	result.LatencyMS = time.Since(start).Milliseconds()
	result.Query = q.Text
	result.Urgency = q.Urgency
	r.store(q, result)
	return result, nil
}

// instant is SQL-only keyword search, budget <= 30ms: score =
// 0.7*content-word-overlap + 0.3*keyword-overlap, normalized by query
// length.
func (r *Router) instant(q Query) (Result, error) {
	filter := storage.MemoryFilter{UserID: q.UserID, MemoryTypes: q.MemoryTypes}
	candidates, err := r.db.ListMemories(filter, 0, 0)
	if err != nil {
		return Result{}, err
	}

	queryWords := wordSet(q.Text)
	type scored struct {
		m     storage.Memory
		score float64
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		contentOverlap := overlapRatio(queryWords, wordSet(m.Content))
		keywordOverlap := overlapRatio(queryWords, wordSet(strings.ReplaceAll(m.Keywords, ",", " ")))
		score := 0.7*contentOverlap + 0.3*keywordOverlap
		if score <= 0 {
			continue
		}
		scoredList = append(scoredList, scored{m: m, score: score})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })
	if len(scoredList) > q.Limit {
		scoredList = scoredList[:q.Limit]
	}

	result := Result{SearchStrategy: StrategySQL, TotalSearched: len(candidates)}
	for _, s := range scoredList {
		result.Memories = append(result.Memories, s.m)
		result.RelevanceScores = append(result.RelevanceScores, s.score)
	}
	return result, nil
}

// hybrid fetches up to 50 recent SQL candidates, embeds the query and
// every candidate on the fly (back-filling the index for candidates not
// yet indexed), and cosine-ranks them; stored index vectors are not read.
func (r *Router) hybrid(ctx context.Context, q Query) (Result, error) {
	if r.embed == nil {
		return Result{}, errNoEmbedder
	}

	filter := storage.MemoryFilter{UserID: q.UserID, MemoryTypes: q.MemoryTypes}
	candidates, err := r.db.ListMemories(filter, 50, 0)
	if err != nil {
		return Result{}, err
	}

	queryVec, err := r.embed.Embed(ctx, q.Text)
	if err != nil {
		return Result{}, err
	}

	type scored struct {
		m     storage.Memory
		score float64
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		vec, err := r.embed.Embed(ctx, m.Content)
		if err != nil {
			continue
		}
		if !m.VectorIndexed && r.vectors != nil {
			if err := r.vectors.Add(m.Tier, []string{m.ID}, [][]float32{vec}); err == nil {
				_ = r.db.SetMemoryVectorIndexed(m.ID, true)
			}
		}
		scoredList = append(scoredList, scored{m: m, score: cosineSimilarity(queryVec, vec)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })
	if len(scoredList) > q.Limit {
		scoredList = scoredList[:q.Limit]
	}

	result := Result{SearchStrategy: StrategyHybrid, TotalSearched: len(candidates)}
	for _, s := range scoredList {
		result.Memories = append(result.Memories, s.m)
		result.RelevanceScores = append(result.RelevanceScores, s.score)
	}
	return result, nil
}

// comprehensive runs a full vector ANN pass across every tier,
// reconstructing Memory rows from the ids the index returns.
func (r *Router) comprehensive(ctx context.Context, q Query) (Result, error) {
	if r.embed == nil || r.vectors == nil {
		return Result{}, errNoEmbedder
	}

	queryVec, err := r.embed.Embed(ctx, q.Text)
	if err != nil {
		return Result{}, err
	}

	hits, err := r.vectors.MultiTierSearch(queryVec, q.Limit, nil)
	if err != nil {
		return Result{}, err
	}

	result := Result{SearchStrategy: StrategyVector, TotalSearched: len(hits)}
	for _, h := range hits {
		m, err := r.db.GetMemory(h.MemoryID)
		if err != nil {
			continue // orphaned vector entry; the next scheduler pass sweeps it
		}
		if len(q.MemoryTypes) > 0 && !contains(q.MemoryTypes, m.MemoryType) {
			continue
		}
		result.Memories = append(result.Memories, m)
		result.RelevanceScores = append(result.RelevanceScores, 1.0/(1.0+float64(h.Distance)))
	}
	return result, nil
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func overlapRatio(query, other map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hit := 0
	for w := range query {
		if other[w] {
			hit++
		}
	}
	return float64(hit) / float64(len(query))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
