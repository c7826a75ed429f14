package vectorindex

import (
	"encoding/gob"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
)

// HotIndex is a flat HNSW (hierarchical navigable small world) graph:
// a multi-layer proximity graph searched greedily, best-first, from an
// entry point down through layers. Parameters match the hot-tier
// config in faiss_integration.py (M=32, efConstruction=200,
// efSearch=50).
type HotIndex struct {
	mu sync.RWMutex

	m              int
	efConstruction int
	efSearch       int
	levelMult      float64

	vectors map[int][]f16
	levels  map[int]int
	links   map[int]map[int][]int // internal id -> level -> neighbor ids
	entry   int
	hasNode bool
	dim     int
	ids     *idMap

	adds int
}

func NewHotIndex() *HotIndex {
	m := 32
	return &HotIndex{
		m:              m,
		efConstruction: 200,
		efSearch:       50,
		levelMult:      1.0 / math.Log(float64(m)),
		vectors:        make(map[int][]f16),
		levels:         make(map[int]int),
		links:          make(map[int]map[int][]int),
		ids:            newIDMap(),
	}
}

func (h *HotIndex) randomLevel() int {
	lvl := int(math.Floor(-math.Log(rand.Float64()) * h.levelMult))
	return lvl
}

func (h *HotIndex) dist(a int, query []float32) float32 {
	return l2Distance(fromF16Vec(h.vectors[a]), query)
}

func (h *HotIndex) Add(extIDs []string, vectors [][]float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, ext := range extIDs {
		vec := vectors[i]
		if h.dim == 0 {
			h.dim = len(vec)
		}
		internal := h.ids.assign(ext)
		h.vectors[internal] = toF16Vec(vec)
		h.insertNode(internal, vec)
		h.adds++
	}
	return nil
}

func (h *HotIndex) insertNode(internal int, vec []float32) {
	level := h.randomLevel()
	h.levels[internal] = level
	h.links[internal] = make(map[int][]int)
	for l := 0; l <= level; l++ {
		h.links[internal][l] = nil
	}

	if !h.hasNode {
		h.entry = internal
		h.hasNode = true
		return
	}

	cur := h.entry
	curLevel := h.levels[h.entry]

	// Descend through layers above the new node's level, greedy single-step.
	for l := curLevel; l > level; l-- {
		cur = h.greedyStep(cur, vec, l)
	}

	for l := min(level, curLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, cur, h.efConstruction, l)
		neighbors := selectNeighbors(candidates, h.m)
		h.links[internal][l] = neighbors
		for _, n := range neighbors {
			h.links[n][l] = append(h.links[n][l], internal)
			if len(h.links[n][l]) > h.m {
				trimmed := selectNeighbors(h.neighborCandidates(n, l), h.m)
				h.links[n][l] = trimmed
			}
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	if level > curLevel {
		h.entry = internal
	}
}

func (h *HotIndex) neighborCandidates(node, level int) []distID {
	neighbors := h.links[node][level]
	out := make([]distID, 0, len(neighbors))
	nodeVec := fromF16Vec(h.vectors[node])
	for _, n := range neighbors {
		out = append(out, distID{id: n, dist: l2Distance(nodeVec, fromF16Vec(h.vectors[n]))})
	}
	return out
}

func (h *HotIndex) greedyStep(from int, query []float32, level int) int {
	best := from
	bestDist := h.dist(from, query)
	improved := true
	for improved {
		improved = false
		for _, n := range h.links[best][level] {
			d := h.dist(n, query)
			if d < bestDist {
				bestDist = d
				best = n
				improved = true
			}
		}
	}
	return best
}

type distID struct {
	id   int
	dist float32
}

// searchLayer does a bounded best-first search at one layer, returning
// up to ef candidates sorted by ascending distance.
func (h *HotIndex) searchLayer(query []float32, entry int, ef int, level int) []distID {
	visited := map[int]bool{entry: true}
	candidates := []distID{{id: entry, dist: h.dist(entry, query)}}
	results := []distID{candidates[0]}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		c := candidates[0]
		candidates = candidates[1:]

		worstResult := results[len(results)-1].dist
		if len(results) >= ef && c.dist > worstResult {
			break
		}

		for _, n := range h.links[c.id][level] {
			if visited[n] {
				continue
			}
			visited[n] = true
			d := h.dist(n, query)
			if len(results) < ef || d < results[len(results)-1].dist {
				candidates = append(candidates, distID{id: n, dist: d})
				results = append(results, distID{id: n, dist: d})
				sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
				if len(results) > ef {
					results = results[:ef]
				}
			}
		}
	}
	return results
}

func selectNeighbors(candidates []distID, m int) []int {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]int, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

func (h *HotIndex) Search(query []float32, k int) ([]SearchResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasNode {
		return nil, nil
	}

	ef := h.efSearch
	if k > ef {
		ef = k
	}

	cur := h.entry
	curLevel := h.levels[h.entry]
	for l := curLevel; l > 0; l-- {
		cur = h.greedyStep(cur, query, l)
	}
	candidates := h.searchLayer(query, cur, ef, 0)

	out := make([]SearchResult, 0, k)
	for _, c := range candidates {
		if h.ids.deleted[c.id] {
			continue
		}
		ext, ok := h.ids.resolve(c.id)
		if !ok {
			continue
		}
		out = append(out, SearchResult{MemoryID: ext, Distance: c.dist})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (h *HotIndex) ActiveIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ids.activeIDs()
}

func (h *HotIndex) Remove(extIDs []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ids.remove(extIDs)
}

func (h *HotIndex) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Count:            h.ids.activeCount(),
		Dimension:        h.dim,
		CompressionRatio: 2.0, // float32 -> float16
		Trained:          true,
	}
}

type hnswSnapshot struct {
	M, EfConstruction, EfSearch int
	Dim                         int
	Entry                       int
	HasNode                     bool
	Levels                      map[int]int
	Links                       map[int]map[int][]int
	Vectors                     map[int][]f16
	NextID                      int
	ToExt                       map[int]string
	Deleted                     map[int]bool
}

func (h *HotIndex) Save(indexPath, idMapPath string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.ids.mu.RLock()
	snap := hnswSnapshot{
		M: h.m, EfConstruction: h.efConstruction, EfSearch: h.efSearch,
		Dim: h.dim, Entry: h.entry, HasNode: h.hasNode,
		Levels: h.levels, Links: h.links, Vectors: h.vectors,
		NextID: h.ids.next, ToExt: h.ids.toExt, Deleted: h.ids.deleted,
	}
	h.ids.mu.RUnlock()

	return saveGob(indexPath, snap)
}

func (h *HotIndex) Load(indexPath, idMapPath string) error {
	var snap hnswSnapshot
	if err := loadGob(indexPath, &snap); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.m, h.efConstruction, h.efSearch = snap.M, snap.EfConstruction, snap.EfSearch
	h.dim, h.entry, h.hasNode = snap.Dim, snap.Entry, snap.HasNode
	h.levels, h.links, h.vectors = snap.Levels, snap.Links, snap.Vectors
	h.ids = &idMap{toExt: snap.ToExt, deleted: snap.Deleted, next: snap.NextID}
	return nil
}

func saveGob(path string, v interface{}) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadGob(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
