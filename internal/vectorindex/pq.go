package vectorindex

import (
	"os"
	"sync"
)

const coldTrainThreshold = 256 // centroids per subvector codebook (2^8)

// ColdIndex is pure PQ (m=16, nbits=8): no coarse quantizer, maximum
// compression, used for archival-tier memories where search latency
// matters least. Training is deferred the same way WarmIndex defers
// its coarse quantizer: buffer raw vectors until there are enough to
// fit a meaningful codebook.
type ColdIndex struct {
	mu sync.RWMutex

	codec   *pqCodec
	trained bool

	vectors map[int][]float32
	codes   map[int][]byte
	dim     int
	ids     *idMap

	pending [][]float32
	pendIDs []int
}

func NewColdIndex() *ColdIndex {
	return &ColdIndex{
		codec:   newPQCodec(16, 8),
		vectors: make(map[int][]float32),
		codes:   make(map[int][]byte),
		ids:     newIDMap(),
	}
}

func (c *ColdIndex) Add(extIDs []string, vecs [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ext := range extIDs {
		v := vecs[i]
		if c.dim == 0 {
			c.dim = len(v)
		}
		internal := c.ids.assign(ext)
		c.vectors[internal] = v

		if !c.trained {
			c.pending = append(c.pending, v)
			c.pendIDs = append(c.pendIDs, internal)
			if len(c.pending) >= coldTrainThreshold {
				c.train()
			}
			continue
		}
		c.codes[internal] = c.codec.Encode(v)
	}
	return nil
}

func (c *ColdIndex) train() {
	c.codec.Train(c.pending)
	c.trained = true
	for i, internal := range c.pendIDs {
		c.codes[internal] = c.codec.Encode(c.pending[i])
	}
	c.pending = nil
	c.pendIDs = nil
}

func (c *ColdIndex) Search(query []float32, k int) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []distID
	if c.trained {
		for internal, code := range c.codes {
			if c.ids.deleted[internal] {
				continue
			}
			results = append(results, distID{id: internal, dist: c.codec.Distance(query, code)})
		}
	} else {
		for i, internal := range c.pendIDs {
			if c.ids.deleted[internal] {
				continue
			}
			results = append(results, distID{id: internal, dist: l2Distance(query, c.pending[i])})
		}
	}

	sortDistID(results)
	if len(results) > k {
		results = results[:k]
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		ext, ok := c.ids.resolve(r.id)
		if !ok {
			continue
		}
		out = append(out, SearchResult{MemoryID: ext, Distance: r.dist})
	}
	return out, nil
}

func (c *ColdIndex) ActiveIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids.activeIDs()
}

func (c *ColdIndex) Remove(extIDs []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids.remove(extIDs)
}

func (c *ColdIndex) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Count:            c.ids.activeCount(),
		Dimension:        c.dim,
		CompressionRatio: float64(c.dim*4) / float64(c.codec.M),
		Trained:          c.trained,
	}
}

type coldSnapshot struct {
	Codec   *pqCodec
	Trained bool
	Vectors map[int][]float32
	Codes   map[int][]byte
	Dim     int
	NextID  int
	ToExt   map[int]string
	Deleted map[int]bool
	Pending [][]float32
	PendIDs []int
}

func (c *ColdIndex) Save(indexPath, idMapPath string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := coldSnapshot{
		Codec: c.codec, Trained: c.trained, Vectors: c.vectors, Codes: c.codes, Dim: c.dim,
		NextID: c.ids.next, ToExt: c.ids.toExt, Deleted: c.ids.deleted,
		Pending: c.pending, PendIDs: c.pendIDs,
	}
	return saveGob(indexPath, snap)
}

func (c *ColdIndex) Load(indexPath, idMapPath string) error {
	var snap coldSnapshot
	if err := loadGob(indexPath, &snap); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codec, c.trained, c.vectors, c.codes, c.dim = snap.Codec, snap.Trained, snap.Vectors, snap.Codes, snap.Dim
	c.ids = &idMap{toExt: snap.ToExt, deleted: snap.Deleted, next: snap.NextID}
	c.pending, c.pendIDs = snap.Pending, snap.PendIDs
	return nil
}
