package vectorindex

import (
	"os"
	"sync"
)

// WarmIndex is IVF-PQ: an inverted file keyed by a coarse k-means
// quantizer (nlist=100), with PQ codes (m=8, nbits=8) of the raw
// vectors, not of residuals, inside each list. The coarse quantizer trains lazily on the first Add call
// once enough vectors have accumulated (ntotal >= nlist), matching
// faiss_integration.py's "train index if needed" gate.
type WarmIndex struct {
	mu sync.RWMutex

	nlist     int
	centroids [][]float32
	trained   bool
	codec     *pqCodec

	lists   map[int][]int // centroid -> internal ids assigned to it
	vectors map[int][]float32
	codes   map[int][]byte
	dim     int
	ids     *idMap

	pending [][]float32 // buffered raw vectors until training kicks in
	pendIDs []int
}

func NewWarmIndex() *WarmIndex {
	return &WarmIndex{
		nlist: 100,
		codec: newPQCodec(8, 8),
		lists: make(map[int][]int),
		vectors: make(map[int][]float32),
		codes:   make(map[int][]byte),
		ids:     newIDMap(),
	}
}

func (w *WarmIndex) Add(extIDs []string, vecs [][]float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, ext := range extIDs {
		v := vecs[i]
		if w.dim == 0 {
			w.dim = len(v)
		}
		internal := w.ids.assign(ext)
		w.vectors[internal] = v

		if !w.trained {
			w.pending = append(w.pending, v)
			w.pendIDs = append(w.pendIDs, internal)
			if len(w.pending) >= w.nlist {
				w.train()
			}
			continue
		}
		w.assignToList(internal, v)
	}
	return nil
}

func (w *WarmIndex) train() {
	w.centroids = kmeans(w.pending, w.nlist, 10)
	w.codec.Train(w.pending)
	w.trained = true

	for i, internal := range w.pendIDs {
		w.assignToList(internal, w.pending[i])
	}
	w.pending = nil
	w.pendIDs = nil
}

func (w *WarmIndex) assignToList(internal int, v []float32) {
	centroid, _ := nearestCentroid(v, w.centroids)
	w.lists[centroid] = append(w.lists[centroid], internal)
	w.codes[internal] = w.codec.Encode(v)
}

func (w *WarmIndex) Search(query []float32, k int) ([]SearchResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var candidates []int
	if w.trained {
		// Probe the nearest list only (nprobe=1); adequate for a
		// single-user, modest-scale store.
		centroid, _ := nearestCentroid(query, w.centroids)
		candidates = w.lists[centroid]
	} else {
		candidates = w.pendIDs
	}

	results := make([]distID, 0, len(candidates))
	for _, internal := range candidates {
		if w.ids.deleted[internal] {
			continue
		}
		var d float32
		if w.trained {
			d = w.codec.Distance(query, w.codes[internal])
		} else {
			d = l2Distance(query, w.vectors[internal])
		}
		results = append(results, distID{id: internal, dist: d})
	}

	sortDistID(results)
	if len(results) > k {
		results = results[:k]
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		ext, ok := w.ids.resolve(r.id)
		if !ok {
			continue
		}
		out = append(out, SearchResult{MemoryID: ext, Distance: r.dist})
	}
	return out, nil
}

func (w *WarmIndex) ActiveIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ids.activeIDs()
}

func (w *WarmIndex) Remove(extIDs []string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ids.remove(extIDs)
}

func (w *WarmIndex) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Count:            w.ids.activeCount(),
		Dimension:        w.dim,
		CompressionRatio: float64(w.dim*4) / float64(w.codec.M),
		Trained:          w.trained,
	}
}

type warmSnapshot struct {
	Nlist     int
	Centroids [][]float32
	Trained   bool
	Codec     *pqCodec
	Lists     map[int][]int
	Vectors   map[int][]float32
	Codes     map[int][]byte
	Dim       int
	NextID    int
	ToExt     map[int]string
	Deleted   map[int]bool
	Pending   [][]float32
	PendIDs   []int
}

func (w *WarmIndex) Save(indexPath, idMapPath string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := warmSnapshot{
		Nlist: w.nlist, Centroids: w.centroids, Trained: w.trained, Codec: w.codec,
		Lists: w.lists, Vectors: w.vectors, Codes: w.codes, Dim: w.dim,
		NextID: w.ids.next, ToExt: w.ids.toExt, Deleted: w.ids.deleted,
		Pending: w.pending, PendIDs: w.pendIDs,
	}
	return saveGob(indexPath, snap)
}

func (w *WarmIndex) Load(indexPath, idMapPath string) error {
	var snap warmSnapshot
	if err := loadGob(indexPath, &snap); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nlist, w.centroids, w.trained, w.codec = snap.Nlist, snap.Centroids, snap.Trained, snap.Codec
	w.lists, w.vectors, w.codes, w.dim = snap.Lists, snap.Vectors, snap.Codes, snap.Dim
	w.ids = &idMap{toExt: snap.ToExt, deleted: snap.Deleted, next: snap.NextID}
	w.pending, w.pendIDs = snap.Pending, snap.PendIDs
	return nil
}

func sortDistID(d []distID) {
	// Insertion sort is fine: candidate lists here are bounded to one
	// IVF list's contents, never the full index.
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j].dist < d[j-1].dist; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}
