package vectorindex

// pqCodec splits a vector into m subvectors and quantizes each against
// its own codebook of 2^nbits centroids, matching FAISS's PQ(m, nbits)
// configuration. nbits=8 throughout this package, so each codebook has
// 256 entries and a code fits in one byte per subvector.
type pqCodec struct {
	M         int
	NBits     int
	SubDim    int
	Codebooks [][][]float32 // [subvector][centroid] -> vector
	trained   bool
}

func newPQCodec(m, nbits int) *pqCodec {
	return &pqCodec{M: m, NBits: nbits}
}

func (p *pqCodec) centroidsPerSub() int {
	return 1 << p.NBits
}

// Train builds one codebook per subvector from sample vectors.
func (p *pqCodec) Train(vectors [][]float32) {
	if len(vectors) == 0 {
		return
	}
	dim := len(vectors[0])
	p.SubDim = dim / p.M
	if p.SubDim == 0 {
		p.SubDim = 1
	}

	p.Codebooks = make([][][]float32, p.M)
	k := p.centroidsPerSub()
	for sub := 0; sub < p.M; sub++ {
		subVectors := make([][]float32, len(vectors))
		for i, v := range vectors {
			subVectors[i] = p.subvector(v, sub)
		}
		p.Codebooks[sub] = kmeans(subVectors, k, 10)
	}
	p.trained = true
}

func (p *pqCodec) subvector(v []float32, sub int) []float32 {
	start := sub * p.SubDim
	end := start + p.SubDim
	if end > len(v) {
		end = len(v)
	}
	if start >= len(v) {
		return make([]float32, p.SubDim)
	}
	out := make([]float32, p.SubDim)
	copy(out, v[start:end])
	return out
}

// Encode quantizes v into one byte code per subvector.
func (p *pqCodec) Encode(v []float32) []byte {
	code := make([]byte, p.M)
	for sub := 0; sub < p.M; sub++ {
		if len(p.Codebooks[sub]) == 0 {
			continue
		}
		c, _ := nearestCentroid(p.subvector(v, sub), p.Codebooks[sub])
		code[sub] = byte(c)
	}
	return code
}

// Distance computes an asymmetric approximate L2 distance between a
// raw query vector and a stored code, summing per-subvector centroid
// distance rather than decoding the full vector.
func (p *pqCodec) Distance(query []float32, code []byte) float32 {
	var sum float32
	for sub := 0; sub < p.M; sub++ {
		if int(code[sub]) >= len(p.Codebooks[sub]) {
			continue
		}
		sum += l2Distance(p.subvector(query, sub), p.Codebooks[sub][code[sub]])
	}
	return sum
}
