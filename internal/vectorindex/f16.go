package vectorindex

import "math"

// f16 is a minimal IEEE-754 half-precision float, used to store vector
// components at half the memory of a float32 the way the reference
// FAISS indices are configured to do (astype(np.float16) before every
// add/search).
type f16 uint16

func f32Tof16(f float32) f16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp <= 0:
		return f16(sign)
	case exp >= 0x1f:
		return f16(sign | 0x7c00)
	default:
		return f16(sign | uint16(exp)<<10 | uint16(mant>>13))
	}
}

func (h f16) Float32() float32 {
	bits := uint16(h)
	sign := uint32(bits&0x8000) << 16
	exp := uint32(bits>>10) & 0x1f
	mant := uint32(bits & 0x3ff)

	var out uint32
	switch {
	case exp == 0:
		out = sign
	case exp == 0x1f:
		out = sign | 0x7f800000 | (mant << 13)
	default:
		out = sign | (exp+127-15)<<23 | (mant << 13)
	}
	return math.Float32frombits(out)
}

func toF16Vec(v []float32) []f16 {
	out := make([]f16, len(v))
	for i, x := range v {
		out[i] = f32Tof16(x)
	}
	return out
}

func fromF16Vec(v []f16) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x.Float32()
	}
	return out
}

func l2Distance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
