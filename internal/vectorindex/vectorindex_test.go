package vectorindex

import (
	"math"
	"testing"
)

func TestF16RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, 3.14159, -100.25} {
		got := f32Tof16(v).Float32()
		if math.Abs(float64(got-v)) > 0.01 {
			t.Errorf("f16 roundtrip for %v: got %v", v, got)
		}
	}
}

func vec(vals ...float32) []float32 { return vals }

func TestHotIndexAddSearch(t *testing.T) {
	h := NewHotIndex()
	ids := []string{"a", "b", "c"}
	vecs := [][]float32{
		vec(1, 0, 0),
		vec(0, 1, 0),
		vec(0.9, 0.1, 0),
	}
	if err := h.Add(ids, vecs); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	results, err := h.Search(vec(1, 0, 0), 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].MemoryID != "a" {
		t.Errorf("expected nearest to be 'a', got %s", results[0].MemoryID)
	}
}

func TestHotIndexRemove(t *testing.T) {
	h := NewHotIndex()
	h.Add([]string{"x"}, [][]float32{vec(1, 1, 1)})
	if n := h.Remove([]string{"x"}); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	results, _ := h.Search(vec(1, 1, 1), 5)
	for _, r := range results {
		if r.MemoryID == "x" {
			t.Error("removed id still returned by search")
		}
	}
}

func TestWarmIndexTrainsLazily(t *testing.T) {
	w := NewWarmIndex()
	w.nlist = 4 // shrink for the test

	ids := make([]string, 10)
	vecs := make([][]float32, 10)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		vecs[i] = vec(float32(i), float32(i), float32(i))
	}
	if err := w.Add(ids, vecs); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !w.trained {
		t.Error("expected warm index to train once nlist reached")
	}

	results, err := w.Search(vec(9, 9, 9), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a result")
	}
}

func TestStoreMultiTierSearch(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Add(TierHot, []string{"h1"}, [][]float32{vec(1, 0)})
	s.Add(TierCold, []string{"c1"}, [][]float32{vec(0, 1)})

	results, err := s.MultiTierSearch(vec(1, 0), 5, nil)
	if err != nil {
		t.Fatalf("MultiTierSearch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results across tiers, got %d", len(results))
	}
	if results[0].MemoryID != "h1" {
		t.Errorf("expected h1 to rank first, got %s", results[0].MemoryID)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	s.Add(TierHot, []string{"a"}, [][]float32{vec(1, 2, 3)})
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	reloaded := NewStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	results, err := reloaded.Search(TierHot, vec(1, 2, 3), 1)
	if err != nil {
		t.Fatalf("Search after reload failed: %v", err)
	}
	if len(results) != 1 || results[0].MemoryID != "a" {
		t.Errorf("expected reloaded index to find 'a', got %+v", results)
	}
}
