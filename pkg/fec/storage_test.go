package fec

import "testing"

func TestMemStorageInsertAndGrow(t *testing.T) {
	s := newMemStorage(2)
	var c0, c1, c2 Chunk
	c0[0], c1[0], c2[0] = 1, 2, 3

	if err := s.insert(&c0, 10, 0); err != nil {
		t.Fatalf("insert slot 0: %v", err)
	}
	if err := s.insert(&c1, 11, 1); err != nil {
		t.Fatalf("insert slot 1: %v", err)
	}
	// slot 2 is beyond the initial capacity of 2 and should trigger growth
	// rather than an error.
	if err := s.insert(&c2, 12, 2); err != nil {
		t.Fatalf("insert slot 2 (growth): %v", err)
	}

	if s.size() != 3 {
		t.Fatalf("size() = %d, want 3", s.size())
	}
	for i, want := range []uint32{10, 11, 12} {
		if got := s.getChunkID(i); got != want {
			t.Errorf("getChunkID(%d) = %d, want %d", i, got, want)
		}
		c, err := s.getChunk(i)
		if err != nil {
			t.Fatalf("getChunk(%d): %v", i, err)
		}
		if c[0] != byte(i+1) {
			t.Errorf("getChunk(%d)[0] = %d, want %d", i, c[0], i+1)
		}
	}
}

func TestMemStorageUnpopulatedSlot(t *testing.T) {
	s := newMemStorage(4)
	if _, err := s.getChunk(0); err == nil {
		t.Fatalf("getChunk on an unpopulated slot should error")
	}
}

func TestStorageCapacityMargin(t *testing.T) {
	if c := storageCapacity(10); c <= 10 {
		t.Errorf("storageCapacity(10) = %d, want > 10", c)
	}
	if c := storageCapacity(10); c != 10+16 {
		t.Errorf("storageCapacity(10) = %d, want %d (margin clamped to 16)", c, 10+16)
	}
	if c := storageCapacity(10000); c != 10000+256 {
		t.Errorf("storageCapacity(10000) = %d, want %d (margin clamped to 256)", c, 10000+256)
	}
}
