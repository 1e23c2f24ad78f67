package fec

import (
	"fmt"

	"blockfec/pkg/tools"
)

// chunkStorage is the decoder's backing store for raw received chunks,
// indexed by arrival slot rather than chunk id (component E, spec.md
// §4.5). Both implementations — in-memory and mmap-backed — expose the
// same four operations so the rest of the decoder never needs to know
// which one it is talking to.
type chunkStorage interface {
	insert(chunk *Chunk, chunkID uint32, slotIdx int) error
	getChunk(slotIdx int) (*Chunk, error)
	getChunkID(slotIdx int) uint32
	size() int
	close() error
}

// storageCapacity picks D+R, the number of slots reserved for a decoder
// over a D-data-chunk object: D slots for the systematic chunks plus a
// small recovery margin R for redundancy chunks the receiver accepts
// before giving up on a given id. Spec.md §3 notes decoders "typically
// only" need D + a small margin; R is capped so tiny objects don't
// allocate absurdly more than they need and huge objects don't multiply
// their footprint.
func storageCapacity(dataChunks uint32) int {
	r := uint32(tools.DivFloor(uint64(dataChunks), 10))
	if r < 16 {
		r = 16
	}
	if r > 256 {
		r = 256
	}
	return int(dataChunks) + int(r)
}

// memStorage is the in-memory chunkStorage: heap-allocated slices, freed
// when the decoder (and this storage) are garbage collected.
type memStorage struct {
	chunks []Chunk
	ids    []uint32
	filled int
}

func newMemStorage(capacity int) *memStorage {
	return &memStorage{
		chunks: make([]Chunk, capacity),
		ids:    make([]uint32, capacity),
	}
}

func (s *memStorage) insert(chunk *Chunk, chunkID uint32, slotIdx int) error {
	if slotIdx < 0 {
		return fmt.Errorf("fec: storage slot %d out of range", slotIdx)
	}
	if slotIdx >= len(s.chunks) {
		s.grow(slotIdx + 1)
	}
	s.chunks[slotIdx] = *chunk
	s.ids[slotIdx] = chunkID
	if slotIdx >= s.filled {
		s.filled = slotIdx + 1
	}
	return nil
}

func (s *memStorage) getChunk(slotIdx int) (*Chunk, error) {
	if slotIdx < 0 || slotIdx >= s.filled {
		return nil, fmt.Errorf("fec: storage slot %d not populated", slotIdx)
	}
	return &s.chunks[slotIdx], nil
}

func (s *memStorage) getChunkID(slotIdx int) uint32 {
	return s.ids[slotIdx]
}

func (s *memStorage) size() int { return s.filled }

func (s *memStorage) close() error { return nil }

// grow extends the backing slices to hold at least n slots. In-memory
// storage has no fixed capacity (unlike the mmap backend, whose file
// size is pinned at creation), so it simply reallocates.
func (s *memStorage) grow(n int) {
	chunks := make([]Chunk, n)
	copy(chunks, s.chunks)
	s.chunks = chunks
	ids := make([]uint32, n)
	copy(ids, s.ids)
	s.ids = ids
}
