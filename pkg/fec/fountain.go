package fec

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/zeebo/blake3"
)

// fountainSeed derives the 64-bit PRNG seed for a given (D, chunk_id) pair.
// This is the wire contract spec.md §4.3 calls out: encoder and decoder
// MUST derive identical pseudo-random subsets from identical inputs with
// no shared mutable state. BLAKE3 (wired from bureau-foundation-bureau's
// dependency set) gives a fast, well-specified hash for this rather than
// a hand-rolled mixing function.
func fountainSeed(dataChunks uint32, chunkID uint32) uint64 {
	var in [8]byte
	binary.LittleEndian.PutUint32(in[0:4], dataChunks)
	binary.LittleEndian.PutUint32(in[4:8], chunkID)
	sum := blake3.Sum256(in[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// fountainIndices implements the "dense-band generator"
// from spec.md §4.3: a redundancy chunk is the XOR of a pseudo-random
// subset of source chunks. The subset size (degree) is drawn from a small
// range so each redundancy chunk is sparse (LDPC-style) rather than
// combining every source chunk, which keeps both encode and the online
// Gaussian elimination in the decoder cheap. The exact distribution is an
// implementation choice spec.md §9 leaves open; see DESIGN.md.
func fountainIndices(dataChunks uint32, chunkID uint32) []uint32 {
	seed := fountainSeed(dataChunks, chunkID)
	r := rand.New(rand.NewSource(int64(seed)))

	maxDegree := int(dataChunks)
	if maxDegree > 8 {
		maxDegree = 8
	}
	degree := 1 + r.Intn(maxDegree)

	picked := make(map[uint32]struct{}, degree)
	indices := make([]uint32, 0, degree)
	for len(indices) < degree {
		idx := uint32(r.Intn(int(dataChunks)))
		if _, ok := picked[idx]; ok {
			continue
		}
		picked[idx] = struct{}{}
		indices = append(indices, idx)
	}
	return indices
}

// fountainEncodeChunk produces the bytes for a redundancy chunk id >= D by
// XORing together the source chunks selected by fountainIndices. For
// id < D the caller should use the systematic pass-through instead; this
// function does not special-case it.
func fountainEncodeChunk(source []Chunk, dataChunks uint32, chunkID uint32) Chunk {
	var out Chunk
	for _, idx := range fountainIndices(dataChunks, chunkID) {
		xorChunkInto(&out, &source[idx])
	}
	return out
}

func xorChunkInto(dst *Chunk, src *Chunk) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// fountainRow is one equation in the decoder's online Gauss-Jordan solve:
// mask identifies which source-chunk unknowns are combined, data is the
// running XOR of those unknowns' (eventual) values.
type fountainRow struct {
	mask bitset
	data Chunk
}

// fountainSolver accumulates received chunks as linear (XOR) equations
// over the D source-chunk unknowns and maintains them in fully reduced
// row-echelon form as they arrive, so that once D independent equations
// have been seen every row's mask is a singleton bit and decode is a
// matter of reading off each pivot's data — no separate elimination pass
// is needed at the end. This mirrors the peeling+substitution+gaussian
// elimination pipeline spec.md §4.7 describes, collapsed into a single
// incremental step since chunk counts here are modest enough that
// eager elimination is cheap.
type fountainSolver struct {
	dataChunks uint32
	pivots     map[uint32]*fountainRow
}

func newFountainSolver(dataChunks uint32) *fountainSolver {
	return &fountainSolver{
		dataChunks: dataChunks,
		pivots:     make(map[uint32]*fountainRow),
	}
}

func (s *fountainSolver) solvedCount() int {
	return len(s.pivots)
}

func (s *fountainSolver) determined() bool {
	return len(s.pivots) >= int(s.dataChunks)
}

// addEquation folds a newly received chunk into the solver. indices is the
// singleton {chunkID} for a systematic chunk id < D; an empty indices
// yields a zero row, which is discarded.
func (s *fountainSolver) addEquation(indices []uint32, data Chunk) {
	mask := newBitset(s.dataChunks)
	for _, idx := range indices {
		mask.set(idx)
	}

	s.reduceAgainstPivots(mask, &data)

	col := mask.firstSetBit()
	if col < 0 {
		return // zero row: redundant equation, no new information
	}
	s.insertPivot(uint32(col), mask, data)
}

// reduceAgainstPivots eliminates every column that already has a pivot row
// out of mask/data, in whatever order they appear — not just the lowest
// set bit first. A single pass over the lowest set bit is not enough: the
// lowest free column (no pivot yet) can still coexist with a higher column
// that already has a pivot (e.g. a degree-2 equation over {2,5} arriving
// after column 5 is already pivoted, with column 2 still free), so this
// loops until no set bit in mask names an existing pivot column.
func (s *fountainSolver) reduceAgainstPivots(mask bitset, data *Chunk) {
	for {
		eliminated := false
		for col, row := range s.pivots {
			if mask.test(col) {
				mask.xorInto(row.mask)
				xorChunkInto(data, &row.data)
				eliminated = true
			}
		}
		if !eliminated {
			return
		}
	}
}

// insertPivot stores (mask, data) as the pivot row for column col, and
// eliminates col from every existing pivot row that still references it
// so the whole system stays in reduced row-echelon form.
func (s *fountainSolver) insertPivot(col uint32, mask bitset, data Chunk) {
	for _, row := range s.pivots {
		if row.mask.test(col) {
			row.mask.xorInto(mask)
			xorChunkInto(&row.data, &data)
		}
	}
	s.pivots[col] = &fountainRow{mask: mask, data: data}
}

// reconstruct returns the D source chunks once determined() is true. Each
// pivot row's mask must by now be a singleton at its own column — every
// column has a pivot, and reduceAgainstPivots keeps every row fully
// reduced against every other pivot as it is inserted, so nothing but the
// row's own column can remain set. A mask with more than one bit set
// would mean decode ran ahead of a still-underdetermined system.
func (s *fountainSolver) reconstruct() ([]Chunk, error) {
	if !s.determined() {
		return nil, ErrNotReady
	}
	out := make([]Chunk, s.dataChunks)
	for col, row := range s.pivots {
		if col >= s.dataChunks {
			continue
		}
		if row.mask.firstSetBit() != int(col) || row.mask.popcount() != 1 {
			return nil, fmt.Errorf("fec: fountain solve inconsistent at column %d", col)
		}
		out[col] = row.data
	}
	return out, nil
}
