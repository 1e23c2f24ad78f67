package fec

import (
	"fmt"

	rs "github.com/klauspost/reedsolomon"
)

// smallCode is the systematic GF(2^8) block code for objects with D <=
// KSmall data chunks (spec.md §4.2). It is built directly on
// klauspost/reedsolomon rather than a hand-rolled Vandermonde/Cauchy
// matrix: shard index i IS chunk id i, data shards are ids [0, D) and
// parity shards are ids [D, 256) — the library's systematic encoding
// already gives us the "redundancy id = MDS combination of all D data
// chunks" property spec.md asks for, for free.
//
// Grounded on kunal-geeks-decentfs/internal/storage/erasure.go's
// EncodeToShards/ReconstructFromShards shape (same library, same
// nil-means-missing reconstruct convention), adapted to a fixed D-chunk
// source and a fixed 256-total-shard id space instead of a caller-chosen
// parity count.
type smallCode struct {
	dataChunks uint32
	enc        rs.Encoder
}

func newSmallCode(dataChunks uint32) (*smallCode, error) {
	if dataChunks == 0 || dataChunks > KSmall {
		return nil, fmt.Errorf("fec: small code requires 1 <= D <= %d, got %d", KSmall, dataChunks)
	}
	parity := SmallCodeIDLimit - int(dataChunks)
	enc, err := rs.New(int(dataChunks), parity)
	if err != nil {
		return nil, fmt.Errorf("fec: create reedsolomon encoder: %w", err)
	}
	return &smallCode{dataChunks: dataChunks, enc: enc}, nil
}

// encodeChunk produces the bytes for chunk id (either a verbatim source
// chunk for id < D, or the MDS parity combination for id in [D, 256)).
// source must hold exactly dataChunks chunks, zero-padded.
func (c *smallCode) encodeChunk(source []Chunk, id uint32) (Chunk, error) {
	if id >= SmallCodeIDLimit {
		return Chunk{}, ErrInvalidChunk
	}
	shards := c.shardsFromSource(source)
	if err := c.enc.Encode(shards); err != nil {
		return Chunk{}, fmt.Errorf("fec: small code encode: %w", err)
	}
	var out Chunk
	copy(out[:], shards[id])
	return out, nil
}

func (c *smallCode) shardsFromSource(source []Chunk) [][]byte {
	shards := make([][]byte, SmallCodeIDLimit)
	for i := uint32(0); i < c.dataChunks; i++ {
		shards[i] = append([]byte(nil), source[i][:]...)
	}
	for i := int(c.dataChunks); i < SmallCodeIDLimit; i++ {
		shards[i] = make([]byte, ChunkSize)
	}
	return shards
}

// reconstruct recovers the D source chunks given a sparse map of received
// chunk id -> bytes (at least D distinct ids must be present). Returns
// ErrNotReady if fewer than D ids are present.
func (c *smallCode) reconstruct(received map[uint32]*Chunk) ([]Chunk, error) {
	if len(received) < int(c.dataChunks) {
		return nil, ErrNotReady
	}
	shards := make([][]byte, SmallCodeIDLimit)
	present := 0
	for id, chunk := range received {
		if id >= SmallCodeIDLimit {
			continue
		}
		shards[id] = chunk[:]
		present++
	}
	if present < int(c.dataChunks) {
		return nil, ErrNotReady
	}
	if err := c.enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("fec: small code reconstruct: %w", err)
	}
	out := make([]Chunk, c.dataChunks)
	for i := uint32(0); i < c.dataChunks; i++ {
		if shards[i] == nil {
			return nil, fmt.Errorf("fec: small code reconstruct: shard %d still missing", i)
		}
		copy(out[i][:], shards[i])
	}
	return out, nil
}
