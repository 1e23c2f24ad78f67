// Package partial names the partial-block collaborator contract
// (SPEC_FULL.md §4.4): an oracle that may already hold some of an
// object's data chunks — e.g. transactions already sitting in a
// mempool — before any chunk has arrived over the network. Parsing,
// merkle validation and mempool reconciliation themselves are out of
// scope (spec.md §1); this package only names the operations the codec
// needs from that collaborator and drives the pre-seed loop.
package partial

import (
	"fmt"

	"blockfec/pkg/fec"
)

// Block is the oracle interface a partial-block reconstruction
// collaborator implements. It mirrors the FIBRE original's
// PartiallyDownloadedBlock contract named in spec.md §3/§4.7.
type Block interface {
	// ChunkCount returns the number of data chunks this block will have
	// once fully reconstructed. It must equal the Decoder's
	// GetChunkCount() for the two to be used together.
	ChunkCount() int
	// IsChunkAvailable reports whether chunk i is already known locally.
	IsChunkAvailable(i int) bool
	// GetChunk returns a pointer to chunk i's backing storage, for the
	// caller to fill in once it has produced the chunk's bytes.
	GetChunk(i int) *[fec.ChunkSize]byte
	// MarkChunkAvailable records that chunk i has now been filled in.
	MarkChunkAvailable(i int)
	// DoIterativeFill asks the collaborator to make further progress
	// reconstructing chunks from data it already holds (e.g. resolving
	// transactions against the mempool), reporting the index of the
	// first newly-filled chunk via firstNewIdx.
	DoIterativeFill(firstNewIdx *int) error
	// IsIterativeFillDone reports whether DoIterativeFill has nothing
	// further to contribute.
	IsIterativeFillDone() bool
	// Finalize is called once every chunk is available, to let the
	// collaborator validate/assemble its own view of the object.
	Finalize() error
}

// PreSeed feeds every chunk pb already has available into dec, before any
// network chunk arrives. This is spec.md §4.7's "indistinguishable from
// receiving those ids on the wire": for id < D, calling
// dec.ProvideMempoolChunk(sourceChunk, id) first places the decoder in the
// same observable state as if that id had come in over the wire, while
// still letting instrumentation tell the two sources apart. It returns
// the number of chunks seeded. Once every chunk is available, pb.Finalize
// is called so the collaborator can validate/assemble its own view of the
// object, per the Block contract.
func PreSeed(dec *fec.Decoder, pb Block) (int, error) {
	seeded := 0
	for i := 0; i < pb.ChunkCount(); i++ {
		if !pb.IsChunkAvailable(i) {
			continue
		}
		chunk := pb.GetChunk(i)
		if !dec.ProvideMempoolChunk(chunk[:], uint32(i)) {
			return seeded, fmt.Errorf("partial: pre-seed chunk %d rejected by decoder", i)
		}
		seeded++
	}

	for !pb.IsIterativeFillDone() {
		var firstNew int
		if err := pb.DoIterativeFill(&firstNew); err != nil {
			return seeded, fmt.Errorf("partial: iterative fill: %w", err)
		}
		for i := firstNew; i < pb.ChunkCount(); i++ {
			if !pb.IsChunkAvailable(i) || dec.HasChunk(uint32(i)) {
				continue
			}
			chunk := pb.GetChunk(i)
			if !dec.ProvideMempoolChunk(chunk[:], uint32(i)) {
				return seeded, fmt.Errorf("partial: pre-seed chunk %d rejected by decoder", i)
			}
			seeded++
		}
	}

	if allChunksAvailable(pb) {
		if err := pb.Finalize(); err != nil {
			return seeded, fmt.Errorf("partial: finalize: %w", err)
		}
	}

	return seeded, nil
}

func allChunksAvailable(pb Block) bool {
	for i := 0; i < pb.ChunkCount(); i++ {
		if !pb.IsChunkAvailable(i) {
			return false
		}
	}
	return true
}
