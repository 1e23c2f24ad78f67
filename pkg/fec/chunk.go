// Package fec implements the hybrid forward-error-correction codec used to
// turn a known-length byte object into an indefinite stream of fixed-size,
// self-identifying chunks, and to reconstruct the object from any
// sufficient subset of those chunks.
package fec

import (
	"errors"

	"blockfec/pkg/tools"
)

// ChunkSize is the fixed size, in bytes, of every chunk on the wire. It is
// 16-byte aligned so SIMD fetches over chunk data stay aligned.
const ChunkSize = 1152

// KSmall is the largest number of data chunks handled by the small
// systematic code (component B). Objects needing more data chunks than
// this use the fountain code (component C) instead.
const KSmall = 27

// ChunkCountMax bounds the chunk id space: ids run in [0, ChunkCountMax).
const ChunkCountMax = 1 << 24

// SmallCodeIDLimit is the exclusive upper bound on chunk ids in small-code
// mode: the reedsolomon library this code is built on supports at most 256
// total shards, so redundancy ids for small objects live in [D, 256).
const SmallCodeIDLimit = 256

// MaxObjectSize bounds the size of an object this codec will encode or
// decode. See SPEC_FULL.md §4.6 for why 2 GiB was chosen.
const MaxObjectSize = 1 << 31

var (
	// ErrInvalidChunk is returned when a chunk id or payload length fails
	// validation (spec.md §7, InvalidInput).
	ErrInvalidChunk = errors.New("fec: invalid chunk id or length")
	// ErrObjectTooLarge is returned at decoder/encoder construction when
	// the object size exceeds MaxObjectSize, or is zero.
	ErrObjectTooLarge = errors.New("fec: object size is zero or exceeds MaxObjectSize")
	// ErrNotReady is returned by operations that require a completed
	// decode when the decoder has not yet collected enough chunks.
	ErrNotReady = errors.New("fec: decode not ready")
	// ErrResourceExhausted is returned by the encoder when it cannot find
	// a fresh, unused chunk id within its retry budget.
	ErrResourceExhausted = errors.New("fec: exhausted id search budget")
	// ErrDecoderMoved is returned by IntoEncoder when the decoder's
	// storage has already been handed off by an earlier IntoEncoder call.
	ErrDecoderMoved = errors.New("fec: decoder storage already moved to an encoder")
)

// Chunk is a fixed-size payload as it is transmitted on the wire, after the
// 4-byte little-endian chunk id (spec.md §6, wire format).
type Chunk [ChunkSize]byte

// CodeMode selects which of the two codes is in effect for a given object.
// It is derived entirely from D (the data chunk count); it is never
// configured directly, so encoder and decoder always agree.
type CodeMode int

const (
	// ModeSmall is the systematic GF(2^8) block code, used when D <= KSmall.
	ModeSmall CodeMode = iota
	// ModeFountain is the rateless band-matrix code, used when D > KSmall.
	ModeFountain
)

func (m CodeMode) String() string {
	if m == ModeSmall {
		return "small"
	}
	return "fountain"
}

// DataChunkCount returns D, the number of systematic data chunks for an
// object of the given byte size: ceil(objectSize / ChunkSize).
func DataChunkCount(objectSize uint64) uint32 {
	return uint32(tools.DivCeil(objectSize, ChunkSize))
}

// ModeFor returns the code mode that both encoder and decoder must use for
// an object with the given number of data chunks.
func ModeFor(dataChunks uint32) CodeMode {
	if dataChunks <= KSmall {
		return ModeSmall
	}
	return ModeFountain
}

// validateChunkID checks a chunk id against the id-space rules for the
// given mode, per spec.md §4.2/§4.3/§7.
func validateChunkID(mode CodeMode, id uint32) error {
	if id >= ChunkCountMax {
		return ErrInvalidChunk
	}
	if mode == ModeSmall && id >= SmallCodeIDLimit {
		return ErrInvalidChunk
	}
	return nil
}
