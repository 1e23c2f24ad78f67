package fec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
)

// maxIDSearchAttempts bounds how many random draws BuildChunk will make
// before giving up on finding an unused redundancy id for the current
// output table (spec.md §4.6, ResourceExhausted).
const maxIDSearchAttempts = 64

// EncoderTable is the encoder's output: N slots, each eventually filled
// with an encoded chunk and the chunk id it represents. IDs start at the
// zero value, which doubles as the "slot is still empty" sentinel — the
// same convention the FIBRE original uses for its fec_chunks pair (see
// DESIGN.md for the id-0 ambiguity this inherits).
type EncoderTable struct {
	Chunks []Chunk
	IDs    []uint32
}

// NewEncoderTable allocates an output table of n empty slots.
func NewEncoderTable(n int) *EncoderTable {
	return &EncoderTable{
		Chunks: make([]Chunk, n),
		IDs:    make([]uint32, n),
	}
}

// Encoder builds FEC chunks for a single object, on demand, one output
// slot at a time. NewEncoder copies the source data into the Encoder's
// own chunks; the output table is held by reference and must not be
// replaced or resized for the lifetime of the Encoder.
type Encoder struct {
	source     []Chunk
	objectSize uint64
	dataChunks uint32
	mode       CodeMode
	small      *smallCode

	table *EncoderTable

	usedIDs        map[uint32]struct{}
	nextSystematic uint32
	rng            *mrand.Rand

	// ownedCleanup, if set, is invoked by Close to release a resource
	// (e.g. a decoder's mmap scratch file) handed off via IntoEncoder.
	ownedCleanup func() error
}

// NewEncoder constructs an Encoder over a borrowed source buffer and a
// borrowed output table. source must be exactly objectSize bytes long.
func NewEncoder(source []byte, objectSize uint64, table *EncoderTable) (*Encoder, error) {
	if objectSize == 0 || objectSize > MaxObjectSize {
		return nil, ErrObjectTooLarge
	}
	if uint64(len(source)) != objectSize {
		return nil, fmt.Errorf("fec: source length %d does not match object size %d", len(source), objectSize)
	}

	dataChunks := DataChunkCount(objectSize)
	mode := ModeFor(dataChunks)

	chunks := make([]Chunk, dataChunks)
	for i := uint32(0); i < dataChunks; i++ {
		start := int(i) * ChunkSize
		end := start + ChunkSize
		if end > len(source) {
			end = len(source)
		}
		copy(chunks[i][:], source[start:end])
	}

	e := &Encoder{
		source:     chunks,
		objectSize: objectSize,
		dataChunks: dataChunks,
		mode:       mode,
		table:      table,
		usedIDs:    make(map[uint32]struct{}),
		rng:        mrand.New(mrand.NewSource(cryptoSeed())),
	}

	if mode == ModeSmall {
		sc, err := newSmallCode(dataChunks)
		if err != nil {
			return nil, err
		}
		e.small = sc
	}

	return e, nil
}

// cryptoSeed draws a 64-bit seed from OS entropy for the encoder's id
// selection PRNG (spec.md §6: "a cryptographically-reasonable 64-bit
// PRNG seeded from OS entropy"). Only id *selection* uses this PRNG; the
// fountain code's wire-format combinations use the deterministic,
// content-addressed seed in fountainSeed instead.
func cryptoSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken; a
		// fallback constant keeps id selection merely less random rather
		// than making BuildChunk unusable.
		return 0x5bd1e995
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// idLimit is the exclusive upper bound of the chunk id space for this
// encoder's mode.
func (e *Encoder) idLimit() uint32 {
	if e.mode == ModeSmall {
		return SmallCodeIDLimit
	}
	return ChunkCountMax
}

// BuildChunk fills table slot vectorIdx with an encoded chunk and a newly
// chosen chunk id, picking systematic ids in order until exhausted and
// then pseudo-random redundancy ids thereafter. It returns false without
// modifying the slot if the slot already holds an id (IDs[i] != 0) and
// overwrite is false.
func (e *Encoder) BuildChunk(vectorIdx int, overwrite bool) (bool, error) {
	if vectorIdx < 0 || vectorIdx >= len(e.table.IDs) {
		return false, fmt.Errorf("fec: build chunk: slot %d out of range [0,%d)", vectorIdx, len(e.table.IDs))
	}
	if e.table.IDs[vectorIdx] != 0 && !overwrite {
		return false, nil
	}

	id, err := e.chooseID()
	if err != nil {
		return false, err
	}

	chunk, err := e.encodeChunkForID(id)
	if err != nil {
		return false, err
	}

	e.table.Chunks[vectorIdx] = chunk
	e.table.IDs[vectorIdx] = id
	return true, nil
}

// PrefillChunks fills every still-empty slot (IDs[i] == 0) in the output
// table, returning true once all slots are filled.
func (e *Encoder) PrefillChunks() (bool, error) {
	for i := range e.table.IDs {
		if e.table.IDs[i] != 0 {
			continue
		}
		if _, err := e.BuildChunk(i, false); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Encoder) chooseID() (uint32, error) {
	if e.nextSystematic < e.dataChunks {
		id := e.nextSystematic
		e.nextSystematic++
		e.usedIDs[id] = struct{}{}
		return id, nil
	}

	limit := e.idLimit()
	span := int64(limit - e.dataChunks)
	for attempt := 0; attempt < maxIDSearchAttempts; attempt++ {
		candidate := e.dataChunks + uint32(e.rng.Int63n(span))
		if _, used := e.usedIDs[candidate]; used {
			continue
		}
		e.usedIDs[candidate] = struct{}{}
		return candidate, nil
	}
	return 0, ErrResourceExhausted
}

func (e *Encoder) encodeChunkForID(id uint32) (Chunk, error) {
	if id < e.dataChunks {
		return e.source[id], nil
	}
	if e.mode == ModeSmall {
		return e.small.encodeChunk(e.source, id)
	}
	return fountainEncodeChunk(e.source, e.dataChunks, id), nil
}

// Close releases any resource handed off to this encoder via
// Decoder.IntoEncoder. It is a no-op for encoders built with NewEncoder
// directly.
func (e *Encoder) Close() error {
	if e.ownedCleanup == nil {
		return nil
	}
	cleanup := e.ownedCleanup
	e.ownedCleanup = nil
	return cleanup()
}
