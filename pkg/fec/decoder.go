package fec

import (
	"fmt"
	"log"

	"blockfec/pkg/objid"
)

// MemoryUsageMode selects the decoder storage backend (component E).
type MemoryUsageMode int

const (
	// UseMemory keeps all chunk bytes and ids in heap slices.
	UseMemory MemoryUsageMode = iota
	// UseMmap backs the decoder with a memory-mapped scratch file.
	UseMmap
)

// Instrumentation is an optional sink for per-chunk counters, replacing
// the FIBRE original's three size_t* out-parameters (spec.md §9 design
// note) with a real Go interface. A nil Instrumentation is treated as a
// no-op.
type Instrumentation interface {
	OnChunkConsumed()
	OnChunkFromMempool()
	OnNonFECChunk()
}

type noopInstrumentation struct{}

func (noopInstrumentation) OnChunkConsumed()    {}
func (noopInstrumentation) OnChunkFromMempool() {}
func (noopInstrumentation) OnNonFECChunk()      {}

type decoderState int

const (
	stateCollecting decoderState = iota
	stateSolving
	stateReady
)

// Decoder accepts chunks for a single object of known size until it has
// enough to reconstruct the original bytes (component G, spec.md §4.7).
// It is not safe for concurrent use: callers must serialize access to a
// single Decoder from one goroutine at a time (spec.md §5).
type Decoder struct {
	objectSize uint64
	dataChunks uint32
	mode       CodeMode

	storage chunkStorage
	tracker *chunkTracker
	instr   Instrumentation

	small    *smallCode
	fountain *fountainSolver

	idToSlot    map[uint32]int
	nextSlot    int
	chunksRecvd uint32

	state          decoderState
	decodedChunks  []Chunk
	decodeAttempts int

	moved bool
}

// NewDecoder constructs a Decoder for an object of the given size. For
// UseMmap, mmapDir selects the directory the scratch file is created in
// (os.TempDir() if empty) and objectID names it. instr may be nil.
func NewDecoder(objectSize uint64, memMode MemoryUsageMode, objectID objid.ID, mmapDir string, instr Instrumentation) (*Decoder, error) {
	if objectSize == 0 || objectSize > MaxObjectSize {
		return nil, ErrObjectTooLarge
	}
	if instr == nil {
		instr = noopInstrumentation{}
	}

	dataChunks := DataChunkCount(objectSize)
	mode := ModeFor(dataChunks)
	capacity := storageCapacity(dataChunks)

	var storage chunkStorage
	switch memMode {
	case UseMemory:
		storage = newMemStorage(capacity)
	case UseMmap:
		ms, err := newMmapStorage(mmapDir, objectID.String(), capacity)
		if err != nil {
			return nil, fmt.Errorf("fec: mmap storage failure: %w", err)
		}
		storage = ms
	default:
		return nil, fmt.Errorf("fec: unknown memory usage mode %d", memMode)
	}

	d := &Decoder{
		objectSize: objectSize,
		dataChunks: dataChunks,
		mode:       mode,
		storage:    storage,
		tracker:    newChunkTracker(dataChunks),
		instr:      instr,
		idToSlot:   make(map[uint32]int, capacity),
	}

	if mode == ModeSmall {
		sc, err := newSmallCode(dataChunks)
		if err != nil {
			storage.close()
			return nil, err
		}
		d.small = sc
	} else {
		d.fountain = newFountainSolver(dataChunks)
	}

	return d, nil
}

// ProvideChunk is the central decoder operation: it deduplicates, stores,
// and folds chunk into whichever code is active, advancing the state
// machine as chunks arrive. It returns false only for hard-invalid input
// (wrong length, id out of range for the active mode); everything else —
// including duplicates — is accepted.
func (d *Decoder) ProvideChunk(chunk []byte, chunkID uint32) bool {
	return d.provideChunk(chunk, chunkID, false)
}

// ProvideMempoolChunk is ProvideChunk for a chunk whose bytes were sourced
// from a local partial block (spec.md §4.7/§4.8) rather than the wire, so
// it is accounted against OnChunkFromMempool instead of OnChunkConsumed.
// Everything else about the contract — dedup, storage, code folding — is
// identical; the driver in pkg/partial calls this, not ProvideChunk.
func (d *Decoder) ProvideMempoolChunk(chunk []byte, chunkID uint32) bool {
	return d.provideChunk(chunk, chunkID, true)
}

func (d *Decoder) provideChunk(chunk []byte, chunkID uint32, fromMempool bool) bool {
	if d.moved {
		return false
	}
	if len(chunk) != ChunkSize {
		d.instr.OnNonFECChunk()
		return false
	}
	if err := validateChunkID(d.mode, chunkID); err != nil {
		d.instr.OnNonFECChunk()
		return false
	}

	if d.tracker.checkPresentAndMark(chunkID) {
		return true
	}

	var c Chunk
	copy(c[:], chunk)

	slot := d.nextSlot
	if err := d.storage.insert(&c, chunkID, slot); err != nil {
		log.Printf("fec: decoder storage full at slot %d (chunk id %d): %v", slot, chunkID, err)
		return false
	}
	d.idToSlot[chunkID] = slot
	d.nextSlot++

	if d.mode == ModeFountain {
		var indices []uint32
		if chunkID < d.dataChunks {
			indices = []uint32{chunkID}
		} else {
			indices = fountainIndices(d.dataChunks, chunkID)
		}
		d.fountain.addEquation(indices, c)
	}

	d.chunksRecvd++
	if fromMempool {
		d.instr.OnChunkFromMempool()
	} else {
		d.instr.OnChunkConsumed()
	}

	// A failed solve is not memoized: DecodeReady leaves the decoder in
	// Collecting and tries again on its next call. A decoder still marked
	// Solving is put back to Collecting so the next attempt sees this chunk.
	if d.state == stateSolving {
		d.state = stateCollecting
	}

	return true
}

// HasChunk reports whether chunkID has already been seen, without
// marking it (a pure tracker query).
func (d *Decoder) HasChunk(chunkID uint32) bool {
	return d.tracker.checkPresent(chunkID)
}

// DecodeReady reports whether the object has been fully reconstructed.
// It is lazy: the first call made once chunksRecvd >= dataChunks
// performs the (potentially heavy) solve and memoizes the result; once
// true it stays true. A failed attempt (fountain mode, not yet
// independent enough) returns the decoder to Collecting without
// consuming chunksRecvd.
func (d *Decoder) DecodeReady() bool {
	if d.state == stateReady {
		return true
	}
	if d.chunksRecvd < d.dataChunks {
		return false
	}

	d.state = stateSolving
	d.decodeAttempts++

	var decoded []Chunk
	var err error
	switch d.mode {
	case ModeSmall:
		decoded, err = d.small.reconstruct(d.smallReceivedMap())
	case ModeFountain:
		decoded, err = d.fountain.reconstruct()
	}
	if err != nil {
		d.state = stateCollecting
		return false
	}

	d.decodedChunks = decoded
	d.state = stateReady
	return true
}

func (d *Decoder) smallReceivedMap() map[uint32]*Chunk {
	out := make(map[uint32]*Chunk, len(d.idToSlot))
	for id, slot := range d.idToSlot {
		c, err := d.storage.getChunk(slot)
		if err != nil {
			continue
		}
		out[id] = c
	}
	return out
}

// GetDataPtr returns the reconstructed source chunk for chunkID (which
// must be < GetChunkCount()). The returned pointer is only valid until
// the next mutating call on the decoder; callers needing to retain the
// data must copy it.
func (d *Decoder) GetDataPtr(chunkID uint32) (*Chunk, error) {
	if chunkID >= d.dataChunks {
		return nil, ErrInvalidChunk
	}
	if d.state != stateReady {
		return nil, ErrNotReady
	}
	return &d.decodedChunks[chunkID], nil
}

// GetDecodedData returns the reconstructed object bytes, truncated to
// the configured object size.
func (d *Decoder) GetDecodedData() ([]byte, error) {
	if d.state != stateReady {
		return nil, ErrNotReady
	}
	out := make([]byte, d.objectSize)
	for i := uint32(0); i < d.dataChunks; i++ {
		start := uint64(i) * ChunkSize
		end := start + ChunkSize
		if end > d.objectSize {
			end = d.objectSize
		}
		n := end - start
		copy(out[start:end], d.decodedChunks[i][:n])
	}
	return out, nil
}

// GetChunkCount returns D, the number of systematic data chunks.
func (d *Decoder) GetChunkCount() uint32 { return d.dataChunks }

// GetChunksRcvd returns the number of distinct chunk ids accepted so far.
func (d *Decoder) GetChunksRcvd() uint32 { return d.chunksRecvd }

// Mode reports which code is active for this decoder's object size.
func (d *Decoder) Mode() CodeMode { return d.mode }

// Close releases the decoder's storage (unlinking the mmap scratch file
// if this decoder still owns it). It is safe to call more than once.
func (d *Decoder) Close() error {
	if d.storage == nil {
		return nil
	}
	err := d.storage.close()
	d.storage = nil
	return err
}

// IntoEncoder consumes a fully-decoded Decoder and returns an Encoder
// seeded with the reconstructed object bytes, transferring ownership of
// any mmap scratch file to the new Encoder (spec.md §9, "move-from-
// decoder-to-encoder"). d must not be used after this call succeeds.
func (d *Decoder) IntoEncoder(table *EncoderTable) (*Encoder, error) {
	if d.moved {
		return nil, ErrDecoderMoved
	}
	if !d.DecodeReady() {
		return nil, ErrNotReady
	}

	data, err := d.GetDecodedData()
	if err != nil {
		return nil, err
	}

	enc, err := NewEncoder(data, d.objectSize, table)
	if err != nil {
		return nil, err
	}

	if ms, ok := d.storage.(*mmapStorage); ok {
		// ms stays owned: ms.close() (run later via enc.Close) is what
		// unlinks the scratch file. d.storage is nilled below so this
		// decoder's own Close becomes a no-op and never double-closes it.
		enc.ownedCleanup = ms.close
	} else if d.storage != nil {
		d.storage.close()
	}

	d.moved = true
	d.storage = nil
	return enc, nil
}
