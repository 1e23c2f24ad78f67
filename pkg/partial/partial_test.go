package partial

import (
	"bytes"
	"testing"

	"blockfec/pkg/fec"
	"blockfec/pkg/objid"
)

// fakeBlock is a minimal partial.Block: a fixed set of chunks, some
// already available, with no iterative resolution logic.
type fakeBlock struct {
	chunks         []fec.Chunk
	available      []bool
	done           bool
	finalizeCalled bool
}

func newFakeBlock(source []byte, dataChunks uint32, availableUpTo uint32) *fakeBlock {
	b := &fakeBlock{
		chunks:    make([]fec.Chunk, dataChunks),
		available: make([]bool, dataChunks),
	}
	for i := uint32(0); i < dataChunks; i++ {
		start := int(i) * fec.ChunkSize
		end := start + fec.ChunkSize
		if end > len(source) {
			end = len(source)
		}
		copy(b.chunks[i][:], source[start:end])
		if i < availableUpTo {
			b.available[i] = true
		}
	}
	return b
}

func (b *fakeBlock) ChunkCount() int             { return len(b.chunks) }
func (b *fakeBlock) IsChunkAvailable(i int) bool { return b.available[i] }
func (b *fakeBlock) GetChunk(i int) *[fec.ChunkSize]byte {
	return (*[fec.ChunkSize]byte)(&b.chunks[i])
}
func (b *fakeBlock) MarkChunkAvailable(i int) { b.available[i] = true }
func (b *fakeBlock) DoIterativeFill(firstNewIdx *int) error {
	*firstNewIdx = len(b.chunks)
	b.done = true
	return nil
}
func (b *fakeBlock) IsIterativeFillDone() bool { return b.done }
func (b *fakeBlock) Finalize() error {
	b.finalizeCalled = true
	return nil
}

func TestPreSeedFeedsAvailableChunks(t *testing.T) {
	const d = 10
	objectSize := d * fec.ChunkSize
	source := make([]byte, objectSize)
	for i := range source {
		source[i] = byte(i)
	}

	block := newFakeBlock(source, d, 6) // first 6 of 10 chunks known up front

	dec, err := fec.NewDecoder(uint64(objectSize), fec.UseMemory, objid.FromUint64(1), "", nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()

	seeded, err := PreSeed(dec, block)
	if err != nil {
		t.Fatalf("PreSeed: %v", err)
	}
	if seeded != 6 {
		t.Fatalf("seeded = %d, want 6", seeded)
	}
	for i := uint32(0); i < 6; i++ {
		if !dec.HasChunk(i) {
			t.Errorf("chunk %d should be present in the decoder after pre-seed", i)
		}
	}
	for i := uint32(6); i < d; i++ {
		if dec.HasChunk(i) {
			t.Errorf("chunk %d should not be present before it is provided", i)
		}
	}
	if dec.GetChunksRcvd() != 6 {
		t.Fatalf("GetChunksRcvd() = %d, want 6", dec.GetChunksRcvd())
	}
	if block.finalizeCalled {
		t.Fatalf("Finalize should not be called while chunks remain unavailable")
	}
}

func TestPreSeedIndistinguishableFromWireChunks(t *testing.T) {
	const d = 5
	objectSize := d * fec.ChunkSize
	source := make([]byte, objectSize)
	for i := range source {
		source[i] = byte(2*i + 1)
	}

	block := newFakeBlock(source, d, d) // every chunk already known

	dec, err := fec.NewDecoder(uint64(objectSize), fec.UseMemory, objid.FromUint64(2), "", nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()

	if _, err := PreSeed(dec, block); err != nil {
		t.Fatalf("PreSeed: %v", err)
	}
	if !dec.DecodeReady() {
		t.Fatalf("decoder should be ready once every chunk has been pre-seeded")
	}
	got, err := dec.GetDecodedData()
	if err != nil {
		t.Fatalf("GetDecodedData: %v", err)
	}
	if !bytes.Equal(got, source) {
		t.Fatalf("decoded data mismatch after full pre-seed")
	}
	if !block.finalizeCalled {
		t.Fatalf("Finalize should be called once every chunk is available")
	}
}
