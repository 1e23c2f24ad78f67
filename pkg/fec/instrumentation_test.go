package fec

import (
	"testing"

	"blockfec/pkg/objid"
)

type countingInstrumentation struct {
	consumed, fromMempool, nonFEC int
}

func (c *countingInstrumentation) OnChunkConsumed()    { c.consumed++ }
func (c *countingInstrumentation) OnChunkFromMempool() { c.fromMempool++ }
func (c *countingInstrumentation) OnNonFECChunk()      { c.nonFEC++ }

func TestInstrumentationDistinguishesChunkSources(t *testing.T) {
	objectSize := 5 * ChunkSize
	source := makeObject(objectSize, 17)

	table := NewEncoderTable(1)
	enc, err := NewEncoder(source, uint64(objectSize), table)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()

	instr := &countingInstrumentation{}
	dec, err := NewDecoder(uint64(objectSize), UseMemory, objid.FromUint64(1), "", instr)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()

	// A chunk pre-seeded from a local source counts as mempool-sourced,
	// not wire-consumed.
	if !dec.ProvideMempoolChunk(source[:ChunkSize], 0) {
		t.Fatalf("ProvideMempoolChunk should accept a valid chunk")
	}
	if instr.fromMempool != 1 || instr.consumed != 0 {
		t.Fatalf("after one mempool chunk: fromMempool=%d consumed=%d, want 1,0", instr.fromMempool, instr.consumed)
	}

	// The remaining chunks arrive over the simulated wire. The encoder
	// hands out systematic ids in order, so the first BuildChunk call
	// reproduces id 0 (already pre-seeded above); the second moves on to
	// id 1, which the decoder has not seen yet.
	if _, err := enc.BuildChunk(0, true); err != nil {
		t.Fatalf("BuildChunk: %v", err)
	}
	if _, err := enc.BuildChunk(0, true); err != nil {
		t.Fatalf("BuildChunk: %v", err)
	}
	if !dec.ProvideChunk(table.Chunks[0][:], table.IDs[0]) {
		t.Fatalf("ProvideChunk rejected id %d", table.IDs[0])
	}
	if instr.consumed != 1 {
		t.Fatalf("consumed = %d, want 1", instr.consumed)
	}

	// A short payload and an out-of-range id are both rejected as
	// non-FEC input rather than silently ignored.
	if dec.ProvideChunk(make([]byte, ChunkSize-1), 0) {
		t.Fatalf("short chunk should be rejected")
	}
	if dec.ProvideChunk(make([]byte, ChunkSize), ChunkCountMax) {
		t.Fatalf("out-of-range id should be rejected")
	}
	if instr.nonFEC != 2 {
		t.Fatalf("nonFEC = %d, want 2", instr.nonFEC)
	}
}
