// Command fecdemo drives an object through the full encode -> lossy
// handoff -> decode pipeline in a single process, as a smoke test and a
// worked example of how the pieces in pkg/fec, pkg/ring, pkg/partial and
// pkg/objid fit together. It never touches a real socket: the "lossy
// channel" between producer and consumer is simulated by dropping a
// configurable fraction of chunks before they reach the ring buffer.
//
// Styled after Mowenhao13-FluteGo/cmd/flute_sender/main.go's
// flag-plus-YAML config loading and bracketed progress logging.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"blockfec/pkg/fec"
	"blockfec/pkg/objid"
	"blockfec/pkg/partial"
	"blockfec/pkg/ring"
)

type AppConfig struct {
	Demo DemoConfigSection `yaml:"demo"`
}

type DemoConfigSection struct {
	ObjectSizeBytes  uint64  `yaml:"object_size_bytes"`
	MemoryMode       string  `yaml:"memory_mode"` // "memory" or "mmap"
	MmapDir          string  `yaml:"mmap_dir,omitempty"`
	LossRatePercent  float64 `yaml:"loss_rate_percent"`
	RingBufferDepth  int     `yaml:"ring_buffer_depth"`
	ProgressInterval uint32  `yaml:"progress_interval"`
	Seed             int64   `yaml:"seed,omitempty"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Demo: DemoConfigSection{
			ObjectSizeBytes:  4 * 1024 * 1024,
			MemoryMode:       "memory",
			LossRatePercent:  20,
			RingBufferDepth:  ring.DefaultDepth,
			ProgressInterval: 500,
			Seed:             1,
		},
	}
}

func loadConfig(path string) (*AppConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("[fecdemo] no config at %s, using built-in defaults\n", path)
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// wireChunk is the element type crossing the ring buffer: a chunk id
// paired with its payload, exactly as it would arrive off the wire.
type wireChunk struct {
	id   uint32
	data fec.Chunk
}

// demoInstrumentation counts the callbacks a real receiver would use to
// drive its own metrics (spec.md §9's Instrumentation contract).
type demoInstrumentation struct {
	consumed    int
	fromMempool int
	nonFEC      int
}

func (d *demoInstrumentation) OnChunkConsumed()    { d.consumed++ }
func (d *demoInstrumentation) OnChunkFromMempool() { d.fromMempool++ }
func (d *demoInstrumentation) OnNonFECChunk()      { d.nonFEC++ }

func main() {
	configPath := flag.String("config", "fecdemo.yaml", "path to YAML config")
	flag.Parse()

	fmt.Printf("[fecdemo] loading config: %s\n", *configPath)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	demoPreSeed(cfg)

	if err := runLoopback(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "[fecdemo] loopback failed: %v\n", err)
		os.Exit(1)
	}
}

// runLoopback encodes a random object, streams its chunks through a
// lossy simulated channel and a ring buffer, and decodes it back,
// verifying the round trip and reporting throughput.
func runLoopback(cfg *AppConfig) error {
	d := cfg.Demo
	rng := rand.New(rand.NewSource(d.Seed))

	source := make([]byte, d.ObjectSizeBytes)
	rng.Read(source)

	dataChunks := fec.DataChunkCount(d.ObjectSizeBytes)
	mode := fec.ModeFor(dataChunks)
	fmt.Printf("[fecdemo] object size %d bytes, D=%d chunks, mode=%s\n", d.ObjectSizeBytes, dataChunks, mode)

	table := fec.NewEncoderTable(1)
	enc, err := fec.NewEncoder(source, d.ObjectSizeBytes, table)
	if err != nil {
		return fmt.Errorf("new encoder: %w", err)
	}

	memMode := fec.UseMemory
	if d.MemoryMode == "mmap" {
		memMode = fec.UseMmap
	}
	objectID := objid.NewAllocator(nil).Allocate()
	instr := &demoInstrumentation{}
	dec, err := fec.NewDecoder(d.ObjectSizeBytes, memMode, objectID, d.MmapDir, instr)
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	defer dec.Close()

	rb := ring.New[wireChunk](d.RingBufferDepth)
	rb.EnableStats(200*time.Millisecond, 0.3)

	lossRate := d.LossRatePercent / 100
	progressEvery := uint64(d.ProgressInterval)
	if progressEvery == 0 {
		progressEvery = 500
	}

	var wg sync.WaitGroup
	wg.Add(2)

	var sent, dropped uint64
	go func() {
		defer wg.Done()
		for {
			if _, err := enc.BuildChunk(0, true); err != nil {
				fmt.Printf("[fecdemo] producer stopped: %v\n", err)
				return
			}
			id, chunk := table.IDs[0], table.Chunks[0]
			sent++

			if rng.Float64() < lossRate {
				dropped++
				continue
			}
			if !rb.WriteElement(func(w *wireChunk) { w.id = id; w.data = chunk }) {
				return // aborted: consumer finished
			}
		}
	}()

	var accepted uint64
	go func() {
		defer wg.Done()
		for {
			item, ok := rb.GetNextRead()
			if !ok {
				if dec.DecodeReady() {
					rb.AbortWrite()
					return
				}
				time.Sleep(time.Millisecond)
				continue
			}
			if dec.ProvideChunk(item.data[:], item.id) {
				accepted++
			}
			rb.ConfirmRead(fec.ChunkSize)

			if accepted%progressEvery == 0 && accepted > 0 {
				s := rb.GetStats()
				fmt.Printf("[fecdemo] accepted=%d recvd=%d/%d rate=%.0f B/s\n",
					accepted, dec.GetChunksRcvd(), dec.GetChunkCount(), s.ByteRate)
			}
			if dec.DecodeReady() {
				rb.AbortWrite()
				return
			}
		}
	}()

	wg.Wait()

	if !dec.DecodeReady() {
		return fmt.Errorf("decode did not complete (sent=%d dropped=%d accepted=%d)", sent, dropped, accepted)
	}

	got, err := dec.GetDecodedData()
	if err != nil {
		return fmt.Errorf("get decoded data: %w", err)
	}
	if !bytes.Equal(got, source) {
		return fmt.Errorf("decoded object does not match source")
	}

	fmt.Println("============================================")
	fmt.Println("DECODE SUCCEEDED")
	fmt.Println("============================================")
	fmt.Printf("Chunks sent:      %d (dropped %d, %.1f%%)\n", sent, dropped, 100*float64(dropped)/float64(sent))
	fmt.Printf("Chunks accepted:  %d distinct ids\n", dec.GetChunksRcvd())
	fmt.Printf("Consumed total:   %d (instrumentation)\n", instr.consumed)
	fmt.Printf("From mempool:     %d (instrumentation)\n", instr.fromMempool)
	fmt.Printf("Non-FEC rejects:  %d (instrumentation)\n", instr.nonFEC)
	fmt.Println("============================================")
	return nil
}

// demoMempoolBlock is a toy partial.Block: it already knows the first
// quarter of an object's chunks (as if they had been resolved from a
// local mempool before any network chunk arrived) and has nothing
// further to contribute iteratively.
type demoMempoolBlock struct {
	chunks    []fec.Chunk
	available []bool
	filled    bool
}

func newDemoMempoolBlock(source []byte, dataChunks uint32) *demoMempoolBlock {
	b := &demoMempoolBlock{
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
	}
	for i := uint32(0); i < dataChunks/4; i++ {
		b.available[i] = true
	}
	return b
}

func (b *demoMempoolBlock) ChunkCount() int             { return len(b.chunks) }
func (b *demoMempoolBlock) IsChunkAvailable(i int) bool { return b.available[i] }
func (b *demoMempoolBlock) GetChunk(i int) *[fec.ChunkSize]byte {
	return (*[fec.ChunkSize]byte)(&b.chunks[i])
}
func (b *demoMempoolBlock) MarkChunkAvailable(i int) { b.available[i] = true }
func (b *demoMempoolBlock) DoIterativeFill(firstNewIdx *int) error {
	*firstNewIdx = len(b.chunks)
	b.filled = true
	return nil
}
func (b *demoMempoolBlock) IsIterativeFillDone() bool { return b.filled }
func (b *demoMempoolBlock) Finalize() error           { return nil }

// demoPreSeed shows the partial-block collaborator contract: a decoder
// seeded from a local mempool-like source that knows the first quarter
// of the chunks, with no network chunks at all.
func demoPreSeed(cfg *AppConfig) {
	d := cfg.Demo
	rng := rand.New(rand.NewSource(d.Seed + 1))
	objSize := d.ObjectSizeBytes / 4
	if objSize == 0 {
		objSize = fec.ChunkSize
	}
	source := make([]byte, objSize)
	rng.Read(source)

	dataChunks := fec.DataChunkCount(objSize)
	block := newDemoMempoolBlock(source, dataChunks)

	dec, err := fec.NewDecoder(objSize, fec.UseMemory, objid.NewAllocator(nil).Allocate(), "", nil)
	if err != nil {
		fmt.Printf("[fecdemo] pre-seed decoder setup failed: %v\n", err)
		return
	}
	defer dec.Close()

	seeded, err := partial.PreSeed(dec, block)
	if err != nil {
		fmt.Printf("[fecdemo] pre-seed failed: %v\n", err)
		return
	}
	fmt.Printf("[fecdemo] pre-seed: %d/%d chunks filled from local data before any network chunk\n", seeded, dataChunks)
}
