// Package ring implements the single-producer/single-consumer bounded
// queue used to hand received chunks from the network-ingest goroutine to
// the decode/dispatch goroutine (spec.md §4.8, component H).
//
// The transactional write/read contract (fill-in-place writes, abortable
// transactions, FIFO ordering) is grounded on the shape of
// bureau-foundation-bureau/observe/ringbuffer.go (a mutex-guarded
// circular buffer with sequence tracking) generalized from raw bytes to
// a generic element type and extended with the blocking/cancel/stats
// contract spec.md §4.8 and §5 require.
package ring

import (
	"sync"
	"time"

	"blockfec/pkg/stats"
)

// DefaultDepth is BUFF_DEPTH, the default queue capacity in elements.
const DefaultDepth = 64

// Stats is a snapshot of the ring buffer's read-side throughput,
// matching spec.md §4.8's {rd_bytes, rd_count, rd_per_sec, byterate}.
type Stats struct {
	ReadBytes   uint64
	ReadCount   uint64
	ReadsPerSec float64
	ByteRate    float64
}

// RingBuffer is a bounded SPSC FIFO queue of T. All methods are safe to
// call from the single producer and single consumer goroutines
// concurrently with each other (but not from more than one producer, or
// more than one consumer, at a time — see spec.md §5).
type RingBuffer[T any] struct {
	mu      sync.Mutex
	notFull *sync.Cond

	slots    []T
	capacity uint64
	writeIdx uint64
	readIdx  uint64
	count    uint64

	abortRequested bool

	statsEnabled bool
	rate         *stats.RateEWMA
}

// New creates a ring buffer with the given capacity in elements. A
// non-positive capacity falls back to DefaultDepth.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultDepth
	}
	rb := &RingBuffer[T]{
		slots:    make([]T, capacity),
		capacity: uint64(capacity),
	}
	rb.notFull = sync.NewCond(&rb.mu)
	return rb
}

// WriteElement reserves the next slot, blocking if the buffer is full,
// then invokes fill with a pointer to that slot so the caller can write
// in place (avoiding a copy), and commits the write. If AbortWrite is
// called on another goroutine while this call is blocked, WriteElement
// returns false without invoking fill and without writing.
func (r *RingBuffer[T]) WriteElement(fill func(*T)) bool {
	r.mu.Lock()
	for r.count == r.capacity {
		if r.abortRequested {
			r.abortRequested = false
			r.mu.Unlock()
			return false
		}
		r.notFull.Wait()
	}

	idx := r.writeIdx % r.capacity
	fill(&r.slots[idx])
	r.writeIdx++
	r.count++
	r.mu.Unlock()
	return true
}

// AbortWrite wakes a WriteElement call currently blocked on a full
// buffer, causing it to return false. If no call is blocked at the
// moment AbortWrite runs, the cancellation is latched and applies to the
// next call that would otherwise block.
func (r *RingBuffer[T]) AbortWrite() {
	r.mu.Lock()
	r.abortRequested = true
	r.notFull.Broadcast()
	r.mu.Unlock()
}

// GetNextRead returns a pointer to the next unread element and true, or
// (nil, false) if the buffer is currently empty. The returned pointer is
// a peek: it does not advance the read position until ConfirmRead is
// called.
func (r *RingBuffer[T]) GetNextRead() (*T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, false
	}
	idx := r.readIdx % r.capacity
	return &r.slots[idx], true
}

// ConfirmRead advances the read position past the element most recently
// returned by GetNextRead, frees its slot for the writer, and — if
// EnableStats has been called — folds sizeHint bytes into the rate
// statistics.
func (r *RingBuffer[T]) ConfirmRead(sizeHint int) {
	r.mu.Lock()
	r.readIdx++
	r.count--
	if r.statsEnabled {
		r.rate.Observe(uint64(sizeHint))
	}
	r.notFull.Signal()
	r.mu.Unlock()
}

// AbortRead leaves the read position unchanged, so the next GetNextRead
// call returns the same element again. GetNextRead never mutates state
// on its own, so this is a documented no-op provided for symmetry with
// AbortWrite at call sites that want to express "I looked, but didn't
// consume it."
func (r *RingBuffer[T]) AbortRead() {}

// IsEmpty is a snapshot query: true if there is nothing to read right now.
func (r *RingBuffer[T]) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count == 0
}

// IsFull is a snapshot query: true if WriteElement would block right now.
func (r *RingBuffer[T]) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count == r.capacity
}

// EnableStats turns on EWMA rate statistics over the given update window
// and smoothing factor beta, read back via GetStats.
func (r *RingBuffer[T]) EnableStats(updateInterval time.Duration, beta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = stats.NewRateEWMA(updateInterval, beta)
	r.statsEnabled = true
}

// GetStats returns the current rate statistics snapshot. It returns the
// zero value if EnableStats has not been called.
func (r *RingBuffer[T]) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.statsEnabled {
		return Stats{}
	}
	snap := r.rate.Snapshot()
	return Stats{
		ReadBytes:   snap.Bytes,
		ReadCount:   snap.Count,
		ReadsPerSec: snap.CountRate,
		ByteRate:    snap.BytesRate,
	}
}
