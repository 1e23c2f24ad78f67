package objid

import (
	"math/rand"
	"sync"
	"time"
)

// Allocator hands out ids that are unique among those currently
// checked out, for callers (e.g. cmd/fecdemo) driving more than one
// object through the codec at a time. Grounded on
// Mowenhao13-FluteGo/pkg/sender/toiallocator.go's TOI allocator, trimmed
// of its wire-length truncation modes and reserved FDT id (both
// artifacts of FLUTE session framing this codec doesn't use).
type Allocator struct {
	mu       sync.Mutex
	next     ID
	reserved map[ID]struct{}
}

// NewAllocator creates an Allocator starting from a random id, or from
// start if start is non-nil.
func NewAllocator(start *ID) *Allocator {
	var id ID
	if start != nil {
		id = *start
	} else {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		id = ID{High: r.Uint64(), Low: r.Uint64()}
	}
	return &Allocator{
		next:     id,
		reserved: make(map[ID]struct{}),
	}
}

// Allocate reserves and returns the next free id.
func (a *Allocator) Allocate() ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	ret := a.next
	a.reserved[ret] = struct{}{}

	for {
		a.next = a.next.AddUint64(1)
		if _, taken := a.reserved[a.next]; !taken {
			break
		}
	}
	return ret
}

// Release frees id, allowing it to be handed out again.
func (a *Allocator) Release(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, id)
}
