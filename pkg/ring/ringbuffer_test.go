package ring

import (
	"sync"
	"testing"
	"time"
)

func TestWriteReadFIFO(t *testing.T) {
	rb := New[int](4)
	for i := 0; i < 4; i++ {
		i := i
		if !rb.WriteElement(func(v *int) { *v = i }) {
			t.Fatalf("WriteElement(%d) should not block on a non-full buffer", i)
		}
	}
	if !rb.IsFull() {
		t.Fatalf("buffer should be full after filling to capacity")
	}

	for i := 0; i < 4; i++ {
		item, ok := rb.GetNextRead()
		if !ok {
			t.Fatalf("GetNextRead should succeed while items remain")
		}
		if *item != i {
			t.Fatalf("read out of FIFO order: got %d, want %d", *item, i)
		}
		rb.ConfirmRead(8)
	}
	if !rb.IsEmpty() {
		t.Fatalf("buffer should be empty after reading everything back")
	}
}

func TestGetNextReadIsAPeek(t *testing.T) {
	rb := New[int](4)
	rb.WriteElement(func(v *int) { *v = 42 })

	a, ok := rb.GetNextRead()
	if !ok || *a != 42 {
		t.Fatalf("unexpected peek result: %v %v", a, ok)
	}
	rb.AbortRead()
	b, ok := rb.GetNextRead()
	if !ok || *b != 42 {
		t.Fatalf("peek should still see the same element after AbortRead")
	}
	rb.ConfirmRead(0)
	if !rb.IsEmpty() {
		t.Fatalf("buffer should be empty after the single confirmed read")
	}
}

func TestWriteBlocksWhenFullAndUnblocksOnRead(t *testing.T) {
	rb := New[int](1)
	rb.WriteElement(func(v *int) { *v = 1 })

	done := make(chan bool, 1)
	go func() {
		done <- rb.WriteElement(func(v *int) { *v = 2 })
	}()

	select {
	case <-done:
		t.Fatalf("WriteElement should have blocked on a full buffer")
	case <-time.After(30 * time.Millisecond):
	}

	item, ok := rb.GetNextRead()
	if !ok || *item != 1 {
		t.Fatalf("unexpected first item: %v %v", item, ok)
	}
	rb.ConfirmRead(0)

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("blocked write should have succeeded once space freed up")
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked write never completed after ConfirmRead")
	}

	item, ok = rb.GetNextRead()
	if !ok || *item != 2 {
		t.Fatalf("second item should be the previously-blocked write's value")
	}
}

func TestAbortWriteUnblocksPendingWrite(t *testing.T) {
	rb := New[int](1)
	rb.WriteElement(func(v *int) { *v = 1 })

	var wg sync.WaitGroup
	wg.Add(1)
	var result bool
	go func() {
		defer wg.Done()
		result = rb.WriteElement(func(v *int) { *v = 99 })
	}()

	time.Sleep(30 * time.Millisecond)
	rb.AbortWrite()
	wg.Wait()

	if result {
		t.Fatalf("aborted WriteElement should return false")
	}
	item, ok := rb.GetNextRead()
	if !ok || *item != 1 {
		t.Fatalf("the original item should be untouched by the aborted write")
	}
}

func TestStatsDisabledByDefault(t *testing.T) {
	rb := New[int](4)
	if s := rb.GetStats(); s != (Stats{}) {
		t.Fatalf("stats should be zero value before EnableStats: %+v", s)
	}
}

func TestStatsAccumulate(t *testing.T) {
	rb := New[int](4)
	rb.EnableStats(time.Millisecond, 0.5)
	for i := 0; i < 4; i++ {
		rb.WriteElement(func(v *int) { *v = i })
		item, _ := rb.GetNextRead()
		_ = item
		rb.ConfirmRead(100)
		time.Sleep(2 * time.Millisecond)
	}
	s := rb.GetStats()
	if s.ReadBytes != 400 {
		t.Fatalf("ReadBytes = %d, want 400", s.ReadBytes)
	}
	if s.ReadCount != 4 {
		t.Fatalf("ReadCount = %d, want 4", s.ReadCount)
	}
}
