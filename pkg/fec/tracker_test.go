package fec

import "testing"

func TestChunkTrackerSystematic(t *testing.T) {
	tr := newChunkTracker(4)
	if tr.checkPresent(2) {
		t.Fatalf("id 2 should not be present yet")
	}
	if tr.checkPresentAndMark(2) {
		t.Fatalf("first mark of id 2 should report not-present")
	}
	if !tr.checkPresent(2) {
		t.Fatalf("id 2 should be present after marking")
	}
	if !tr.checkPresentAndMark(2) {
		t.Fatalf("second mark of id 2 should report already-present")
	}
}

func TestChunkTrackerRedundancy(t *testing.T) {
	tr := newChunkTracker(4)
	// ids >= dataChunks go through the open-addressed set.
	if tr.checkPresentAndMark(100) {
		t.Fatalf("first mark of redundancy id 100 should report not-present")
	}
	if !tr.checkPresentAndMark(100) {
		t.Fatalf("second mark of redundancy id 100 should report already-present")
	}
	if tr.checkPresent(200) {
		t.Fatalf("untouched redundancy id 200 should not be present")
	}
}

func TestOpenIDSetGrowth(t *testing.T) {
	s := newOpenIDSet(4)
	const n = 1000
	for i := uint32(1); i <= n; i++ {
		if s.checkPresentAndInsert(i) {
			t.Fatalf("id %d should not already be present", i)
		}
	}
	for i := uint32(1); i <= n; i++ {
		if !s.contains(i) {
			t.Fatalf("id %d should be present after growth", i)
		}
	}
	if s.count != n {
		t.Fatalf("count = %d, want %d", s.count, n)
	}
}
