package fec

// chunkTracker deduplicates chunk ids before they reach the small/fountain
// decode path: a dense bit-vector for the D systematic ids (O(1) index),
// and an open-addressed hash set for redundancy ids (which are already
// pseudo-random over a 24-bit space, so identity hashing is ideal).
//
// Grounded on the FIBRE original's BlockChunkRecvdTracker (fec.h): the
// same split between a std::vector<bool> for data chunks and an
// open_hash_set<uint32_t> for redundancy ids, with id 0 reserved as the
// hash set's null slot sentinel (id 0 is always a systematic id, since
// D >= 1 for any non-trivial object, so the hash set never has to store it).
type chunkTracker struct {
	dataRecvd []bool
	redund    openIDSet
}

func newChunkTracker(dataChunks uint32) *chunkTracker {
	return &chunkTracker{
		dataRecvd: make([]bool, dataChunks),
		redund:    newOpenIDSet(8),
	}
}

// checkPresentAndMark reports whether id was already seen, marking it seen
// as a side effect. For ids below D this is a bit-vector test-and-set; for
// redundancy ids it probes (and inserts into) the open-addressed set.
func (t *chunkTracker) checkPresentAndMark(id uint32) bool {
	if int(id) < len(t.dataRecvd) {
		if t.dataRecvd[id] {
			return true
		}
		t.dataRecvd[id] = true
		return false
	}
	return t.redund.checkPresentAndInsert(id)
}

// checkPresent reports whether id has been seen, without marking it.
func (t *chunkTracker) checkPresent(id uint32) bool {
	if int(id) < len(t.dataRecvd) {
		return t.dataRecvd[id]
	}
	return t.redund.contains(id)
}

// openIDSet is an open-addressed hash set of uint32 ids with linear
// probing, load factor capped at 0.5, growth by doubling, and identity
// hashing (the redundancy-id range is already pseudo-random, so there is
// nothing a stronger hash would buy us). Slot value 0 is the empty
// sentinel; callers never insert id 0 into this set (it is always a
// systematic id and handled by the bit-vector instead).
type openIDSet struct {
	slots []uint32
	count int
}

func newOpenIDSet(initialCap int) openIDSet {
	if initialCap < 4 {
		initialCap = 4
	}
	return openIDSet{slots: make([]uint32, initialCap)}
}

func (s *openIDSet) contains(id uint32) bool {
	if len(s.slots) == 0 {
		return false
	}
	mask := uint32(len(s.slots) - 1)
	for i := id & mask; ; i = (i + 1) & mask {
		v := s.slots[i]
		if v == 0 {
			return false
		}
		if v == id {
			return true
		}
	}
}

// checkPresentAndInsert probes for id; if found, returns true. Otherwise
// it inserts id and returns false, growing the table first if the load
// factor would exceed 0.5.
func (s *openIDSet) checkPresentAndInsert(id uint32) bool {
	if (s.count+1)*2 > len(s.slots) {
		s.grow()
	}
	mask := uint32(len(s.slots) - 1)
	for i := id & mask; ; i = (i + 1) & mask {
		v := s.slots[i]
		if v == id {
			return true
		}
		if v == 0 {
			s.slots[i] = id
			s.count++
			return false
		}
	}
}

func (s *openIDSet) grow() {
	old := s.slots
	newSize := len(old) * 2
	if newSize == 0 {
		newSize = 4
	}
	s.slots = make([]uint32, newSize)
	s.count = 0
	mask := uint32(newSize - 1)
	for _, v := range old {
		if v == 0 {
			continue
		}
		for i := v & mask; ; i = (i + 1) & mask {
			if s.slots[i] == 0 {
				s.slots[i] = v
				s.count++
				break
			}
		}
	}
}
