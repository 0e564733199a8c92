package fec

// RecvdTracker records which chunk ids have been seen for one object.
// Data chunk ids are dense in [0, dataChunks) and live in a flat bool
// slice; repair ids are large and sparse, especially when chosen at
// random, and go into an open addressed set keyed on the id itself.
//
// The sparse set uses 0 as its empty-slot marker, so a repair id of
// exactly 0 must never reach it. Id assignment guarantees this: repair
// ids start at the data chunk count, which is at least 2 in every mode
// that has repair ids at all.
type RecvdTracker struct {
	dataChunkRecvd []bool
	repairRecvd    idSet
}

func NewRecvdTracker(dataChunks int) RecvdTracker {
	return RecvdTracker{dataChunkRecvd: make([]bool, dataChunks)}
}

// CheckPresentAndMarkRecvd reports whether id was already recorded,
// recording it if not.
func (t *RecvdTracker) CheckPresentAndMarkRecvd(id uint32) bool {
	if uint64(id) < uint64(len(t.dataChunkRecvd)) {
		if t.dataChunkRecvd[id] {
			return true
		}
		t.dataChunkRecvd[id] = true
		return false
	}
	return !t.repairRecvd.insert(id)
}

// CheckPresent is the read only membership test.
func (t *RecvdTracker) CheckPresent(id uint32) bool {
	if uint64(id) < uint64(len(t.dataChunkRecvd)) {
		return t.dataChunkRecvd[id]
	}
	return t.repairRecvd.contains(id)
}

// idSet is a linear probing set of non-zero uint32 ids. Capacity is
// always a power of two.
type idSet struct {
	slots []uint32
	used  int
}

// insert returns true if id was not in the set before.
func (s *idSet) insert(id uint32) bool {
	if s.slots == nil {
		s.slots = make([]uint32, 16)
	} else if (s.used+1)*4 > len(s.slots)*3 {
		s.grow()
	}
	mask := uint32(len(s.slots) - 1)
	for i := id & mask; ; i = (i + 1) & mask {
		switch s.slots[i] {
		case 0:
			s.slots[i] = id
			s.used++
			return true
		case id:
			return false
		}
	}
}

func (s *idSet) contains(id uint32) bool {
	if len(s.slots) == 0 || id == 0 {
		return false
	}
	mask := uint32(len(s.slots) - 1)
	for i := id & mask; ; i = (i + 1) & mask {
		switch s.slots[i] {
		case 0:
			return false
		case id:
			return true
		}
	}
}

func (s *idSet) size() int {
	return s.used
}

func (s *idSet) grow() {
	old := s.slots
	s.slots = make([]uint32, len(old)*2)
	mask := uint32(len(s.slots) - 1)
	for _, id := range old {
		if id == 0 {
			continue
		}
		for i := id & mask; ; i = (i + 1) & mask {
			if s.slots[i] == 0 {
				s.slots[i] = id
				break
			}
		}
	}
}
