package graph

// EventId totally orders every op in every patch ever applied. It is used
// as the LWW timestamp for property registers and as the receipt tiebreaker.
//
// Total order is lexicographic over (Lamport, WriterID, PatchSHA, OpIndex).
type EventId struct {
	Lamport   uint64
	WriterID  string
	PatchSHA  string
	OpIndex   uint32
}

// Compare returns -1, 0 or 1 as e sorts before, equal to, or after o.
func (e EventId) Compare(o EventId) int {
	if e.Lamport != o.Lamport {
		if e.Lamport < o.Lamport {
			return -1
		}
		return 1
	}
	if e.WriterID != o.WriterID {
		if e.WriterID < o.WriterID {
			return -1
		}
		return 1
	}
	if e.PatchSHA != o.PatchSHA {
		if e.PatchSHA < o.PatchSHA {
			return -1
		}
		return 1
	}
	if e.OpIndex != o.OpIndex {
		if e.OpIndex < o.OpIndex {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether e strictly precedes o in the total order.
func (e EventId) Less(o EventId) bool {
	return e.Compare(o) < 0
}

// Zero reports whether e is the zero value (used to detect "no prior event").
func (e EventId) Zero() bool {
	return e == EventId{}
}
