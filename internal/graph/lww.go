package graph

// LWWRegister is a last-write-wins register keyed by EventId: the entry
// with the maximal EventId under the total order wins on conflict.
type LWWRegister struct {
	EventID EventId
	Value   any
}

// LWWMax returns whichever of cur and candidate has the larger EventId. A
// zero-value cur (no prior register) always loses to candidate.
func LWWMax(cur LWWRegister, candidateEvent EventId, candidateValue any) LWWRegister {
	if cur.EventID.Zero() || cur.EventID.Less(candidateEvent) {
		return LWWRegister{EventID: candidateEvent, Value: candidateValue}
	}
	return cur
}
