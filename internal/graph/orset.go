package graph

// ORSet is an observed-remove set of dotted elements. An element is alive
// iff it has at least one dot in entries that is not in tombstones. Remove
// only consumes the dots it has actually observed, so a concurrent re-add
// with a fresh dot keeps the element alive (spec §8, scenario 1).
type ORSet[T comparable] struct {
	entries    map[T]map[string]struct{} // element -> set of dot strings
	tombstones map[string]struct{}       // dot strings moved here by Remove
}

// NewORSet returns an empty OR-Set.
func NewORSet[T comparable]() *ORSet[T] {
	return &ORSet[T]{
		entries:    make(map[T]map[string]struct{}),
		tombstones: make(map[string]struct{}),
	}
}

// Add inserts dot into the live dot set for element x.
func (s *ORSet[T]) Add(x T, dot Dot) {
	set, ok := s.entries[x]
	if !ok {
		set = make(map[string]struct{})
		s.entries[x] = set
	}
	set[dot.String()] = struct{}{}
}

// ObservedDots returns the currently-alive (non-tombstoned) dots of x, as
// encoded dot strings. This is the snapshot a PatchBuilder reads to build
// an observed-remove.
func (s *ORSet[T]) ObservedDots(x T) []string {
	set, ok := s.entries[x]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for d := range set {
		if _, dead := s.tombstones[d]; !dead {
			out = append(out, d)
		}
	}
	return out
}

// Remove moves the given observed dots into the tombstone set. It does not
// require the dots to belong to any particular element; IsAlive naturally
// reflects the tombstoning on next read.
func (s *ORSet[T]) Remove(observedDots []string) {
	for _, d := range observedDots {
		s.tombstones[d] = struct{}{}
	}
}

// IsAlive reports whether x has at least one live (non-tombstoned) dot.
func (s *ORSet[T]) IsAlive(x T) bool {
	set, ok := s.entries[x]
	if !ok {
		return false
	}
	for d := range set {
		if _, dead := s.tombstones[d]; !dead {
			return true
		}
	}
	return false
}

// Elements returns every element that currently has at least one dot on
// record (alive or not), for iteration during diffing/verification.
func (s *ORSet[T]) Elements() []T {
	out := make([]T, 0, len(s.entries))
	for x := range s.entries {
		out = append(out, x)
	}
	return out
}

// AliveElements returns every element currently alive.
func (s *ORSet[T]) AliveElements() []T {
	out := make([]T, 0, len(s.entries))
	for x := range s.entries {
		if s.IsAlive(x) {
			out = append(out, x)
		}
	}
	return out
}

// Join merges other into a fresh copy of s: union of entries, union of
// tombstones. join(a,b) = join(b,a) and join(a,a) = a.
func (s *ORSet[T]) Join(other *ORSet[T]) *ORSet[T] {
	out := NewORSet[T]()
	for x, dots := range s.entries {
		cp := make(map[string]struct{}, len(dots))
		for d := range dots {
			cp[d] = struct{}{}
		}
		out.entries[x] = cp
	}
	for x, dots := range other.entries {
		set, ok := out.entries[x]
		if !ok {
			set = make(map[string]struct{}, len(dots))
			out.entries[x] = set
		}
		for d := range dots {
			set[d] = struct{}{}
		}
	}
	for d := range s.tombstones {
		out.tombstones[d] = struct{}{}
	}
	for d := range other.tombstones {
		out.tombstones[d] = struct{}{}
	}
	return out
}

// Clone returns a deep, independent copy of s.
func (s *ORSet[T]) Clone() *ORSet[T] {
	out := NewORSet[T]()
	for x, dots := range s.entries {
		cp := make(map[string]struct{}, len(dots))
		for d := range dots {
			cp[d] = struct{}{}
		}
		out.entries[x] = cp
	}
	for d := range s.tombstones {
		out.tombstones[d] = struct{}{}
	}
	return out
}

// HasDot reports whether dot is already recorded against x, regardless of
// tombstone state (used for receipt computation: add is redundant if the
// dot is already present).
func (s *ORSet[T]) HasDot(x T, dot Dot) bool {
	set, ok := s.entries[x]
	if !ok {
		return false
	}
	_, has := set[dot.String()]
	return has
}

// IsTombstoned reports whether a dot string has already been moved into
// the tombstone set (used for receipt computation on remove).
func (s *ORSet[T]) IsTombstoned(dot string) bool {
	_, dead := s.tombstones[dot]
	return dead
}

// Compact drops tombstoned dots whose writer counter is at or below the
// frontier's recorded value for that writer. No writer below the frontier
// can still emit an observed-remove referencing such a dot, so it is safe
// to physically discard. Elements left with no remaining dots are dropped
// entirely.
func (s *ORSet[T]) Compact(frontier VersionVector) {
	for x, dots := range s.entries {
		for encoded := range dots {
			if _, dead := s.tombstones[encoded]; !dead {
				continue
			}
			d, err := ParseDot(encoded)
			if err != nil {
				continue
			}
			if d.Counter <= frontier.Get(d.WriterID) {
				delete(dots, encoded)
				delete(s.tombstones, encoded)
			}
		}
		if len(dots) == 0 {
			delete(s.entries, x)
		}
	}
}
