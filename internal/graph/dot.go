package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Dot uniquely identifies a single add event: a writer and a per-writer
// monotonic counter. Encoded on the wire as "writer_id:counter".
type Dot struct {
	WriterID string
	Counter  uint64
}

// String encodes the dot as "writer_id:counter".
func (d Dot) String() string {
	return d.WriterID + ":" + strconv.FormatUint(d.Counter, 10)
}

// ParseDot decodes a dot from its "writer_id:counter" encoding. The writer
// id itself may not contain ':', which mirrors the \0/\x01 restriction on
// other identifiers (see InvalidIdentifier in errors.go).
func ParseDot(s string) (Dot, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return Dot{}, fmt.Errorf("graph: malformed dot %q", s)
	}
	counter, err := strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return Dot{}, fmt.Errorf("graph: malformed dot counter in %q: %w", s, err)
	}
	return Dot{WriterID: s[:idx], Counter: counter}, nil
}
