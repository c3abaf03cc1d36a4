package objectstore

import "errors"

// ErrRefConflict is returned by CASUpdateRef when the ref's current value
// does not match the caller's expected value (a commit race).
var ErrRefConflict = errors.New("objectstore: ref compare-and-swap conflict")

// ErrNotFound is returned when a blob, tree, ref, or commit is not present.
var ErrNotFound = errors.New("objectstore: not found")
