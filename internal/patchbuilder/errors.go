package patchbuilder

import "fmt"

// WriterCASConflictError reports a commit race: the writer ref moved
// between builder creation and commit. The caller should re-materialize
// its cached state and retry with a fresh builder.
type WriterCASConflictError struct {
	ExpectedSHA string
	ActualSHA   string
}

func (e *WriterCASConflictError) Error() string {
	return fmt.Sprintf("patchbuilder: writer CAS conflict: expected %q, actual %q", e.ExpectedSHA, e.ActualSHA)
}

// EmptyPatchError is returned when Commit is called with zero ops.
type EmptyPatchError struct{}

func (e *EmptyPatchError) Error() string { return "patchbuilder: commit called with zero ops" }

// DeleteWithDataError is returned by RemoveNode under the "reject" policy
// when the node still owns alive edges or properties.
type DeleteWithDataError struct {
	Node string
}

func (e *DeleteWithDataError) Error() string {
	return fmt.Sprintf("patchbuilder: node %q has attached edges or properties; delete rejected by policy", e.Node)
}

// SealedBuilderError is returned when a mutating method is called after
// Commit has started or completed.
type SealedBuilderError struct{}

func (e *SealedBuilderError) Error() string { return "patchbuilder: builder is sealed" }
