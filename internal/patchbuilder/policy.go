package patchbuilder

// DeleteWithDataPolicy controls RemoveNode's behavior when the node still
// owns alive incident edges or properties.
type DeleteWithDataPolicy string

const (
	// PolicyReject raises DeleteWithDataError.
	PolicyReject DeleteWithDataPolicy = "reject"
	// PolicyCascade auto-emits EdgeRemove ops for each incident edge
	// before the NodeRemove.
	PolicyCascade DeleteWithDataPolicy = "cascade"
	// PolicyWarn logs and proceeds, leaving orphaned edges/properties.
	PolicyWarn DeleteWithDataPolicy = "warn"
)
