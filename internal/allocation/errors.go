package allocation

import "errors"

// Sentinel errors for allocation planning.
var (
	// ErrInvalidRequest is returned for malformed allocation input: no
	// targets, negative or fractional weights, a zero percentage total or an
	// unknown mode.
	ErrInvalidRequest = errors.New("invalid allocation request")

	// ErrOverAssignment is returned in count mode when the requested counts
	// add up to more leads than the batch holds.
	ErrOverAssignment = errors.New("requested counts exceed batch size")
)
