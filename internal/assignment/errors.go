package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrIneligibleTarget is matched by every *IneligibleTargetError.
	ErrIneligibleTarget = errors.New("ineligible target")

	// ErrShortBatch is matched by every *ShortBatchError.
	ErrShortBatch = errors.New("batch shorter than plan")
)

// IneligibleTargetError names a planned target that may not receive leads.
type IneligibleTargetError struct {
	TargetID string
	Reason   string
}

func (e *IneligibleTargetError) Error() string {
	return fmt.Sprintf("ineligible target %s: %s", e.TargetID, e.Reason)
}

func (e *IneligibleTargetError) Is(target error) bool {
	return target == ErrIneligibleTarget
}

// ShortBatchError reports a plan that asks for more leads than the batch
// holds.
type ShortBatchError struct {
	Planned   int
	Available int
}

func (e *ShortBatchError) Error() string {
	return fmt.Sprintf("plan assigns %d leads but batch has %d", e.Planned, e.Available)
}

func (e *ShortBatchError) Is(target error) bool {
	return target == ErrShortBatch
}
