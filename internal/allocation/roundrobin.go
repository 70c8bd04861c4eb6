package allocation

import "fmt"

// RoundRobin spreads batchSize leads evenly over targets. When the batch
// does not divide evenly the first batchSize%len(targets) targets receive
// one extra lead. The result is a count plan with no leftover.
func RoundRobin(batchSize int, targets []string) (*Plan, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInvalidRequest)
	}

	requests := make([]Request, len(targets))
	per, extra := 0, 0
	if batchSize > 0 {
		per, extra = batchSize/len(targets), batchSize%len(targets)
	}
	for i, id := range targets {
		n := per
		if i < extra {
			n++
		}
		requests[i] = Request{TargetID: id, Weight: float64(n)}
	}

	return Allocate(batchSize, requests, ModeCount)
}
