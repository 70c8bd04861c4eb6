package allocation

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseShares reads "target=weight" pairs as typed on a command line.
func ParseShares(args []string) ([]Request, error) {
	reqs := make([]Request, 0, len(args))
	for _, arg := range args {
		target, val, ok := strings.Cut(arg, "=")
		if !ok || target == "" || val == "" {
			return nil, fmt.Errorf("%w: expected target=weight, got %q", ErrInvalidRequest, arg)
		}
		w, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad weight for %s: %q", ErrInvalidRequest, target, val)
		}
		reqs = append(reqs, Request{TargetID: target, Weight: w})
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one target=weight is required", ErrInvalidRequest)
	}
	return reqs, nil
}
