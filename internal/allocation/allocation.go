// Package allocation turns per-agent weights into exact integer lead counts.
//
// Two modes are supported. Count mode takes each weight as a literal number
// of leads and leaves any shortfall unassigned. Percentage mode treats the
// weights as relative shares and apportions the whole batch with the
// largest-remainder method, so the counts always add up to the batch size.
package allocation

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Mode selects how request weights are interpreted.
type Mode string

const (
	ModeCount      Mode = "count"
	ModePercentage Mode = "percentage"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCount:
		return ModeCount, nil
	case ModePercentage:
		return ModePercentage, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
}

// InferMode guesses the mode the way the legacy upload form did: if every
// weight is at most 100 the request is read as percentages.
func InferMode(requests []Request) Mode {
	for _, r := range requests {
		if r.Weight > 100 {
			return ModeCount
		}
	}
	return ModePercentage
}

// Request is one target's requested share of a batch.
type Request struct {
	TargetID string  `json:"target_id" yaml:"target_id"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// Entry is the number of leads planned for one target.
type Entry struct {
	TargetID string `json:"target_id" yaml:"target_id"`
	Count    int    `json:"count" yaml:"count"`
}

// Plan maps targets to lead counts. Entries keep the order of the requests.
type Plan struct {
	Mode      Mode    `json:"mode" yaml:"mode"`
	BatchSize int     `json:"batch_size" yaml:"batch_size"`
	Entries   []Entry `json:"entries" yaml:"entries"`
	// Leftover is the number of leads the plan leaves unassigned.
	Leftover int `json:"leftover" yaml:"leftover"`
}

// Total returns the number of leads the plan assigns.
func (p *Plan) Total() int {
	total := 0
	for _, e := range p.Entries {
		total += e.Count
	}
	return total
}

// Counts returns the plan as a map keyed by target.
func (p *Plan) Counts() map[string]int {
	counts := make(map[string]int, len(p.Entries))
	for _, e := range p.Entries {
		counts[e.TargetID] = e.Count
	}
	return counts
}

// TargetIDs returns the planned targets in plan order.
func (p *Plan) TargetIDs() []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.TargetID
	}
	return ids
}

// Allocate computes a plan for batchSize leads.
func Allocate(batchSize int, requests []Request, mode Mode) (*Plan, error) {
	if err := validate(batchSize, requests); err != nil {
		return nil, err
	}

	switch mode {
	case ModeCount:
		return allocateCount(batchSize, requests)
	case ModePercentage:
		return allocatePercentage(batchSize, requests)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
}

func validate(batchSize int, requests []Request) error {
	if batchSize < 0 {
		return fmt.Errorf("%w: negative batch size %d", ErrInvalidRequest, batchSize)
	}
	if len(requests) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		if r.TargetID == "" {
			return fmt.Errorf("%w: empty target id", ErrInvalidRequest)
		}
		if _, dup := seen[r.TargetID]; dup {
			return fmt.Errorf("%w: duplicate target %s", ErrInvalidRequest, r.TargetID)
		}
		seen[r.TargetID] = struct{}{}

		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
			return fmt.Errorf("%w: weight for %s is not a number", ErrInvalidRequest, r.TargetID)
		}
		if r.Weight < 0 {
			return fmt.Errorf("%w: negative weight %v for %s", ErrInvalidRequest, r.Weight, r.TargetID)
		}
	}
	return nil
}

func allocateCount(batchSize int, requests []Request) (*Plan, error) {
	var requested float64
	for _, r := range requests {
		if r.Weight != math.Trunc(r.Weight) {
			return nil, fmt.Errorf("%w: count %v for %s is not a whole number", ErrInvalidRequest, r.Weight, r.TargetID)
		}
		requested += r.Weight
	}
	if requested > float64(batchSize) {
		return nil, fmt.Errorf("%w: requested %.0f, batch has %d", ErrOverAssignment, requested, batchSize)
	}

	plan := &Plan{Mode: ModeCount, BatchSize: batchSize, Entries: make([]Entry, len(requests))}
	for i, r := range requests {
		plan.Entries[i] = Entry{TargetID: r.TargetID, Count: int(r.Weight)}
	}
	plan.Leftover = batchSize - plan.Total()
	return plan, nil
}

func allocatePercentage(batchSize int, requests []Request) (*Plan, error) {
	// Shares are computed on weights scaled by the largest one so the sum
	// stays finite for any finite input.
	var maxWeight float64
	for _, r := range requests {
		maxWeight = math.Max(maxWeight, r.Weight)
	}
	if maxWeight <= 0 {
		return nil, fmt.Errorf("%w: percentage weights must have a positive total", ErrInvalidRequest)
	}
	scaled := make([]float64, len(requests))
	var total float64
	for i, r := range requests {
		scaled[i] = r.Weight / maxWeight
		total += scaled[i]
	}

	plan := &Plan{Mode: ModePercentage, BatchSize: batchSize, Entries: make([]Entry, len(requests))}
	fractions := make([]float64, len(requests))
	assigned := 0
	for i, r := range requests {
		raw := (scaled[i] / total) * float64(batchSize)
		base := math.Floor(raw)
		plan.Entries[i] = Entry{TargetID: r.TargetID, Count: int(base)}
		fractions[i] = raw - base
		assigned += int(base)
	}

	// Largest fraction first; the stable sort keeps request order for ties.
	order := make([]int, len(requests))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]] > fractions[order[b]]
	})

	// Each floor is within one of its share, so the gap either way is
	// smaller than the number of targets.
	leftover := batchSize - assigned
	for i := 0; leftover > 0; i++ {
		plan.Entries[order[i%len(order)]].Count++
		leftover--
	}
	for i := len(order) - 1; i >= 0 && leftover < 0; i-- {
		if e := &plan.Entries[order[i]]; e.Count > 0 {
			e.Count--
			leftover++
		}
	}
	if leftover != 0 {
		return nil, fmt.Errorf("%w: could not apportion %d leads", ErrInvalidRequest, batchSize)
	}

	return plan, nil
}
