// Package assignment applies an allocation plan to an ordered batch of leads.
package assignment

import (
	"context"
	"fmt"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/models"
)

// Stamp marks the lead at Index in the batch as owned by TargetID.
type Stamp struct {
	Index    int    `json:"index"`
	LeadID   string `json:"lead_id"`
	TargetID string `json:"target_id"`
}

// Walk consumes leads from the front of the batch, plan entry by plan entry,
// with a single cursor. The stamps for each target are contiguous and no
// lead is stamped twice. Leads past the planned total are not stamped.
func Walk(leadIDs []string, plan *allocation.Plan) ([]Stamp, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: nil plan", allocation.ErrInvalidRequest)
	}
	total := plan.Total()
	if total > len(leadIDs) {
		return nil, &ShortBatchError{Planned: total, Available: len(leadIDs)}
	}

	stamps := make([]Stamp, 0, total)
	cursor := 0
	for _, e := range plan.Entries {
		for n := 0; n < e.Count; n++ {
			stamps = append(stamps, Stamp{Index: cursor, LeadID: leadIDs[cursor], TargetID: e.TargetID})
			cursor++
		}
	}
	return stamps, nil
}

// Eligibility decides whether an agent may receive leads. When it refuses,
// reason explains why.
type Eligibility func(a models.Agent) (ok bool, reason string)

// ActiveOnly accepts agents whose status is active.
func ActiveOnly(a models.Agent) (bool, string) {
	if a.Status != models.AgentStatusActive {
		return false, fmt.Sprintf("status is %s", a.Status)
	}
	return true, ""
}

// HasRole accepts agents with one of the given roles.
func HasRole(roles ...models.Role) Eligibility {
	return func(a models.Agent) (bool, string) {
		for _, r := range roles {
			if a.Role == r {
				return true, ""
			}
		}
		return false, fmt.Sprintf("role %s not accepted", a.Role)
	}
}

// All combines predicates; the first refusal wins.
func All(preds ...Eligibility) Eligibility {
	return func(a models.Agent) (bool, string) {
		for _, p := range preds {
			if ok, reason := p(a); !ok {
				return false, reason
			}
		}
		return true, ""
	}
}

// CheckEligibility verifies every target named in the plan, including those
// planned for zero leads. Unknown targets are rejected rather than skipped.
func CheckEligibility(plan *allocation.Plan, agents map[string]models.Agent, eligible Eligibility) error {
	if eligible == nil {
		eligible = ActiveOnly
	}
	for _, e := range plan.Entries {
		agent, ok := agents[e.TargetID]
		if !ok {
			return &IneligibleTargetError{TargetID: e.TargetID, Reason: "unknown agent"}
		}
		if ok, reason := eligible(agent); !ok {
			return &IneligibleTargetError{TargetID: e.TargetID, Reason: reason}
		}
	}
	return nil
}

// Persister stores a batch's assignments atomically.
type Persister interface {
	AssignLeadsTx(ctx context.Context, batchID string, assignments []models.LeadAssignment) (int, error)
}

// Writer validates a plan and persists it for one batch.
type Writer struct {
	store    Persister
	eligible Eligibility
}

// NewWriter creates a writer. A nil predicate means ActiveOnly.
func NewWriter(p Persister, eligible Eligibility) *Writer {
	if eligible == nil {
		eligible = ActiveOnly
	}
	return &Writer{store: p, eligible: eligible}
}

// WithEligibility returns a copy of w that uses a different predicate.
func (w *Writer) WithEligibility(eligible Eligibility) *Writer {
	return NewWriter(w.store, eligible)
}

// Apply checks eligibility, walks the batch and persists the stamps. Nothing
// is written unless every check passes.
func (w *Writer) Apply(ctx context.Context, batchID string, leadIDs []string, plan *allocation.Plan, agents map[string]models.Agent) ([]Stamp, error) {
	if err := CheckEligibility(plan, agents, w.eligible); err != nil {
		return nil, err
	}

	stamps, err := Walk(leadIDs, plan)
	if err != nil {
		return nil, err
	}
	if len(stamps) == 0 {
		return stamps, nil
	}

	assignments := make([]models.LeadAssignment, len(stamps))
	for i, s := range stamps {
		assignments[i] = models.LeadAssignment{LeadID: s.LeadID, AgentID: s.TargetID}
	}

	applied, err := w.store.AssignLeadsTx(ctx, batchID, assignments)
	if err != nil {
		return nil, err
	}
	if applied != len(assignments) {
		return nil, &ShortBatchError{Planned: len(assignments), Available: applied}
	}
	return stamps, nil
}
