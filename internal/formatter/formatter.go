// Package formatter renders allocation plans and CRM reports.
package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/leaddesk/internal/allocation"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// Row is one plan entry with the batch positions it will cover.
type Row struct {
	TargetID string `json:"target_id" yaml:"target_id"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Count    int    `json:"count" yaml:"count"`
	// From and To are 1-based batch positions; both are 0 for an empty share.
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// PlanView is the shape rendered by every format.
type PlanView struct {
	Mode      allocation.Mode `json:"mode" yaml:"mode"`
	BatchSize int             `json:"batch_size" yaml:"batch_size"`
	Assigned  int             `json:"assigned" yaml:"assigned"`
	Leftover  int             `json:"leftover" yaml:"leftover"`
	Rows      []Row           `json:"rows" yaml:"rows"`
}

// NewPlanView walks the plan's entries in order to compute batch ranges.
// labels optionally maps target IDs to display names.
func NewPlanView(plan *allocation.Plan, labels map[string]string) *PlanView {
	v := &PlanView{
		Mode:      plan.Mode,
		BatchSize: plan.BatchSize,
		Assigned:  plan.Total(),
		Leftover:  plan.Leftover,
		Rows:      make([]Row, len(plan.Entries)),
	}
	cursor := 0
	for i, e := range plan.Entries {
		row := Row{TargetID: e.TargetID, Label: labels[e.TargetID], Count: e.Count}
		if e.Count > 0 {
			row.From = cursor + 1
			row.To = cursor + e.Count
		}
		cursor += e.Count
		v.Rows[i] = row
	}
	return v
}

// Format renders the plan in the named format.
func Format(plan *allocation.Plan, labels map[string]string, format string) (string, error) {
	v := NewPlanView(plan, labels)
	switch strings.ToLower(format) {
	case "", FormatText:
		return formatText(v), nil
	case FormatJSON:
		return formatJSON(v)
	case FormatYAML:
		return formatYAML(v)
	case FormatCSV:
		return formatCSV(v), nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json, yaml or csv)", format)
}

func formatText(v *PlanView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode=%s batch=%d assigned=%d leftover=%d\n", v.Mode, v.BatchSize, v.Assigned, v.Leftover)

	for _, r := range v.Rows {
		name := r.TargetID
		if r.Label != "" {
			name = fmt.Sprintf("%s (%s)", r.Label, r.TargetID)
		}
		if r.Count == 0 {
			fmt.Fprintf(&sb, "  %-30s %5d\n", name, 0)
			continue
		}
		fmt.Fprintf(&sb, "  %-30s %5d  leads %d-%d\n", name, r.Count, r.From, r.To)
	}
	if v.Leftover > 0 {
		fmt.Fprintf(&sb, "  %-30s %5d  leads %d-%d\n", "(unassigned)", v.Leftover, v.Assigned+1, v.BatchSize)
	}
	return sb.String()
}

func formatJSON(v *PlanView) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func formatYAML(v *PlanView) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatCSV(v *PlanView) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write([]string{"target_id", "label", "count", "from", "to"})
	for _, r := range v.Rows {
		w.Write([]string{r.TargetID, r.Label, strconv.Itoa(r.Count), strconv.Itoa(r.From), strconv.Itoa(r.To)})
	}
	w.Flush()
	return sb.String()
}
