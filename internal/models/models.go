// Package models defines the core domain types for leaddesk.
package models

import "time"

// LeadStatus represents where a lead is in its lifecycle.
type LeadStatus string

const (
	LeadStatusFresh      LeadStatus = "fresh"
	LeadStatusInProgress LeadStatus = "in_progress"
	LeadStatusConverted  LeadStatus = "converted"
)

// ParseLeadStatus normalizes a lead status. "unconverted" is the legacy name
// for in_progress.
func ParseLeadStatus(s string) (LeadStatus, bool) {
	switch s {
	case "fresh":
		return LeadStatusFresh, true
	case "in_progress", "unconverted":
		return LeadStatusInProgress, true
	case "converted":
		return LeadStatusConverted, true
	}
	return "", false
}

// Role is the job an agent performs.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTelecaller Role = "telecaller"
	RoleAgent      Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTelecaller, RoleAgent:
		return true
	}
	return false
}

// AgentStatus controls whether an agent can receive new leads.
type AgentStatus string

const (
	AgentStatusActive      AgentStatus = "active"
	AgentStatusHold        AgentStatus = "hold"
	AgentStatusDeactivated AgentStatus = "deactivated"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusHold, AgentStatusDeactivated:
		return true
	}
	return false
}

// Lead is a prospective buyer imported from a spreadsheet.
type Lead struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Status       LeadStatus `json:"status"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	PropertyType string     `json:"property_type,omitempty"`
	BatchID      string     `json:"batch_id"`
	Seq          int        `json:"seq"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Agent is a user who can own leads (a target for distribution).
type Agent struct {
	ID        string      `json:"id"`
	Handle    string      `json:"handle"`
	Role      Role        `json:"role"`
	Status    AgentStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Batch is one imported set of leads.
type Batch struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	LeadCount int       `json:"lead_count"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLead is the input for a lead created during batch import.
type NewLead struct {
	Name         string
	Phone        string
	PropertyType string
}

// LeadAssignment stamps one lead with its owning agent.
type LeadAssignment struct {
	LeadID  string `json:"lead_id"`
	AgentID string `json:"agent_id"`
}

// Note stages recorded against a lead.
const (
	StageFresh        = "fresh"
	StageConnected    = "connected"
	StageNotConnected = "not_connected"
	StageConverted    = "converted"
)

// LeadNote is a call outcome or detail record captured by a telecaller.
type LeadNote struct {
	ID                 string    `json:"id"`
	LeadID             string    `json:"lead_id"`
	AuthorID           string    `json:"author_id,omitempty"`
	Stage              string    `json:"stage"`
	Remarks            string    `json:"remarks,omitempty"`
	LookingFor         string    `json:"looking_for,omitempty"`
	Budget             string    `json:"budget,omitempty"`
	LocationPreference string    `json:"location_preference,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Project is a property development that leads can visit.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	PropertyType string    `json:"property_type"`
	BudgetRange  string    `json:"budget_range"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SiteVisit is a scheduled project visit for a lead.
type SiteVisit struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	ProjectID string    `json:"project_id"`
	VisitDate string    `json:"visit_date"` // YYYY-MM-DD
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CallbackStatus is the state of a scheduled callback.
type CallbackStatus string

// Valid reports whether s is a known callback status.
func (s CallbackStatus) Valid() bool {
	switch s {
	case CallbackPending, CallbackDone, CallbackCanceled:
		return true
	}
	return false
}

const (
	CallbackPending  CallbackStatus = "pending"
	CallbackDone     CallbackStatus = "done"
	CallbackCanceled CallbackStatus = "canceled"
)

// Callback is a reminder for an agent to call a lead back.
type Callback struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	AgentID   string         `json:"agent_id"`
	DueAt     time.Time      `json:"due_at"`
	Note      string         `json:"note,omitempty"`
	Status    CallbackStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// DecisionRecord is an audit entry for a state-mutating action.
type DecisionRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentLoad summarizes the leads owned by one agent.
type AgentLoad struct {
	AgentID   string `json:"agent_id"`
	Handle    string `json:"handle"`
	Assigned  int    `json:"assigned"`
	Converted int    `json:"converted"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalLeads      int            `json:"total_leads"`
	AssignedLeads   int            `json:"assigned_leads"`
	UnassignedLeads int            `json:"unassigned_leads"`
	LeadsByStatus   map[string]int `json:"leads_by_status"`
	StageCounts     map[string]int `json:"stage_counts"`
	AgentsByRole    map[string]int `json:"agents_by_role"`
	Projects        int            `json:"projects"`
	SiteVisitsToday int            `json:"site_visits_today"`
	AgentLoads      []AgentLoad    `json:"agent_loads"`
}

// Report kinds for date-range exports.
const (
	ReportCalls      = "calls"
	ReportConnected  = "connected"
	ReportConverted  = "converted"
	ReportSiteVisits = "sitevisits"
)

// Report is a tabular export covering the dates Start through End
// (YYYY-MM-DD, inclusive).
type Report struct {
	Kind    string     `json:"kind"`
	Start   string     `json:"start"`
	End     string     `json:"end"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}
