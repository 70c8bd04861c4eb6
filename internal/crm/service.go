// Package crm provides the lead management service and its HTTP API.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/assignment"
	"github.com/fentz26/leaddesk/internal/audit"
	"github.com/fentz26/leaddesk/internal/importer"
	"github.com/fentz26/leaddesk/internal/metrics"
	"github.com/fentz26/leaddesk/internal/models"
	"github.com/fentz26/leaddesk/internal/store"
)

// Options tunes distribution behaviour.
type Options struct {
	// DefaultMode applies when an assign request names no mode. Empty means
	// the mode is inferred from the weights.
	DefaultMode allocation.Mode
	// EligibleRoles limits which roles can receive leads. Empty allows any
	// active agent.
	EligibleRoles []models.Role
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service provides the CRM business logic.
type Service struct {
	store    *store.Store
	audit    *audit.Recorder
	writer   *assignment.Writer
	eligible assignment.Eligibility
	opts     Options
}

// NewService creates a new CRM service.
func NewService(s *store.Store, rec *audit.Recorder, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var eligible assignment.Eligibility = assignment.ActiveOnly
	if len(opts.EligibleRoles) > 0 {
		eligible = assignment.All(assignment.ActiveOnly, assignment.HasRole(opts.EligibleRoles...))
	}
	return &Service{
		store:    s,
		audit:    rec,
		writer:   assignment.NewWriter(s, eligible),
		eligible: eligible,
		opts:     opts,
	}
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Agent Operations ---

// CreateAgent adds an agent. Managers may only add telecallers and field
// agents.
func (s *Service) CreateAgent(ctx context.Context, actor Actor, handle string, role models.Role) (*models.Agent, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if actor.Role == models.RoleManager && (role == models.RoleAdmin || role == models.RoleManager) {
		return nil, fmt.Errorf("%w: managers cannot create %s accounts", ErrForbidden, role)
	}

	agent, err := s.store.CreateAgent(ctx, handle, role)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "agent.create", actor.ID, map[string]string{"handle": handle, "role": string(role)}, audit.OutcomeSuccess, agent.ID, "")
	zap.L().Info("agent created", zap.String("agent_id", agent.ID), zap.String("handle", handle), zap.String("role", string(role)))
	return agent, nil
}

// ListAgents returns agents filtered by role and status.
func (s *Service) ListAgents(ctx context.Context, role models.Role, status models.AgentStatus) ([]models.Agent, error) {
	if role != "" && !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.ListAgents(ctx, role, status)
}

// SetAgentStatus activates, holds or deactivates an agent.
func (s *Service) SetAgentStatus(ctx context.Context, actor Actor, id string, status models.AgentStatus) error {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.store.SetAgentStatus(ctx, id, status); err != nil {
		return err
	}

	s.audit.Record(ctx, "agent.status", actor.ID, map[string]string{"id": id, "status": string(status)}, audit.OutcomeSuccess, id, "")
	zap.L().Info("agent status changed", zap.String("agent_id", id), zap.String("status", string(status)))
	return nil
}

// DeleteAgent removes an agent and returns its leads to the unassigned
// pool. It reports how many leads were released.
func (s *Service) DeleteAgent(ctx context.Context, actor Actor, id string) (int, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return 0, err
	}
	if id == actor.ID {
		return 0, fmt.Errorf("%w: cannot delete yourself", ErrInvalidInput)
	}

	released, err := s.store.DeleteAgent(ctx, id)
	if err != nil {
		return 0, err
	}

	s.audit.Record(ctx, "agent.delete", actor.ID, map[string]string{"id": id}, audit.OutcomeSuccess, id, fmt.Sprintf("released=%d", released))
	zap.L().Info("agent deleted", zap.String("agent_id", id), zap.Int("released_leads", released))
	return released, nil
}

// --- Batch Operations ---

// ImportResult describes a created batch.
type ImportResult struct {
	Batch        *models.Batch `json:"batch"`
	Imported     int           `json:"imported"`
	Skipped      int           `json:"skipped"`
	AutoAssigned *AssignResult `json:"auto_assigned,omitempty"`
}

// ImportBatch creates a batch of fresh leads. With autoAssign the leads are
// spread round-robin over active managers, unless there are fewer leads
// than managers, in which case they stay unassigned.
func (s *Service) ImportBatch(ctx context.Context, actor Actor, source string, rows *importer.Result, autoAssign bool) (*ImportResult, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}
	if rows == nil || len(rows.Rows) == 0 {
		return nil, fmt.Errorf("%w: no usable rows in %s", ErrInvalidInput, source)
	}

	var managers []models.Agent
	if autoAssign {
		var err error
		managers, err = s.store.ListAgents(ctx, models.RoleManager, models.AgentStatusActive)
		if err != nil {
			return nil, err
		}
		if len(managers) == 0 {
			return nil, fmt.Errorf("%w: no active managers for auto-assign", ErrInvalidInput)
		}
	}

	batch, leads, err := s.store.CreateBatchTx(ctx, source, actor.ID, rows.NewLeads())
	if err != nil {
		return nil, err
	}
	metrics.LeadsImportedTotal.Add(float64(len(leads)))

	result := &ImportResult{Batch: batch, Imported: len(leads), Skipped: rows.Skipped}
	s.audit.Record(ctx, "batch.import", actor.ID, map[string]any{"source": source, "rows": len(rows.Rows), "auto_assign": autoAssign}, audit.OutcomeSuccess, batch.ID, "")
	zap.L().Info("batch imported",
		zap.String("batch_id", batch.ID),
		zap.String("source", source),
		zap.Int("imported", len(leads)),
		zap.Int("skipped", rows.Skipped),
	)

	if !autoAssign {
		return result, nil
	}
	if len(leads) < len(managers) {
		zap.L().Info("auto-assign skipped: fewer leads than managers",
			zap.String("batch_id", batch.ID),
			zap.Int("leads", len(leads)),
			zap.Int("managers", len(managers)),
		)
		return result, nil
	}

	assigned, err := s.autoAssign(ctx, batch.ID, leads, managers)
	if err != nil {
		metrics.AssignmentFailuresTotal.WithLabelValues(failureKind(err)).Inc()
		return nil, fmt.Errorf("batch %s imported but auto-assign failed: %w", batch.ID, err)
	}
	result.AutoAssigned = assigned
	s.recordAssigned(ctx, actor, assigned)
	return result, nil
}

func (s *Service) autoAssign(ctx context.Context, batchID string, leads []models.Lead, managers []models.Agent) (*AssignResult, error) {
	ids := make([]string, len(managers))
	agents := make(map[string]models.Agent, len(managers))
	for i, m := range managers {
		ids[i] = m.ID
		agents[m.ID] = m
	}

	plan, err := allocation.RoundRobin(len(leads), ids)
	if err != nil {
		return nil, err
	}

	leadIDs := make([]string, len(leads))
	for i, l := range leads {
		leadIDs[i] = l.ID
	}

	w := s.writer.WithEligibility(assignment.All(assignment.ActiveOnly, assignment.HasRole(models.RoleManager)))
	if _, err := w.Apply(ctx, batchID, leadIDs, plan, agents); err != nil {
		return nil, err
	}
	return newAssignResult(batchID, plan), nil
}

// ListBatches returns imported batches, newest first.
func (s *Service) ListBatches(ctx context.Context) ([]models.Batch, error) {
	return s.store.ListBatches(ctx)
}

// AssignRequest asks for a batch's unassigned leads to be distributed.
type AssignRequest struct {
	BatchID string `json:"batch_id"`
	// Mode is count or percentage. Empty falls back to the configured
	// default, then to inference from the weights.
	Mode        string               `json:"mode,omitempty"`
	Assignments []allocation.Request `json:"assignments"`
	// Role optionally restricts targets to one role.
	Role models.Role `json:"role,omitempty"`
}

// AssignResult reports a completed batch assignment.
type AssignResult struct {
	BatchID  string           `json:"batch_id"`
	Mode     allocation.Mode  `json:"mode"`
	Plan     *allocation.Plan `json:"plan"`
	Assigned int              `json:"assigned"`
	Leftover int              `json:"leftover"`
}

func newAssignResult(batchID string, plan *allocation.Plan) *AssignResult {
	return &AssignResult{
		BatchID:  batchID,
		Mode:     plan.Mode,
		Plan:     plan,
		Assigned: plan.Total(),
		Leftover: plan.Leftover,
	}
}

func (s *Service) resolveMode(mode string, requests []allocation.Request) (allocation.Mode, error) {
	if strings.TrimSpace(mode) != "" {
		return allocation.ParseMode(mode)
	}
	if s.opts.DefaultMode != "" {
		return s.opts.DefaultMode, nil
	}
	return allocation.InferMode(requests), nil
}

// planBatch loads the batch's unassigned leads in batch order and plans
// them.
func (s *Service) planBatch(ctx context.Context, batchID, mode string, requests []allocation.Request) (*allocation.Plan, []string, error) {
	if batchID == "" {
		return nil, nil, fmt.Errorf("%w: batch id is required", allocation.ErrInvalidRequest)
	}
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if batch == nil {
		return nil, nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	leadIDs, err := s.store.UnassignedLeadIDs(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}

	m, err := s.resolveMode(mode, requests)
	if err != nil {
		return nil, nil, err
	}
	plan, err := allocation.Allocate(len(leadIDs), requests, m)
	if err != nil {
		return nil, nil, err
	}
	return plan, leadIDs, nil
}

// PreviewAssignment plans a batch without writing anything.
func (s *Service) PreviewAssignment(ctx context.Context, batchID, mode string, requests []allocation.Request) (*allocation.Plan, error) {
	plan, _, err := s.planBatch(ctx, batchID, mode, requests)
	return plan, err
}

// AssignBatch plans the batch, checks every target and stamps the leads in
// one transaction. Nothing is written when any step fails.
func (s *Service) AssignBatch(ctx context.Context, actor Actor, req AssignRequest) (*AssignResult, error) {
	timer := prometheus.NewTimer(metrics.AssignmentDurationSeconds)
	defer timer.ObserveDuration()

	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}

	res, err := s.assignBatch(ctx, req)
	if err != nil {
		kind := failureKind(err)
		metrics.AssignmentFailuresTotal.WithLabelValues(kind).Inc()
		s.audit.Record(ctx, "batch.assign", actor.ID, req, audit.OutcomeFailure, req.BatchID, err.Error())
		zap.L().Warn("batch assignment failed",
			zap.String("batch_id", req.BatchID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return nil, err
	}

	s.recordAssigned(ctx, actor, res)
	return res, nil
}

func (s *Service) assignBatch(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	w := s.writer
	if req.Role != "" {
		if !req.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", allocation.ErrInvalidRequest, req.Role)
		}
		w = w.WithEligibility(assignment.All(s.eligible, assignment.HasRole(req.Role)))
	}

	plan, leadIDs, err := s.planBatch(ctx, req.BatchID, req.Mode, req.Assignments)
	if err != nil {
		return nil, err
	}

	agents, err := s.store.GetAgents(ctx, plan.TargetIDs())
	if err != nil {
		return nil, err
	}

	if _, err := w.Apply(ctx, req.BatchID, leadIDs, plan, agents); err != nil {
		return nil, err
	}
	return newAssignResult(req.BatchID, plan), nil
}

func (s *Service) recordAssigned(ctx context.Context, actor Actor, res *AssignResult) {
	metrics.LeadsAssignedTotal.WithLabelValues(string(res.Mode)).Add(float64(res.Assigned))
	metrics.AssignmentLeftover.Set(float64(res.Leftover))

	s.audit.Record(ctx, "batch.assign", actor.ID, res.Plan, audit.OutcomeSuccess, res.BatchID,
		fmt.Sprintf("assigned=%d leftover=%d", res.Assigned, res.Leftover))
	zap.L().Info("batch assigned",
		zap.String("batch_id", res.BatchID),
		zap.String("mode", string(res.Mode)),
		zap.Int("assigned", res.Assigned),
		zap.Int("leftover", res.Leftover),
	)
}

// failureKind labels an assignment error for metrics.
func failureKind(err error) string {
	switch {
	case errors.Is(err, allocation.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, allocation.ErrOverAssignment):
		return "over_assignment"
	case errors.Is(err, assignment.ErrIneligibleTarget), errors.Is(err, store.ErrAgentUnavailable):
		return "ineligible_target"
	case errors.Is(err, assignment.ErrShortBatch):
		return "short_batch"
	case errors.Is(err, store.ErrLeadAlreadyAssigned):
		return "conflict"
	case errors.Is(err, store.ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "other"
}

// --- Lead Operations ---

// ListLeads returns leads matching the filter. Telecallers and field agents
// only see their own leads.
func (s *Service) ListLeads(ctx context.Context, actor Actor, f store.LeadFilter) ([]models.Lead, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		f.AssignedTo = actor.ID
		f.Unassigned = false
	}
	return s.store.ListLeads(ctx, f)
}

// LeadDetail is a lead with its note history.
type LeadDetail struct {
	models.Lead
	Notes []models.LeadNote `json:"notes"`
}

// GetLead returns a lead and its notes.
func (s *Service) GetLead(ctx context.Context, actor Actor, id string) (*LeadDetail, error) {
	lead, err := s.leadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LeadDetail{Lead: *lead, Notes: notes}, nil
}

// leadFor loads a lead the actor may work on.
func (s *Service) leadFor(ctx context.Context, actor Actor, id string) (*models.Lead, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	if !actor.IsStaff() && lead.AssignedTo != actor.ID {
		return nil, fmt.Errorf("%w: lead %s is not assigned to you", ErrForbidden, id)
	}
	return lead, nil
}

// RecordCallOutcome logs a call attempt. A connected call moves the lead to
// in_progress; an unanswered one only adds a note.
func (s *Service) RecordCallOutcome(ctx context.Context, actor Actor, leadID string, connected bool, reason string) (*models.LeadNote, error) {
	lead, err := s.leadFor(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}

	note := models.LeadNote{LeadID: leadID, AuthorID: actor.ID}
	status := lead.Status
	if connected {
		note.Stage = models.StageConnected
		note.Remarks = "call connected"
		if status != models.LeadStatusConverted {
			status = models.LeadStatusInProgress
		}
	} else {
		note.Stage = models.StageNotConnected
		note.Remarks = strings.TrimSpace(reason)
		if note.Remarks == "" {
			note.Remarks = "no reason"
		}
	}

	saved, err := s.store.RecordNoteTx(ctx, note, status)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "lead.outcome", actor.ID, map[string]any{"lead_id": leadID, "connected": connected, "reason": reason}, audit.OutcomeSuccess, leadID, note.Stage)
	zap.L().Info("call outcome recorded", zap.String("lead_id", leadID), zap.String("stage", note.Stage), zap.String("actor_id", actor.ID))
	return saved, nil
}

// LeadDetailsInput is the telecaller's qualification form for a lead.
type LeadDetailsInput struct {
	Stage              string `json:"stage"`
	Remarks            string `json:"remarks,omitempty"`
	LookingFor         string `json:"looking_for,omitempty"`
	Budget             string `json:"budget,omitempty"`
	LocationPreference string `json:"location_preference,omitempty"`
}

// SaveLeadDetails stores a qualification note. The lead becomes
// in_progress, or converted when the stage says so.
func (s *Service) SaveLeadDetails(ctx context.Context, actor Actor, leadID string, in LeadDetailsInput) (*models.LeadNote, error) {
	stage := strings.ToLower(strings.TrimSpace(in.Stage))
	if stage == "" {
		return nil, fmt.Errorf("%w: stage is required", ErrInvalidInput)
	}
	if _, err := s.leadFor(ctx, actor, leadID); err != nil {
		return nil, err
	}

	status := models.LeadStatusInProgress
	if stage == models.StageConverted {
		status = models.LeadStatusConverted
	}

	saved, err := s.store.RecordNoteTx(ctx, models.LeadNote{
		LeadID:             leadID,
		AuthorID:           actor.ID,
		Stage:              stage,
		Remarks:            in.Remarks,
		LookingFor:         in.LookingFor,
		Budget:             in.Budget,
		LocationPreference: in.LocationPreference,
	}, status)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "lead.details", actor.ID, in, audit.OutcomeSuccess, leadID, stage)
	return saved, nil
}

// --- Project and Site Visit Operations ---

// CreateProject adds a project.
func (s *Service) CreateProject(ctx context.Context, actor Actor, p models.Project) (*models.Project, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "project.create", actor.ID, p, audit.OutcomeSuccess, created.ID, "")
	return created, nil
}

// ListProjects returns all projects.
func (s *Service) ListProjects(ctx context.Context, actor Actor) ([]models.Project, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	return s.store.ListProjects(ctx)
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, actor Actor, id string) (*models.Project, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// ProjectUpdate changes the fields that are set.
type ProjectUpdate struct {
	Name         *string `json:"name,omitempty"`
	Location     *string `json:"location,omitempty"`
	PropertyType *string `json:"property_type,omitempty"`
	BudgetRange  *string `json:"budget_range,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// UpdateProject edits a project. Admins and managers only.
func (s *Service) UpdateProject(ctx context.Context, actor Actor, id string, in ProjectUpdate) (*models.Project, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}
	p, err := s.GetProject(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
		}
	}
	setString(&p.Location, in.Location)
	setString(&p.PropertyType, in.PropertyType)
	setString(&p.BudgetRange, in.BudgetRange)
	setString(&p.Description, in.Description)

	if err := s.store.UpdateProject(ctx, *p); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "project.update", actor.ID, in, audit.OutcomeSuccess, id, "")
	return p, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// SuggestProjects returns projects matching the lead's latest stated
// preferences. When nothing matches, every project is returned.
func (s *Service) SuggestProjects(ctx context.Context, actor Actor, leadID string) ([]models.Project, error) {
	if _, err := s.leadFor(ctx, actor, leadID); err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.ListNotes(ctx, leadID)
	if err != nil {
		return nil, err
	}

	var pref models.LeadNote
	for i := len(notes) - 1; i >= 0; i-- {
		n := notes[i]
		if n.LookingFor != "" || n.Budget != "" || n.LocationPreference != "" {
			pref = n
			break
		}
	}

	var matched []models.Project
	for _, p := range projects {
		if containsFold(p.Location, pref.LocationPreference) &&
			containsFold(p.PropertyType, pref.LookingFor) &&
			containsFold(p.BudgetRange, pref.Budget) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return projects, nil
	}
	return matched, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// ScheduleSiteVisit books a project visit for a lead. date is YYYY-MM-DD.
func (s *Service) ScheduleSiteVisit(ctx context.Context, actor Actor, leadID, projectID, date, notes string) (*models.SiteVisit, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("%w: visit date %q is not YYYY-MM-DD", ErrInvalidInput, date)
	}
	if _, err := s.leadFor(ctx, actor, leadID); err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	visit, err := s.store.CreateSiteVisit(ctx, models.SiteVisit{LeadID: leadID, ProjectID: projectID, VisitDate: date, Notes: notes})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "sitevisit.schedule", actor.ID, visit, audit.OutcomeSuccess, leadID, date)
	return visit, nil
}

// Site visit scopes relative to today.
const (
	ScopeAll      = "all"
	ScopeUpcoming = "upcoming"
	ScopePast     = "past"
	ScopeToday    = "today"
)

// SiteVisitQuery selects visits. Date pins a single day; otherwise Scope
// windows around today. AgentID keeps visits for that agent's leads.
type SiteVisitQuery struct {
	Date    string
	Scope   string
	AgentID string
}

// ListSiteVisits returns visits. Telecallers and field agents only see
// visits for their own leads.
func (s *Service) ListSiteVisits(ctx context.Context, actor Actor, q SiteVisitQuery) ([]models.SiteVisit, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	f := store.SiteVisitFilter{Date: q.Date, AssignedTo: q.AgentID}
	if !actor.IsStaff() {
		f.AssignedTo = actor.ID
	}

	today := s.opts.Now().Format(time.DateOnly)
	switch q.Scope {
	case "", ScopeAll:
	case ScopeUpcoming:
		f.From = today
	case ScopePast:
		f.Before = today
	case ScopeToday:
		f.Date = today
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, q.Scope)
	}
	return s.store.ListSiteVisits(ctx, f)
}

// SiteVisitUpdate changes the fields that are set.
type SiteVisitUpdate struct {
	VisitDate *string `json:"visit_date,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
}

// UpdateSiteVisit reschedules or edits a visit on a lead the actor works.
func (s *Service) UpdateSiteVisit(ctx context.Context, actor Actor, id string, in SiteVisitUpdate) (*models.SiteVisit, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	v, err := s.store.GetSiteVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("site visit %s: %w", id, ErrNotFound)
	}
	if _, err := s.leadFor(ctx, actor, v.LeadID); err != nil {
		return nil, err
	}

	if in.VisitDate != nil {
		if _, err := time.Parse(time.DateOnly, *in.VisitDate); err != nil {
			return nil, fmt.Errorf("%w: visit date %q is not YYYY-MM-DD", ErrInvalidInput, *in.VisitDate)
		}
		v.VisitDate = *in.VisitDate
	}
	if in.Notes != nil {
		v.Notes = *in.Notes
	}
	if in.ProjectID != nil && *in.ProjectID != v.ProjectID {
		project, err := s.store.GetProject(ctx, *in.ProjectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, fmt.Errorf("project %s: %w", *in.ProjectID, ErrNotFound)
		}
		v.ProjectID = project.ID
	}

	if err := s.store.UpdateSiteVisit(ctx, *v); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "sitevisit.update", actor.ID, in, audit.OutcomeSuccess, v.LeadID, v.VisitDate)
	return v, nil
}

// --- Callback Operations ---

// CreateCallback schedules a callback. The agent defaults to the actor.
func (s *Service) CreateCallback(ctx context.Context, actor Actor, leadID, agentID string, dueAt time.Time, note string) (*models.Callback, error) {
	if dueAt.IsZero() {
		return nil, fmt.Errorf("%w: due time is required", ErrInvalidInput)
	}
	if _, err := s.leadFor(ctx, actor, leadID); err != nil {
		return nil, err
	}
	if agentID == "" {
		agentID = actor.ID
	}
	if !actor.IsStaff() && agentID != actor.ID {
		return nil, fmt.Errorf("%w: cannot schedule callbacks for another agent", ErrForbidden)
	}

	cb, err := s.store.CreateCallback(ctx, models.Callback{LeadID: leadID, AgentID: agentID, DueAt: dueAt, Note: note})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "callback.create", actor.ID, cb, audit.OutcomeSuccess, cb.ID, "")
	return cb, nil
}

// ListCallbacks returns callbacks by agent and status. Non-staff actors only
// see their own.
func (s *Service) ListCallbacks(ctx context.Context, actor Actor, agentID string, status models.CallbackStatus) ([]models.Callback, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		agentID = actor.ID
	}
	return s.store.ListCallbacks(ctx, agentID, status)
}

// CompleteCallback marks a pending callback done.
func (s *Service) CompleteCallback(ctx context.Context, actor Actor, id string) error {
	return s.finishCallback(ctx, actor, id, models.CallbackDone)
}

// CancelCallback cancels a pending callback.
func (s *Service) CancelCallback(ctx context.Context, actor Actor, id string) error {
	return s.finishCallback(ctx, actor, id, models.CallbackCanceled)
}

// CallbackUpdate changes the fields that are set.
type CallbackUpdate struct {
	DueAt  *time.Time             `json:"due_at,omitempty"`
	Note   *string                `json:"note,omitempty"`
	Status *models.CallbackStatus `json:"status,omitempty"`
}

// UpdateCallback reschedules a callback or edits its note or status.
func (s *Service) UpdateCallback(ctx context.Context, actor Actor, id string, in CallbackUpdate) (*models.Callback, error) {
	if err := requireRole(actor); err != nil {
		return nil, err
	}
	cb, err := s.store.GetCallback(ctx, id)
	if err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, fmt.Errorf("callback %s: %w", id, ErrNotFound)
	}
	if !actor.IsStaff() && cb.AgentID != actor.ID {
		return nil, fmt.Errorf("%w: callback %s belongs to another agent", ErrForbidden, id)
	}

	if in.DueAt != nil {
		if in.DueAt.IsZero() {
			return nil, fmt.Errorf("%w: due time is required", ErrInvalidInput)
		}
		cb.DueAt = in.DueAt.UTC()
	}
	if in.Note != nil {
		cb.Note = *in.Note
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown callback status %q", ErrInvalidInput, *in.Status)
		}
		cb.Status = *in.Status
	}

	if err := s.store.UpdateCallback(ctx, *cb); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "callback.update", actor.ID, in, audit.OutcomeSuccess, id, string(cb.Status))
	return cb, nil
}

func (s *Service) finishCallback(ctx context.Context, actor Actor, id string, status models.CallbackStatus) error {
	if err := requireRole(actor); err != nil {
		return err
	}
	cb, err := s.store.GetCallback(ctx, id)
	if err != nil {
		return err
	}
	if cb == nil {
		return fmt.Errorf("callback %s: %w", id, ErrNotFound)
	}
	if !actor.IsStaff() && cb.AgentID != actor.ID {
		return fmt.Errorf("%w: callback %s belongs to another agent", ErrForbidden, id)
	}
	if err := s.store.SetCallbackStatus(ctx, id, status); err != nil {
		return err
	}
	s.audit.Record(ctx, "callback."+string(status), actor.ID, map[string]string{"id": id}, audit.OutcomeSuccess, id, "")
	return nil
}

// --- Stats ---

// Stats returns the dashboard summary. Admins and managers only.
func (s *Service) Stats(ctx context.Context, actor Actor) (*models.Stats, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}
	return s.store.Stats(ctx, s.opts.Now().Format(time.DateOnly))
}

// Decisions returns recent audit records, optionally for one subject.
func (s *Service) Decisions(ctx context.Context, actor Actor, subjectID string, limit int) ([]models.DecisionRecord, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListDecisions(ctx, subjectID, limit)
}
