package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/fentz26/leaddesk/internal/models"
)

// --- Lead Note Operations ---

// RecordNoteTx appends a note to a lead and moves the lead to status in the
// same transaction.
func (s *Store) RecordNoteTx(ctx context.Context, note models.LeadNote, status models.LeadStatus) (*models.LeadNote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	note.ID = uuid.New().String()
	note.CreatedAt = now

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, note.LeadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead status %s", note.LeadID)
	}
	if err := checkRowsAffected(res, "lead", note.LeadID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lead_notes (id, lead_id, author_id, stage, remarks, looking_for, budget, location_preference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.LeadID, note.AuthorID, note.Stage, note.Remarks, note.LookingFor, note.Budget, note.LocationPreference, note.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead note")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit transaction")
	}
	return &note, nil
}

// ListNotes returns a lead's notes, oldest first.
func (s *Store) ListNotes(ctx context.Context, leadID string) ([]models.LeadNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, author_id, stage, remarks, looking_for, budget, location_preference, created_at
		 FROM lead_notes WHERE lead_id = ? ORDER BY created_at, rowid`, leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query notes for lead %s", leadID)
	}
	defer rows.Close()

	var notes []models.LeadNote
	for rows.Next() {
		var n models.LeadNote
		var author, remarks, lookingFor, budget, location sql.NullString
		if err := rows.Scan(&n.ID, &n.LeadID, &author, &n.Stage, &remarks, &lookingFor, &budget, &location, &n.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead note")
		}
		n.AuthorID = author.String
		n.Remarks = remarks.String
		n.LookingFor = lookingFor.String
		n.Budget = budget.String
		n.LocationPreference = location.String
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- Project Operations ---

const projectColumns = `id, name, location, property_type, budget_range, description, created_at`

func scanProject(row scannable) (*models.Project, error) {
	var p models.Project
	var location, propertyType, budget, description sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &location, &propertyType, &budget, &description, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Location = location.String
	p.PropertyType = propertyType.String
	p.BudgetRange = budget.String
	p.Description = description.String
	return &p, nil
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (*models.Project, error) {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Location, p.PropertyType, p.BudgetRange, p.Description, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert project")
	}
	return &p, nil
}

// GetProject retrieves a project by ID. It returns nil when no project
// matches.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query project %s", id)
	}
	return p, nil
}

// UpdateProject overwrites a project's descriptive fields.
func (s *Store) UpdateProject(ctx context.Context, p models.Project) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, location = ?, property_type = ?, budget_range = ?, description = ? WHERE id = ?`,
		p.Name, p.Location, p.PropertyType, p.BudgetRange, p.Description, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update project %s", p.ID)
	}
	return checkRowsAffected(res, "project", p.ID)
}

// ListProjects returns all projects by name.
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query projects")
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// --- Site Visit Operations ---

// CreateSiteVisit schedules a project visit for a lead.
func (s *Store) CreateSiteVisit(ctx context.Context, v models.SiteVisit) (*models.SiteVisit, error) {
	v.ID = uuid.New().String()
	v.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_visits (id, lead_id, project_id, visit_date, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.LeadID, v.ProjectID, v.VisitDate, v.Notes, v.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert site visit")
	}
	return &v, nil
}

const siteVisitColumns = `v.id, v.lead_id, v.project_id, v.visit_date, v.notes, v.created_at`

func scanSiteVisit(row scannable) (*models.SiteVisit, error) {
	var v models.SiteVisit
	var notes sql.NullString
	if err := row.Scan(&v.ID, &v.LeadID, &v.ProjectID, &v.VisitDate, &notes, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Notes = notes.String
	return &v, nil
}

// GetSiteVisit retrieves a visit by ID. It returns nil when no visit
// matches.
func (s *Store) GetSiteVisit(ctx context.Context, id string) (*models.SiteVisit, error) {
	v, err := scanSiteVisit(s.db.QueryRowContext(ctx, `SELECT `+siteVisitColumns+` FROM site_visits v WHERE v.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query site visit %s", id)
	}
	return v, nil
}

// UpdateSiteVisit overwrites a visit's date, notes and project.
func (s *Store) UpdateSiteVisit(ctx context.Context, v models.SiteVisit) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE site_visits SET visit_date = ?, notes = ?, project_id = ? WHERE id = ?`,
		v.VisitDate, v.Notes, v.ProjectID, v.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update site visit %s", v.ID)
	}
	return checkRowsAffected(res, "site visit", v.ID)
}

// SiteVisitFilter narrows ListSiteVisits. Dates are YYYY-MM-DD; empty
// fields match everything.
type SiteVisitFilter struct {
	Date string
	// From and Before bound the visit date: From is inclusive, Before is
	// exclusive.
	From   string
	Before string
	// AssignedTo keeps visits for leads owned by this agent.
	AssignedTo string
}

// ListSiteVisits returns visits matching the filter, earliest first.
func (s *Store) ListSiteVisits(ctx context.Context, f SiteVisitFilter) ([]models.SiteVisit, error) {
	query := `SELECT ` + siteVisitColumns + ` FROM site_visits v`
	var args []any
	if f.AssignedTo != "" {
		query += ` JOIN leads l ON l.id = v.lead_id AND l.assigned_to = ?`
		args = append(args, f.AssignedTo)
	}
	query += ` WHERE 1=1`
	if f.Date != "" {
		query += ` AND v.visit_date = ?`
		args = append(args, f.Date)
	}
	if f.From != "" {
		query += ` AND v.visit_date >= ?`
		args = append(args, f.From)
	}
	if f.Before != "" {
		query += ` AND v.visit_date < ?`
		args = append(args, f.Before)
	}
	query += ` ORDER BY v.visit_date, v.created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query site visits")
	}
	defer rows.Close()

	var visits []models.SiteVisit
	for rows.Next() {
		v, err := scanSiteVisit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site visit")
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

// --- Callback Operations ---

// CreateCallback schedules a pending callback.
func (s *Store) CreateCallback(ctx context.Context, cb models.Callback) (*models.Callback, error) {
	cb.ID = uuid.New().String()
	cb.Status = models.CallbackPending
	cb.CreatedAt = time.Now().UTC()
	cb.DueAt = cb.DueAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO callbacks (id, lead_id, agent_id, due_at, note, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cb.ID, cb.LeadID, cb.AgentID, cb.DueAt, cb.Note, cb.Status, cb.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert callback")
	}
	return &cb, nil
}

const callbackColumns = `id, lead_id, agent_id, due_at, note, status, created_at`

func scanCallback(row scannable) (*models.Callback, error) {
	var cb models.Callback
	var note sql.NullString
	if err := row.Scan(&cb.ID, &cb.LeadID, &cb.AgentID, &cb.DueAt, &note, &cb.Status, &cb.CreatedAt); err != nil {
		return nil, err
	}
	cb.Note = note.String
	return &cb, nil
}

// GetCallback retrieves a callback by ID. It returns nil when no callback
// matches.
func (s *Store) GetCallback(ctx context.Context, id string) (*models.Callback, error) {
	cb, err := scanCallback(s.db.QueryRowContext(ctx, `SELECT `+callbackColumns+` FROM callbacks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query callback %s", id)
	}
	return cb, nil
}

// ListCallbacks returns callbacks ordered by due time, optionally filtered
// by agent and status.
func (s *Store) ListCallbacks(ctx context.Context, agentID string, status models.CallbackStatus) ([]models.Callback, error) {
	query := `SELECT ` + callbackColumns + ` FROM callbacks WHERE 1=1`
	var args []any
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY due_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query callbacks")
	}
	defer rows.Close()

	var callbacks []models.Callback
	for rows.Next() {
		cb, err := scanCallback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan callback")
		}
		callbacks = append(callbacks, *cb)
	}
	return callbacks, rows.Err()
}

// DueCallbacks returns pending callbacks due at or before the given time,
// oldest first.
func (s *Store) DueCallbacks(ctx context.Context, before time.Time, limit int) ([]models.Callback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callbackColumns+` FROM callbacks WHERE status = ? AND due_at <= ? ORDER BY due_at LIMIT ?`,
		models.CallbackPending, before.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query due callbacks")
	}
	defer rows.Close()

	var callbacks []models.Callback
	for rows.Next() {
		cb, err := scanCallback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan callback")
		}
		callbacks = append(callbacks, *cb)
	}
	return callbacks, rows.Err()
}

// SetCallbackStatus moves a pending callback to status. Callbacks that are
// no longer pending are not touched and report ErrNotFound.
func (s *Store) SetCallbackStatus(ctx context.Context, id string, status models.CallbackStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE callbacks SET status = ? WHERE id = ? AND status = ?`,
		status, id, models.CallbackPending,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update callback %s", id)
	}
	return checkRowsAffected(res, "pending callback", id)
}

// UpdateCallback overwrites a callback's due time, note and status.
func (s *Store) UpdateCallback(ctx context.Context, cb models.Callback) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE callbacks SET due_at = ?, note = ?, status = ? WHERE id = ?`,
		cb.DueAt.UTC(), cb.Note, cb.Status, cb.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update callback %s", cb.ID)
	}
	return checkRowsAffected(res, "callback", cb.ID)
}

// --- Decision Operations ---

// WriteDecision appends an audit record.
func (s *Store) WriteDecision(ctx context.Context, action, actorID, inputsHash, outcome, subjectID, details string) (*models.DecisionRecord, error) {
	rec := &models.DecisionRecord{
		ID:         uuid.New().String(),
		Action:     action,
		ActorID:    actorID,
		InputsHash: inputsHash,
		Outcome:    outcome,
		SubjectID:  subjectID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, action, actor_id, inputs_hash, outcome, subject_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.ActorID, rec.InputsHash, rec.Outcome, rec.SubjectID, rec.Details, rec.Timestamp,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert decision")
	}
	return rec, nil
}

// ListDecisions returns the newest audit records, optionally for one
// subject.
func (s *Store) ListDecisions(ctx context.Context, subjectID string, limit int) ([]models.DecisionRecord, error) {
	query := `SELECT id, action, actor_id, inputs_hash, outcome, subject_id, details, timestamp FROM decisions`
	var args []any
	if subjectID != "" {
		query += ` WHERE subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query decisions")
	}
	defer rows.Close()

	var records []models.DecisionRecord
	for rows.Next() {
		var r models.DecisionRecord
		var actor, subject, details sql.NullString
		if err := rows.Scan(&r.ID, &r.Action, &actor, &r.InputsHash, &r.Outcome, &subject, &details, &r.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		r.ActorID = actor.String
		r.SubjectID = subject.String
		r.Details = details.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Stats ---

// Stats builds the dashboard summary. today is a YYYY-MM-DD date used for
// the site visit count.
func (s *Store) Stats(ctx context.Context, today string) (*models.Stats, error) {
	st := &models.Stats{
		LeadsByStatus: map[string]int{},
		StageCounts:   map[string]int{},
		AgentsByRole:  map[string]int{},
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN assigned_to IS NOT NULL THEN 1 ELSE 0 END), 0) FROM leads`,
	).Scan(&st.TotalLeads, &st.AssignedLeads); err != nil {
		return nil, eris.Wrap(err, "sqlite: count leads")
	}
	st.UnassignedLeads = st.TotalLeads - st.AssignedLeads

	if err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`, st.LeadsByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, `SELECT stage, COUNT(*) FROM lead_notes GROUP BY stage`, st.StageCounts); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, `SELECT role, COUNT(*) FROM agents GROUP BY role`, st.AgentsByRole); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&st.Projects); err != nil {
		return nil, eris.Wrap(err, "sqlite: count projects")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM site_visits WHERE visit_date = ?`, today,
	).Scan(&st.SiteVisitsToday); err != nil {
		return nil, eris.Wrap(err, "sqlite: count site visits")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.handle, COUNT(l.id),
			COALESCE(SUM(CASE WHEN l.status = 'converted' THEN 1 ELSE 0 END), 0)
		FROM agents a LEFT JOIN leads l ON l.assigned_to = a.id
		GROUP BY a.id, a.handle
		ORDER BY a.handle`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query agent loads")
	}
	defer rows.Close()
	for rows.Next() {
		var load models.AgentLoad
		if err := rows.Scan(&load.AgentID, &load.Handle, &load.Assigned, &load.Converted); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent load")
		}
		st.AgentLoads = append(st.AgentLoads, load)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate agent loads")
	}
	return st, nil
}

func (s *Store) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "sqlite: group count")
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return eris.Wrap(err, "sqlite: scan group count")
		}
		into[key] = n
	}
	return rows.Err()
}
