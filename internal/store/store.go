// Package store provides SQLite-backed persistence for leaddesk.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fentz26/leaddesk/internal/models"
)

var (
	// ErrNotFound indicates the row to update or delete does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps every storage failure during a batch write.
	ErrPersistence = errors.New("persistence failure")

	// ErrLeadAlreadyAssigned indicates a lead was assigned by someone else
	// while a batch write was in progress.
	ErrLeadAlreadyAssigned = errors.New("lead already assigned")

	// ErrDuplicateHandle indicates an agent handle is already taken.
	ErrDuplicateHandle = errors.New("agent handle already exists")

	// ErrAgentUnavailable indicates a batch write targets an agent that is
	// missing or no longer active.
	ErrAgentUnavailable = errors.New("agent not available")
)

// Store provides access to the leaddesk SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create db directory")
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	// SQLite only supports one writer at a time; batch writes serialise here.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		lead_count INTEGER NOT NULL,
		created_by TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'fresh',
		assigned_to TEXT REFERENCES agents(id),
		property_type TEXT,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		seq INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lead_notes (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL REFERENCES leads(id),
		author_id TEXT,
		stage TEXT NOT NULL,
		remarks TEXT,
		looking_for TEXT,
		budget TEXT,
		location_preference TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT,
		property_type TEXT,
		budget_range TEXT,
		description TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS site_visits (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL REFERENCES leads(id),
		project_id TEXT NOT NULL REFERENCES projects(id),
		visit_date TEXT NOT NULL,
		notes TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS callbacks (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL REFERENCES leads(id),
		agent_id TEXT NOT NULL,
		due_at DATETIME NOT NULL,
		note TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		actor_id TEXT,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		subject_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_batch_seq ON leads(batch_id, seq);
	CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads(assigned_to);
	CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
	CREATE INDEX IF NOT EXISTS idx_lead_notes_lead_id ON lead_notes(lead_id);
	CREATE INDEX IF NOT EXISTS idx_site_visits_date ON site_visits(visit_date);
	CREATE INDEX IF NOT EXISTS idx_site_visits_lead_id ON site_visits(lead_id);
	CREATE INDEX IF NOT EXISTS idx_callbacks_agent_status ON callbacks(agent_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, eris.Wrap(err, "sqlite: "+op))
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// --- Agent Operations ---

// CreateAgent inserts a new active agent.
func (s *Store) CreateAgent(ctx context.Context, handle string, role models.Role) (*models.Agent, error) {
	now := time.Now().UTC()
	agent := &models.Agent{
		ID:        uuid.New().String(),
		Handle:    handle,
		Role:      role,
		Status:    models.AgentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, handle, role, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Handle, agent.Role, agent.Status, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", handle, ErrDuplicateHandle)
		}
		return nil, eris.Wrap(err, "sqlite: insert agent")
	}
	return agent, nil
}

const agentColumns = `id, handle, role, status, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanAgent(row scannable) (*models.Agent, error) {
	var a models.Agent
	if err := row.Scan(&a.ID, &a.Handle, &a.Role, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgent retrieves an agent by ID. It returns nil when no agent matches.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query agent %s", id)
	}
	return a, nil
}

// ListAgents returns agents, optionally filtered by role and status.
func (s *Store) ListAgents(ctx context.Context, role models.Role, status models.AgentStatus) ([]models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`
	var args []any
	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, handle`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query agents")
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent")
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// GetAgents loads the given agents keyed by ID. Unknown IDs are absent from
// the result.
func (s *Store) GetAgents(ctx context.Context, ids []string) (map[string]models.Agent, error) {
	agents := make(map[string]models.Agent, len(ids))
	if len(ids) == 0 {
		return agents, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query agents by id")
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent")
		}
		agents[a.ID] = *a
	}
	return agents, rows.Err()
}

// SetAgentStatus changes whether an agent can receive leads.
func (s *Store) SetAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update agent status %s", id)
	}
	return checkRowsAffected(res, "agent", id)
}

// DeleteAgent removes an agent and returns its open leads to the unassigned
// pool. Converted leads keep no owner either; their history stays in notes.
func (s *Store) DeleteAgent(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET assigned_to = NULL, updated_at = ? WHERE assigned_to = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: release agent leads")
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE callbacks SET status = ? WHERE agent_id = ? AND status = ?`,
		models.CallbackCanceled, id, models.CallbackPending,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: cancel agent callbacks")
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete agent")
	}
	if err := checkRowsAffected(res, "agent", id); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit transaction")
	}
	return int(released), nil
}

// --- Batch Operations ---

// CreateBatchTx inserts a batch and all of its leads in a single
// transaction. Leads are numbered in input order; that order is the order
// the batch is later assigned in.
func (s *Store) CreateBatchTx(ctx context.Context, source, createdBy string, leads []models.NewLead) (*models.Batch, []models.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	batch := &models.Batch{
		ID:        uuid.New().String()[:8],
		Source:    source,
		LeadCount: len(leads),
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, source, lead_count, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		batch.ID, batch.Source, batch.LeadCount, batch.CreatedBy, batch.CreatedAt,
	); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: insert batch")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, name, phone, status, property_type, batch_id, seq, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: prepare lead insert")
	}
	defer stmt.Close()

	created := make([]models.Lead, len(leads))
	for i, nl := range leads {
		lead := models.Lead{
			ID:           uuid.New().String(),
			Name:         nl.Name,
			Phone:        nl.Phone,
			Status:       models.LeadStatusFresh,
			PropertyType: nl.PropertyType,
			BatchID:      batch.ID,
			Seq:          i,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := stmt.ExecContext(ctx,
			lead.ID, lead.Name, lead.Phone, lead.Status, lead.PropertyType, lead.BatchID, lead.Seq, lead.CreatedAt, lead.UpdatedAt,
		); err != nil {
			return nil, nil, eris.Wrapf(err, "sqlite: insert lead %d", i)
		}
		created[i] = lead
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: commit transaction")
	}
	return batch, created, nil
}

// GetBatch retrieves a batch by ID. It returns nil when no batch matches.
func (s *Store) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var b models.Batch
	var createdBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, lead_count, created_by, created_at FROM batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.Source, &b.LeadCount, &createdBy, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query batch %s", id)
	}
	b.CreatedBy = createdBy.String
	return &b, nil
}

// ListBatches returns batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]models.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, lead_count, created_by, created_at FROM batches ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query batches")
	}
	defer rows.Close()

	var batches []models.Batch
	for rows.Next() {
		var b models.Batch
		var createdBy sql.NullString
		if err := rows.Scan(&b.ID, &b.Source, &b.LeadCount, &createdBy, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		b.CreatedBy = createdBy.String
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// --- Lead Operations ---

// LeadFilter narrows ListLeads. Empty fields match everything.
type LeadFilter struct {
	Status     models.LeadStatus
	AssignedTo string
	BatchID    string
	Unassigned bool
	// Stages keeps leads whose latest note has one of these stages.
	Stages []string
	// Search matches a substring of the name or phone.
	Search string
	Limit  int
}

const leadColumns = `id, name, phone, status, assigned_to, property_type, batch_id, seq, created_at, updated_at`

func scanLead(row scannable) (*models.Lead, error) {
	var l models.Lead
	var assignedTo, propertyType sql.NullString
	if err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.Status, &assignedTo, &propertyType, &l.BatchID, &l.Seq, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.AssignedTo = assignedTo.String
	l.PropertyType = propertyType.String
	return &l, nil
}

// GetLead retrieves a lead by ID. It returns nil when no lead matches.
func (s *Store) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query lead %s", id)
	}
	return l, nil
}

// ListLeads returns leads matching the filter in batch order.
func (s *Store) ListLeads(ctx context.Context, f LeadFilter) ([]models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		query += ` AND assigned_to = ?`
		args = append(args, f.AssignedTo)
	}
	if f.Unassigned {
		query += ` AND assigned_to IS NULL`
	}
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	if len(f.Stages) > 0 {
		query += ` AND (SELECT lower(n.stage) FROM lead_notes n WHERE n.lead_id = leads.id
			ORDER BY n.created_at DESC, n.rowid DESC LIMIT 1) IN (?` + strings.Repeat(`, ?`, len(f.Stages)-1) + `)`
		for _, st := range f.Stages {
			args = append(args, strings.ToLower(st))
		}
	}
	if f.Search != "" {
		query += ` AND (name LIKE ? OR phone LIKE ?)`
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at, batch_id, seq`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query leads")
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// UnassignedLeadIDs returns the batch's unassigned leads in batch order.
func (s *Store) UnassignedLeadIDs(ctx context.Context, batchID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM leads WHERE batch_id = ? AND assigned_to IS NULL ORDER BY seq`, batchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query unassigned leads for batch %s", batchID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignLeadsTx stamps every lead with its agent in a single transaction.
// Each update only applies to a lead of this batch that is still
// unassigned; if any lead was taken in the meantime the whole batch rolls
// back with ErrLeadAlreadyAssigned. Every target agent must still be active
// inside the transaction, otherwise nothing is written and the error matches
// ErrAgentUnavailable. Storage errors roll back and match ErrPersistence.
func (s *Store) AssignLeadsTx(ctx context.Context, batchID string, assignments []models.LeadAssignment) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	checked := make(map[string]bool)
	for _, a := range assignments {
		if checked[a.AgentID] {
			continue
		}
		var status models.AgentStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM agents WHERE id = ?`, a.AgentID).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return 0, fmt.Errorf("agent %s: %w", a.AgentID, ErrAgentUnavailable)
		case err != nil:
			return 0, persistErr("load agent "+a.AgentID, err)
		case status != models.AgentStatusActive:
			return 0, fmt.Errorf("agent %s is %s: %w", a.AgentID, status, ErrAgentUnavailable)
		}
		checked[a.AgentID] = true
	}

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE leads SET assigned_to = ?, updated_at = ?
		WHERE id = ? AND batch_id = ? AND assigned_to IS NULL
		AND EXISTS (SELECT 1 FROM agents WHERE id = ? AND status = 'active')`,
	)
	if err != nil {
		return 0, persistErr("prepare assignment", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	applied := 0
	for _, a := range assignments {
		res, err := stmt.ExecContext(ctx, a.AgentID, now, a.LeadID, batchID, a.AgentID)
		if err != nil {
			return 0, persistErr("assign lead "+a.LeadID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, persistErr("rows affected", err)
		}
		if n == 0 {
			return 0, fmt.Errorf("lead %s: %w", a.LeadID, ErrLeadAlreadyAssigned)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, persistErr("commit transaction", err)
	}
	return applied, nil
}

// UpdateLeadStatus changes a lead's lifecycle status.
func (s *Store) UpdateLeadStatus(ctx context.Context, id string, status models.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}
