package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/leaddesk/internal/models"
)

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file was not created")
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestAgentCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice, err := s.CreateAgent(ctx, "alice", models.RoleTelecaller)
	require.NoError(t, err)
	assert.NotEmpty(t, alice.ID)
	assert.Equal(t, models.AgentStatusActive, alice.Status)

	bob, err := s.CreateAgent(ctx, "bob", models.RoleManager)
	require.NoError(t, err)

	_, err = s.CreateAgent(ctx, "alice", models.RoleAgent)
	require.ErrorIs(t, err, ErrDuplicateHandle)

	got, err := s.GetAgent(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Handle)

	missing, err := s.GetAgent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListAgents(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	managers, err := s.ListAgents(ctx, models.RoleManager, "")
	require.NoError(t, err)
	require.Len(t, managers, 1)
	assert.Equal(t, bob.ID, managers[0].ID)

	require.NoError(t, s.SetAgentStatus(ctx, alice.ID, models.AgentStatusHold))
	held, err := s.ListAgents(ctx, "", models.AgentStatusHold)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, alice.ID, held[0].ID)

	require.ErrorIs(t, s.SetAgentStatus(ctx, "nope", models.AgentStatusHold), ErrNotFound)

	byID, err := s.GetAgents(ctx, []string{alice.ID, bob.ID, "ghost"})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Equal(t, "bob", byID[bob.ID].Handle)
}

func TestCreateBatchTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	batch, leads, err := s.CreateBatchTx(ctx, "march.xlsx", "admin-1", newLeads(3))
	require.NoError(t, err)
	assert.Len(t, batch.ID, 8)
	assert.Equal(t, 3, batch.LeadCount)
	require.Len(t, leads, 3)
	for i, l := range leads {
		assert.Equal(t, i, l.Seq)
		assert.Equal(t, batch.ID, l.BatchID)
		assert.Equal(t, models.LeadStatusFresh, l.Status)
	}

	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "march.xlsx", got.Source)
	assert.Equal(t, "admin-1", got.CreatedBy)

	batches, err := s.ListBatches(ctx)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	ids, err := s.UnassignedLeadIDs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{leads[0].ID, leads[1].ID, leads[2].ID}, ids)
}

func TestAssignLeadsTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	b, err := s.CreateAgent(ctx, "b", models.RoleTelecaller)
	require.NoError(t, err)

	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(4))
	require.NoError(t, err)

	applied, err := s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{
		{LeadID: leads[0].ID, AgentID: a.ID},
		{LeadID: leads[1].ID, AgentID: a.ID},
		{LeadID: leads[2].ID, AgentID: b.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	ids, err := s.UnassignedLeadIDs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{leads[3].ID}, ids)

	mine, err := s.ListLeads(ctx, LeadFilter{AssignedTo: a.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	unassigned, err := s.ListLeads(ctx, LeadFilter{Unassigned: true})
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, leads[3].ID, unassigned[0].ID)
}

func TestAssignLeadsTx_AlreadyAssignedRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(3))
	require.NoError(t, err)

	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{{LeadID: leads[1].ID, AgentID: a.ID}})
	require.NoError(t, err)

	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{
		{LeadID: leads[0].ID, AgentID: a.ID},
		{LeadID: leads[1].ID, AgentID: a.ID},
	})
	require.ErrorIs(t, err, ErrLeadAlreadyAssigned)

	first, err := s.GetLead(ctx, leads[0].ID)
	require.NoError(t, err)
	assert.Empty(t, first.AssignedTo, "first lead must be rolled back")
}

func TestAssignLeadsTx_WrongBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	_, leads, err := s.CreateBatchTx(ctx, "one", "", newLeads(1))
	require.NoError(t, err)
	other, _, err := s.CreateBatchTx(ctx, "two", "", newLeads(1))
	require.NoError(t, err)

	_, err = s.AssignLeadsTx(ctx, other.ID, []models.LeadAssignment{{LeadID: leads[0].ID, AgentID: a.ID}})
	require.ErrorIs(t, err, ErrLeadAlreadyAssigned)
}

func TestAssignLeadsTx_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{{LeadID: leads[0].ID, AgentID: "x"}})
	require.ErrorIs(t, err, ErrPersistence)
}

func TestAssignLeadsTx_InactiveAgentRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	b, err := s.CreateAgent(ctx, "b", models.RoleTelecaller)
	require.NoError(t, err)
	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(2))
	require.NoError(t, err)

	// b is deactivated after the caller checked eligibility.
	require.NoError(t, s.SetAgentStatus(ctx, b.ID, models.AgentStatusDeactivated))

	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{
		{LeadID: leads[0].ID, AgentID: a.ID},
		{LeadID: leads[1].ID, AgentID: b.ID},
	})
	require.ErrorIs(t, err, ErrAgentUnavailable)

	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{{LeadID: leads[0].ID, AgentID: "missing"}})
	require.ErrorIs(t, err, ErrAgentUnavailable)

	ids, err := s.UnassignedLeadIDs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestAssignLeadsTx_ConcurrentWritersDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	b, err := s.CreateAgent(ctx, "b", models.RoleTelecaller)
	require.NoError(t, err)
	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(5))
	require.NoError(t, err)

	stamp := func(agentID string) []models.LeadAssignment {
		out := make([]models.LeadAssignment, len(leads))
		for i, l := range leads {
			out[i] = models.LeadAssignment{LeadID: l.ID, AgentID: agentID}
		}
		return out
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, agent := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, agent string) {
			defer wg.Done()
			_, errs[i] = s.AssignLeadsTx(ctx, batch.ID, stamp(agent))
		}(i, agent)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrLeadAlreadyAssigned)
		}
	}
	require.Equal(t, 1, succeeded)

	owners := make(map[string]int)
	all, err := s.ListLeads(ctx, LeadFilter{BatchID: batch.ID})
	require.NoError(t, err)
	for _, l := range all {
		owners[l.AssignedTo]++
	}
	assert.Len(t, owners, 1, "one writer must own the whole batch")
}

func TestDeleteAgent_ReleasesLeads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(2))
	require.NoError(t, err)
	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{
		{LeadID: leads[0].ID, AgentID: a.ID},
		{LeadID: leads[1].ID, AgentID: a.ID},
	})
	require.NoError(t, err)
	cb, err := s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: a.ID, DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	released, err := s.DeleteAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	ids, err := s.UnassignedLeadIDs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	got, err := s.GetCallback(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackCanceled, got.Status)

	_, err = s.DeleteAgent(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordNoteTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(1))
	require.NoError(t, err)

	note, err := s.RecordNoteTx(ctx, models.LeadNote{
		LeadID:  leads[0].ID,
		Stage:   models.StageConnected,
		Remarks: "interested in 2BHK",
	}, models.LeadStatusInProgress)
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)

	lead, err := s.GetLead(ctx, leads[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusInProgress, lead.Status)

	notes, err := s.ListNotes(ctx, leads[0].ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "interested in 2BHK", notes[0].Remarks)

	_, err = s.RecordNoteTx(ctx, models.LeadNote{LeadID: "ghost", Stage: models.StageConnected}, models.LeadStatusInProgress)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCallbacks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(1))
	require.NoError(t, err)

	later, err := s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: "a", DueAt: time.Now().Add(2 * time.Hour)})
	require.NoError(t, err)
	sooner, err := s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: "a", DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	pending, err := s.ListCallbacks(ctx, "a", models.CallbackPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, sooner.ID, pending[0].ID)

	require.NoError(t, s.SetCallbackStatus(ctx, later.ID, models.CallbackDone))
	require.ErrorIs(t, s.SetCallbackStatus(ctx, later.ID, models.CallbackCanceled), ErrNotFound)

	pending, err = s.ListCallbacks(ctx, "a", models.CallbackPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestUpdateCallback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(1))
	require.NoError(t, err)
	cb, err := s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: "a", DueAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	cb.DueAt = time.Now().Add(24 * time.Hour)
	cb.Note = "next week"
	require.NoError(t, s.UpdateCallback(ctx, *cb))

	got, err := s.GetCallback(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, "next week", got.Note)
	assert.WithinDuration(t, cb.DueAt, got.DueAt, time.Second)

	due, err := s.DueCallbacks(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "rescheduled callback is no longer due")

	require.ErrorIs(t, s.UpdateCallback(ctx, models.Callback{ID: "ghost"}), ErrNotFound)
}

func TestProjectsAndSiteVisits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(2))
	require.NoError(t, err)
	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{{LeadID: leads[0].ID, AgentID: a.ID}})
	require.NoError(t, err)

	p, err := s.CreateProject(ctx, models.Project{Name: "Palm Grove", Description: "gated"})
	require.NoError(t, err)
	p.Location = "Whitefield"
	require.NoError(t, s.UpdateProject(ctx, *p))
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Whitefield", got.Location)
	assert.Equal(t, "gated", got.Description)
	require.ErrorIs(t, s.UpdateProject(ctx, models.Project{ID: "ghost"}), ErrNotFound)

	v1, err := s.CreateSiteVisit(ctx, models.SiteVisit{LeadID: leads[0].ID, ProjectID: p.ID, VisitDate: "2026-10-17"})
	require.NoError(t, err)
	_, err = s.CreateSiteVisit(ctx, models.SiteVisit{LeadID: leads[0].ID, ProjectID: p.ID, VisitDate: "2026-10-19"})
	require.NoError(t, err)
	_, err = s.CreateSiteVisit(ctx, models.SiteVisit{LeadID: leads[1].ID, ProjectID: p.ID, VisitDate: "2026-10-18"})
	require.NoError(t, err)

	tests := map[string]struct {
		filter SiteVisitFilter
		want   int
	}{
		"all":         {SiteVisitFilter{}, 3},
		"date":        {SiteVisitFilter{Date: "2026-10-18"}, 1},
		"from":        {SiteVisitFilter{From: "2026-10-18"}, 2},
		"before":      {SiteVisitFilter{Before: "2026-10-18"}, 1},
		"assigned":    {SiteVisitFilter{AssignedTo: a.ID}, 2},
		"assigned+to": {SiteVisitFilter{AssignedTo: a.ID, From: "2026-10-18"}, 1},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			visits, err := s.ListSiteVisits(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, visits, tt.want)
		})
	}

	v1.VisitDate = "2026-10-30"
	v1.Notes = "rescheduled"
	require.NoError(t, s.UpdateSiteVisit(ctx, *v1))
	moved, err := s.GetSiteVisit(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-30", moved.VisitDate)
	assert.Equal(t, "rescheduled", moved.Notes)

	missing, err := s.GetSiteVisit(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReport_UnknownKind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Report(context.Background(), "revenue", "2026-10-01", "2026-10-31")
	require.ErrorIs(t, err, ErrUnknownReport)
}

func TestDueCallbacks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(1))
	require.NoError(t, err)

	now := time.Now()
	overdue, err := s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: "a", DueAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	closed, err := s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: "a", DueAt: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = s.CreateCallback(ctx, models.Callback{LeadID: leads[0].ID, AgentID: "a", DueAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, s.SetCallbackStatus(ctx, closed.ID, models.CallbackCanceled))

	due, err := s.DueCallbacks(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, overdue.ID, due[0].ID)

	due, err = s.DueCallbacks(ctx, now.Add(2*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, due, 1, "limit applies")
}

func TestDecisions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.WriteDecision(ctx, "batch.assign", "admin-1", "abc123", "success", "b1", "3 leads")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	_, err = s.WriteDecision(ctx, "agent.create", "admin-1", "def456", "success", "a1", "")
	require.NoError(t, err)

	recs, err := s.ListDecisions(ctx, "b1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "batch.assign", recs[0].Action)

	all, err := s.ListDecisions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAgent(ctx, "a", models.RoleTelecaller)
	require.NoError(t, err)
	_, err = s.CreateAgent(ctx, "m", models.RoleManager)
	require.NoError(t, err)

	batch, leads, err := s.CreateBatchTx(ctx, "upload", "", newLeads(3))
	require.NoError(t, err)
	_, err = s.AssignLeadsTx(ctx, batch.ID, []models.LeadAssignment{
		{LeadID: leads[0].ID, AgentID: a.ID},
		{LeadID: leads[1].ID, AgentID: a.ID},
	})
	require.NoError(t, err)
	_, err = s.RecordNoteTx(ctx, models.LeadNote{LeadID: leads[0].ID, Stage: models.StageConverted}, models.LeadStatusConverted)
	require.NoError(t, err)

	p, err := s.CreateProject(ctx, models.Project{Name: "Palm Grove"})
	require.NoError(t, err)
	_, err = s.CreateSiteVisit(ctx, models.SiteVisit{LeadID: leads[0].ID, ProjectID: p.ID, VisitDate: "2026-10-18"})
	require.NoError(t, err)
	_, err = s.CreateSiteVisit(ctx, models.SiteVisit{LeadID: leads[1].ID, ProjectID: p.ID, VisitDate: "2026-10-19"})
	require.NoError(t, err)

	st, err := s.Stats(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalLeads)
	assert.Equal(t, 2, st.AssignedLeads)
	assert.Equal(t, 1, st.UnassignedLeads)
	assert.Equal(t, 1, st.LeadsByStatus["converted"])
	assert.Equal(t, 2, st.LeadsByStatus["fresh"])
	assert.Equal(t, 1, st.StageCounts[models.StageConverted])
	assert.Equal(t, 1, st.AgentsByRole["manager"])
	assert.Equal(t, 1, st.Projects)
	assert.Equal(t, 1, st.SiteVisitsToday)

	require.Len(t, st.AgentLoads, 2)
	assert.Equal(t, models.AgentLoad{AgentID: a.ID, Handle: "a", Assigned: 2, Converted: 1}, st.AgentLoads[0])
	assert.Equal(t, 0, st.AgentLoads[1].Assigned)
}

func newLeads(n int) []models.NewLead {
	out := make([]models.NewLead, n)
	for i := range out {
		out[i] = models.NewLead{Name: fmt.Sprintf("Lead %d", i), Phone: fmt.Sprintf("98765%05d", i)}
	}
	return out
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
