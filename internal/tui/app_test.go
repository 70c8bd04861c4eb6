package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/client"
	"github.com/fentz26/leaddesk/internal/crm"
	"github.com/fentz26/leaddesk/internal/models"
)

var testAgents = []models.Agent{
	{ID: "id-asha", Handle: "asha", Role: models.RoleTelecaller, Status: models.AgentStatusActive},
	{ID: "id-ben", Handle: "ben", Role: models.RoleTelecaller, Status: models.AgentStatusHold},
}

func TestParseShares(t *testing.T) {
	tests := map[string]struct {
		args    []string
		mode    string
		reqs    []allocation.Request
		wantErr bool
	}{
		"percentage": {
			args: []string{"mode=percentage", "asha=60", "ben=40"},
			mode: "percentage",
			reqs: []allocation.Request{{TargetID: "asha", Weight: 60}, {TargetID: "ben", Weight: 40}},
		},
		"inferred mode": {
			args: []string{"asha=2.5"},
			reqs: []allocation.Request{{TargetID: "asha", Weight: 2.5}},
		},
		"missing weight": {args: []string{"asha="}, wantErr: true},
		"not a number":   {args: []string{"asha=lots"}, wantErr: true},
		"no shares":      {args: []string{"mode=count"}, wantErr: true},
		"bare word":      {args: []string{"asha"}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mode, reqs, err := parseShares(tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.mode, mode)
			assert.Equal(t, tc.reqs, reqs)
		})
	}
}

func TestResolveTargets(t *testing.T) {
	reqs := []allocation.Request{{TargetID: "ben", Weight: 1}, {TargetID: "raw-id", Weight: 2}}
	got := resolveTargets(reqs, testAgents)
	assert.Equal(t, "id-ben", got[0].TargetID)
	assert.Equal(t, "raw-id", got[1].TargetID)
	assert.Equal(t, "ben", reqs[0].TargetID, "input must not be modified")
}

func TestSuggestions(t *testing.T) {
	s := NewSuggestions()
	s.SetReferences([]string{"asha", "ben"}, []string{"b7c1"})

	s.Update("/as")
	require.True(t, s.IsVisible())
	assert.Equal(t, "assign", s.Selected().Text)
	assert.Equal(t, "assign ", s.Complete("/as"))

	s.Update("/assign b7c1 @be")
	require.True(t, s.IsVisible())
	assert.Equal(t, "ben", s.Selected().Text)
	assert.Equal(t, "/assign b7c1 ben ", s.Complete("/assign b7c1 @be"))

	s.Update("/assign b7c1 /pl")
	assert.False(t, s.IsVisible(), "commands only complete the first word")

	s.Update("hello")
	assert.False(t, s.IsVisible())
}

func newTestApp(t *testing.T, h http.Handler) *App {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	app := New(client.New(srv.URL, crm.Actor{ID: "adm-1", Role: models.RoleAdmin}))
	app.Update(agentsLoadedMsg{testAgents})
	return app
}

func TestApp_LeadListAndFilter(t *testing.T) {
	app := newTestApp(t, http.NotFoundHandler())
	app.Update(leadsLoadedMsg{[]models.Lead{
		{ID: "l1", Name: "Ravi Kumar", Phone: "9876543210", Status: models.LeadStatusFresh, AssignedTo: "id-asha"},
		{ID: "l2", Name: "Meena", Phone: "9123456780", Status: models.LeadStatusInProgress},
	}})

	view := app.View()
	assert.Contains(t, view, "Ravi Kumar")
	assert.Contains(t, view, "asha")
	assert.Contains(t, view, "Leads: 2")

	require.NotNil(t, app.executeCommand("filter converted"))
	assert.Equal(t, filterIndex(models.LeadStatusConverted), app.filterIdx)
	assert.Equal(t, modeLeads, app.mode)
}

func TestApp_PlanCommand(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batches/b1/plan", r.URL.Path)
		var body struct {
			Assignments []allocation.Request `json:"assignments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id-asha", body.Assignments[0].TargetID)

		_ = json.NewEncoder(w).Encode(allocation.Plan{
			Mode:      allocation.ModePercentage,
			BatchSize: 5,
			Entries:   []allocation.Entry{{TargetID: "id-asha", Count: 3}, {TargetID: "id-ben", Count: 2}},
		})
	}))

	cmd := app.executeCommand("/plan b1 asha=60 ben=40")
	require.NotNil(t, cmd)
	msg := cmd()
	plan, ok := msg.(planLoadedMsg)
	require.True(t, ok, "got %#v", msg)
	assert.Contains(t, plan.text, "mode=percentage batch=5 assigned=5 leftover=0")
	assert.Contains(t, plan.text, "asha (id-asha)")

	app.Update(plan)
	assert.Equal(t, modePlan, app.mode)
	assert.Contains(t, app.View(), "leads 1-3")
}

func TestApp_OutcomeNeedsSelection(t *testing.T) {
	app := newTestApp(t, http.NotFoundHandler())
	msg := app.executeCommand("connected")()
	assert.Equal(t, commandResultMsg{message: "No lead selected"}, msg)
}

func TestApp_CommandErrorsSurface(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"over assignment"}`))
	}))

	msg := app.executeCommand("assign b1 mode=count asha=50")()
	res, ok := msg.(commandResultMsg)
	require.True(t, ok)
	assert.Contains(t, res.message, "over assignment")

	app.Update(res)
	assert.Contains(t, app.View(), "Error")
}
