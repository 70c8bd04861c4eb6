// Package tui provides the interactive terminal dashboard for leaddesk.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/leaddesk/internal/client"
	"github.com/fentz26/leaddesk/internal/crm"
	"github.com/fentz26/leaddesk/internal/models"
)

type mode string

const (
	modeLeads  mode = "leads"
	modeDetail mode = "detail"
	modeAgents mode = "agents"
	modeStats  mode = "stats"
	modePlan   mode = "plan"
)

var filters = []models.LeadStatus{"", models.LeadStatusFresh, models.LeadStatusInProgress, models.LeadStatusConverted}
var filterNames = []string{"ALL", "FRESH", "IN PROGRESS", "CONVERTED"}

func filterIndex(s models.LeadStatus) int {
	for i, f := range filters {
		if f == s {
			return i
		}
	}
	return 0
}

// App is the dashboard model.
type App struct {
	client      *client.Client
	leads       []models.Lead
	agents      []models.Agent
	batches     []models.Batch
	stats       *models.Stats
	currentLead *crm.LeadDetail
	selectedIdx int
	agentIdx    int
	filterIdx   int
	input       textinput.Model
	viewport    viewport.Model
	width       int
	height      int
	mode        mode
	message     string
	loading     bool
	online      bool
	suggestions *Suggestions
}

// New creates the dashboard for the given API client.
func New(c *client.Client) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: /plan <batch> asha=60 ben=40 | /assign | /import <file> | /connected | /missed <reason>"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client:      c,
		input:       ti,
		viewport:    viewport.New(80, 20),
		mode:        modeLeads,
		suggestions: NewSuggestions(),
	}
}

// Run starts the dashboard and blocks until it exits.
func (a *App) Run() error {
	_, err := tea.NewProgram(a, tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.checkServer(),
		a.fetchLeads(),
		a.fetchAgents(),
		a.fetchBatches(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode != modeLeads {
				a.mode = modeLeads
				a.currentLead = nil
				return a, a.fetchLeads()
			}

		case "up":
			switch {
			case a.suggestions.IsVisible():
				a.suggestions.Prev()
			case a.mode == modeLeads && a.selectedIdx > 0:
				a.selectedIdx--
			case a.mode == modeAgents && a.agentIdx > 0:
				a.agentIdx--
			case a.mode == modePlan || a.mode == modeDetail:
				a.viewport.LineUp(1)
			}
			return a, nil

		case "down":
			switch {
			case a.suggestions.IsVisible():
				a.suggestions.Next()
			case a.mode == modeLeads && a.selectedIdx < len(a.leads)-1:
				a.selectedIdx++
			case a.mode == modeAgents && a.agentIdx < len(a.agents)-1:
				a.agentIdx++
			case a.mode == modePlan || a.mode == modeDetail:
				a.viewport.LineDown(1)
			}
			return a, nil

		case "tab":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Complete(a.input.Value()))
				a.input.CursorEnd()
				return a, nil
			}
			if a.input.Value() == "" {
				a.filterIdx = (a.filterIdx + 1) % len(filters)
				a.mode = modeLeads
				return a, a.fetchLeads()
			}

		case "enter":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Complete(a.input.Value()))
				a.input.CursorEnd()
				return a, nil
			}
			line := strings.TrimSpace(a.input.Value())
			if line != "" {
				a.input.SetValue("")
				return a, a.executeCommand(line)
			}
			if lead := a.selectedLead(); lead != nil {
				a.mode = modeDetail
				return a, a.fetchLeadDetail(lead.ID)
			}

		case "f2":
			a.mode = modeAgents
			return a, a.fetchAgents()

		case "f3":
			a.mode = modeStats
			return a, tea.Batch(a.fetchStats(), a.tickCmd())

		case "f5":
			return a, a.refresh()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-10, 5)

	case serverStatusMsg:
		a.online = msg.online

	case leadsLoadedMsg:
		a.loading = false
		a.leads = msg.leads
		if a.selectedIdx >= len(a.leads) {
			a.selectedIdx = max(0, len(a.leads)-1)
		}

	case agentsLoadedMsg:
		a.agents = msg.agents
		if a.agentIdx >= len(a.agents) {
			a.agentIdx = max(0, len(a.agents)-1)
		}

	case batchesLoadedMsg:
		a.batches = msg.batches

	case leadDetailLoadedMsg:
		a.currentLead = msg.lead
		a.viewport.SetContent(a.renderLeadDetail())
		a.viewport.GotoTop()

	case statsLoadedMsg:
		a.stats = msg.stats
		if a.mode == modeStats {
			cmds = append(cmds, a.tickCmd())
		}

	case tickMsg:
		if a.mode == modeStats {
			return a, a.fetchStats()
		}

	case planLoadedMsg:
		a.mode = modePlan
		a.message = fmt.Sprintf("Plan for batch %s (not saved). Use /assign to apply.", msg.batchID)
		a.viewport.SetContent(msg.text)
		a.viewport.GotoTop()

	case commandResultMsg:
		a.message = msg.message
		if msg.refresh {
			return a, a.refresh()
		}

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.suggestions.SetReferences(a.agentHandles(), a.batchIDs())
	a.suggestions.Update(a.input.Value())

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	server := onlineStyle.Render("● SERVER")
	if !a.online {
		server = offlineStyle.Render("○ SERVER")
	}
	actor := a.client.Actor()
	who := helpStyle.Render("anonymous")
	if actor.ID != "" {
		who = lipgloss.NewStyle().Foreground(successColor).Render(fmt.Sprintf("● %s (%s)", actor.ID, actor.Role))
	}

	header := titleStyle.Render("LEADDESK")
	header += "  " + server
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[%d agents, %d batches]", len(a.agents), len(a.batches)))
	header += "  " + who
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	contentHeight := max(a.height-8, 5)

	switch a.mode {
	case modeLeads:
		b.WriteString(helpStyle.Render(fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])) + "\n")
		b.WriteString(a.renderLeadList(contentHeight - 1))
	case modeAgents:
		b.WriteString(a.renderAgents())
	case modeStats:
		b.WriteString(a.renderStats())
	case modeDetail, modePlan:
		b.WriteString(a.viewport.View())
	}

	if a.message != "" {
		style := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			style = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + style.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n" + inputBoxStyle.Render(a.input.View()))
	if a.suggestions.IsVisible() {
		b.WriteString("\n" + a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeLeads:
		status = fmt.Sprintf(" Leads: %d | ↑↓:nav | Enter:open | Tab:filter | F2:agents | F3:stats | F5:refresh | Ctrl+C:quit", len(a.leads))
	case modeAgents:
		status = fmt.Sprintf(" Agents: %d | ↑↓:nav | Esc:back", len(a.agents))
	case modeStats:
		status = " Stats refresh every 5s | Esc:back"
	default:
		status = " ↑↓:scroll | Esc:back | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))

	return b.String()
}

func (a *App) renderLeadList(height int) string {
	if a.loading {
		return "\n  Loading leads...\n"
	}
	if len(a.leads) == 0 {
		return "\n  No leads. Type: /import <file> to upload a batch.\n"
	}

	owners := handleLabels(a.agents)
	lines := make([]string, 0, len(a.leads))
	for i, l := range a.leads {
		owner := owners[l.AssignedTo]
		if owner == "" {
			owner = "-"
		}
		text := fmt.Sprintf("%-24s %-14s %-12s %s", truncate(l.Name, 24), l.Phone, truncate(owner, 12), leadStatusLabel(l.Status))
		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render("▶ "+text))
		} else {
			lines = append(lines, rowStyle.Render("  "+text))
		}
	}

	if len(lines) > height {
		start := max(0, a.selectedIdx-height/2)
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLeadDetail() string {
	l := a.currentLead
	if l == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n", lipgloss.NewStyle().Bold(true).Render(l.Name))
	fmt.Fprintf(&b, "  Phone: %s\n", l.Phone)
	fmt.Fprintf(&b, "  Status: %s\n", leadStatusLabel(l.Status))
	if l.PropertyType != "" {
		fmt.Fprintf(&b, "  Property: %s\n", l.PropertyType)
	}
	fmt.Fprintf(&b, "  Batch: %s #%d\n", l.BatchID, l.Seq)

	if len(l.Notes) == 0 {
		b.WriteString("\n  " + helpStyle.Render("No calls logged yet.") + "\n")
		return b.String()
	}
	b.WriteString("\n  History:\n")
	for _, n := range l.Notes {
		fmt.Fprintf(&b, "    • %s  %-14s %s\n", n.CreatedAt.Local().Format("Jan 02 15:04"), n.Stage, n.Remarks)
	}
	return b.String()
}

func (a *App) renderAgents() string {
	var b strings.Builder
	b.WriteString("\n  Agents\n")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n\n")

	if len(a.agents) == 0 {
		b.WriteString("  No agents yet. Type: /agent add <handle> <role>\n")
		return b.String()
	}

	for i, ag := range a.agents {
		role := helpStyle.Render(fmt.Sprintf("(%s)", ag.Role))
		if i == a.agentIdx {
			b.WriteString(selectedStyle.Render(fmt.Sprintf("▶ %s %s %s", agentStatusLabel(ag.Status), ag.Handle, role)) + "\n")
			b.WriteString(helpStyle.Render(fmt.Sprintf("      ID: %s  status: %s", ag.ID, ag.Status)) + "\n")
		} else {
			fmt.Fprintf(&b, "    %s %s %s\n", agentStatusLabel(ag.Status), ag.Handle, role)
		}
	}
	return b.String()
}

func (a *App) renderStats() string {
	st := a.stats
	if st == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	b.WriteString("\n  Dashboard\n")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n\n")
	fmt.Fprintf(&b, "  Leads: %s total, %d assigned, %d unassigned\n",
		onlineStyle.Render(fmt.Sprint(st.TotalLeads)), st.AssignedLeads, st.UnassignedLeads)
	for i, f := range filters[1:] {
		fmt.Fprintf(&b, "    %-12s %d\n", filterNames[i+1], st.LeadsByStatus[string(f)])
	}
	fmt.Fprintf(&b, "  Projects: %d   Site visits today: %d\n\n", st.Projects, st.SiteVisitsToday)

	if len(st.AgentLoads) > 0 {
		fmt.Fprintf(&b, "  %s  %s  %s\n",
			headerStyle.Render(fmt.Sprintf("%-16s", "AGENT")),
			headerStyle.Render(fmt.Sprintf("%-10s", "ASSIGNED")),
			headerStyle.Render(fmt.Sprintf("%-10s", "CONVERTED")))
		loads := append([]models.AgentLoad(nil), st.AgentLoads...)
		sort.SliceStable(loads, func(i, j int) bool { return loads[i].Assigned > loads[j].Assigned })
		for _, l := range loads {
			fmt.Fprintf(&b, "  %-16s  %-10d  %-10d\n", truncate(l.Handle, 16), l.Assigned, l.Converted)
		}
	}
	return b.String()
}

func (a *App) agentHandles() []string {
	out := make([]string, len(a.agents))
	for i, ag := range a.agents {
		out[i] = ag.Handle
	}
	return out
}

func (a *App) batchIDs() []string {
	out := make([]string, len(a.batches))
	for i, bt := range a.batches {
		out[i] = bt.ID
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- Commands ---

func (a *App) refresh() tea.Cmd {
	cmds := []tea.Cmd{a.fetchLeads(), a.fetchAgents(), a.fetchBatches()}
	if a.mode == modeStats {
		cmds = append(cmds, a.fetchStats())
	}
	return tea.Batch(cmds...)
}

func (a *App) checkServer() tea.Cmd {
	return func() tea.Msg {
		err := a.client.Health(context.Background())
		return serverStatusMsg{online: err == nil}
	}
}

func (a *App) fetchLeads() tea.Cmd {
	a.loading = true
	status := filters[a.filterIdx]
	return func() tea.Msg {
		leads, err := a.client.ListLeads(context.Background(), client.LeadQuery{Status: string(status)})
		if err != nil {
			return errMsg{err}
		}
		return leadsLoadedMsg{leads}
	}
}

func (a *App) fetchAgents() tea.Cmd {
	return func() tea.Msg {
		agents, err := a.client.ListAgents(context.Background(), "", "")
		if err != nil {
			return errMsg{err}
		}
		return agentsLoadedMsg{agents}
	}
}

func (a *App) fetchBatches() tea.Cmd {
	return func() tea.Msg {
		batches, err := a.client.ListBatches(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return batchesLoadedMsg{batches}
	}
}

func (a *App) fetchLeadDetail(id string) tea.Cmd {
	return func() tea.Msg {
		lead, err := a.client.GetLead(context.Background(), id)
		if err != nil {
			return errMsg{err}
		}
		return leadDetailLoadedMsg{lead}
	}
}

func (a *App) fetchStats() tea.Cmd {
	return func() tea.Msg {
		st, err := a.client.Stats(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return statsLoadedMsg{st}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type commandResultMsg struct {
	message string
	refresh bool
}

type errMsg struct {
	err error
}

type serverStatusMsg struct {
	online bool
}

type leadsLoadedMsg struct {
	leads []models.Lead
}

type agentsLoadedMsg struct {
	agents []models.Agent
}

type batchesLoadedMsg struct {
	batches []models.Batch
}

type leadDetailLoadedMsg struct {
	lead *crm.LeadDetail
}

type statsLoadedMsg struct {
	stats *models.Stats
}

type planLoadedMsg struct {
	batchID string
	text    string
}

type tickMsg time.Time
