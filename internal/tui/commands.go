package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/formatter"
	"github.com/fentz26/leaddesk/internal/models"
)

// parseShares reads "handle=weight" arguments with an optional "mode=..."
// entry. Targets are returned as typed; resolve them with resolveTargets.
func parseShares(args []string) (string, []allocation.Request, error) {
	var mode string
	shares := make([]string, 0, len(args))
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "mode="); ok {
			mode = v
			continue
		}
		shares = append(shares, arg)
	}
	reqs, err := allocation.ParseShares(shares)
	if err != nil {
		return "", nil, err
	}
	return mode, reqs, nil
}

// resolveTargets swaps agent handles for agent IDs. Unknown names are kept
// so that raw IDs can be typed directly.
func resolveTargets(reqs []allocation.Request, agents []models.Agent) []allocation.Request {
	byHandle := make(map[string]string, len(agents))
	for _, a := range agents {
		byHandle[a.Handle] = a.ID
	}
	out := make([]allocation.Request, len(reqs))
	for i, r := range reqs {
		if id, ok := byHandle[r.TargetID]; ok {
			r.TargetID = id
		}
		out[i] = r
	}
	return out
}

func handleLabels(agents []models.Agent) map[string]string {
	labels := make(map[string]string, len(agents))
	for _, a := range agents {
		labels[a.ID] = a.Handle
	}
	return labels
}

func (a *App) selectedLead() *models.Lead {
	if a.mode != modeLeads || len(a.leads) == 0 || a.selectedIdx >= len(a.leads) {
		return nil
	}
	return &a.leads[a.selectedIdx]
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.TrimPrefix(parts[0], "/"), parts[1:]

	switch cmd {
	case "q", "quit", "exit":
		return tea.Quit

	case "filter":
		if len(args) != 1 {
			return result("Usage: filter <fresh|in_progress|converted|all>")
		}
		if args[0] == "all" {
			a.filterIdx = 0
		} else {
			status, ok := models.ParseLeadStatus(args[0])
			if !ok {
				return result("Unknown lead status: " + args[0])
			}
			a.filterIdx = filterIndex(status)
		}
		a.mode = modeLeads
		return a.fetchLeads()
	}

	// Everything below talks to the API.
	ctx := context.Background()
	agents := a.agents
	lead := a.selectedLead()

	return func() tea.Msg {
		switch cmd {
		case "plan", "assign":
			if len(args) < 2 {
				return commandResultMsg{message: fmt.Sprintf("Usage: %s <batch> [mode=count|percentage] handle=weight...", cmd)}
			}
			mode, reqs, err := parseShares(args[1:])
			if err != nil {
				return commandResultMsg{message: "Error: " + err.Error()}
			}
			reqs = resolveTargets(reqs, agents)

			if cmd == "plan" {
				plan, err := a.client.PlanBatch(ctx, args[0], mode, reqs)
				if err != nil {
					return commandResultMsg{message: "Error: " + err.Error()}
				}
				text, err := formatter.Format(plan, handleLabels(agents), formatter.FormatText)
				if err != nil {
					return commandResultMsg{message: "Error: " + err.Error()}
				}
				return planLoadedMsg{batchID: args[0], text: text}
			}

			res, err := a.client.AssignBatch(ctx, args[0], mode, reqs, "")
			if err != nil {
				return commandResultMsg{message: "Error: " + err.Error()}
			}
			return commandResultMsg{
				message: fmt.Sprintf("✓ Assigned %d leads (%s), %d left unassigned", res.Assigned, res.Mode, res.Leftover),
				refresh: true,
			}

		case "import":
			if len(args) < 1 {
				return commandResultMsg{message: "Usage: import <file.xlsx|file.csv> [auto]"}
			}
			auto := len(args) > 1 && args[1] == "auto"
			res, err := a.client.UploadBatch(ctx, args[0], auto)
			if err != nil {
				return commandResultMsg{message: "Error: " + err.Error()}
			}
			msg := fmt.Sprintf("✓ Batch %s: %d imported, %d skipped", res.Batch.ID, res.Imported, res.Skipped)
			if res.AutoAssigned != nil {
				msg += fmt.Sprintf(", %d auto-assigned", res.AutoAssigned.Assigned)
			}
			return commandResultMsg{message: msg, refresh: true}

		case "connected", "missed":
			if lead == nil {
				return commandResultMsg{message: "No lead selected"}
			}
			note, err := a.client.RecordOutcome(ctx, lead.ID, cmd == "connected", strings.Join(args, " "))
			if err != nil {
				return commandResultMsg{message: "Error: " + err.Error()}
			}
			return commandResultMsg{message: fmt.Sprintf("✓ %s: %s", lead.Name, note.Stage), refresh: true}

		case "agent":
			return a.agentCommand(ctx, args, agents)

		default:
			return commandResultMsg{message: fmt.Sprintf("Unknown: %s (try: plan, assign, import, connected, missed, agent, filter)", cmd)}
		}
	}
}

func (a *App) agentCommand(ctx context.Context, args []string, agents []models.Agent) tea.Msg {
	if len(args) < 2 {
		return commandResultMsg{message: "Usage: agent add <handle> <role> | agent <active|hold|deactivated> <handle>"}
	}

	if args[0] == "add" {
		if len(args) < 3 {
			return commandResultMsg{message: "Usage: agent add <handle> <role>"}
		}
		agent, err := a.client.CreateAgent(ctx, args[1], models.Role(args[2]))
		if err != nil {
			return commandResultMsg{message: "Error: " + err.Error()}
		}
		return commandResultMsg{message: fmt.Sprintf("✓ Added %s (%s)", agent.Handle, agent.Role), refresh: true}
	}

	status := models.AgentStatus(args[0])
	if !status.Valid() {
		return commandResultMsg{message: fmt.Sprintf("Unknown agent status: %s", args[0])}
	}
	id := resolveTargets([]allocation.Request{{TargetID: args[1]}}, agents)[0].TargetID
	if err := a.client.SetAgentStatus(ctx, id, status); err != nil {
		return commandResultMsg{message: "Error: " + err.Error()}
	}
	return commandResultMsg{message: fmt.Sprintf("✓ %s is now %s", args[1], status), refresh: true}
}

func result(msg string) tea.Cmd {
	return func() tea.Msg { return commandResultMsg{message: msg} }
}
