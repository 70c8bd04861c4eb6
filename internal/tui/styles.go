package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/leaddesk/internal/models"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

func leadStatusLabel(s models.LeadStatus) string {
	switch s {
	case models.LeadStatusFresh:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ FRESH")
	case models.LeadStatusInProgress:
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◐ IN PROGRESS")
	case models.LeadStatusConverted:
		return lipgloss.NewStyle().Foreground(successColor).Render("● CONVERTED")
	default:
		return string(s)
	}
}

func agentStatusLabel(s models.AgentStatus) string {
	switch s {
	case models.AgentStatusActive:
		return onlineStyle.Render("●")
	case models.AgentStatusHold:
		return lipgloss.NewStyle().Foreground(warningColor).Render("◐")
	default:
		return offlineStyle.Render("○")
	}
}
