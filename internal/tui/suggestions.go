package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions is the autocomplete dropdown under the command bar. A leading
// "/" completes commands and "@" completes agent handles and batch IDs.
type Suggestions struct {
	commands   []SuggestionItem
	references []SuggestionItem
	filtered   []SuggestionItem
	selected   int
	prefix     byte
}

// SuggestionItem is a single autocomplete entry.
type SuggestionItem struct {
	Text        string
	Description string
}

var commandSuggestions = []SuggestionItem{
	{Text: "plan", Description: "Preview a batch distribution"},
	{Text: "assign", Description: "Distribute a batch to agents"},
	{Text: "import", Description: "Upload an .xlsx or .csv batch"},
	{Text: "connected", Description: "Log a connected call on the selected lead"},
	{Text: "missed", Description: "Log an unanswered call with a reason"},
	{Text: "agent add", Description: "Add an agent"},
	{Text: "agent hold", Description: "Put an agent on hold"},
	{Text: "filter", Description: "Filter leads by status"},
	{Text: "quit", Description: "Leave leaddesk"},
}

// NewSuggestions creates an empty dropdown.
func NewSuggestions() *Suggestions {
	return &Suggestions{commands: commandSuggestions}
}

// SetReferences replaces the "@" completions.
func (s *Suggestions) SetReferences(handles, batchIDs []string) {
	s.references = s.references[:0]
	for _, h := range handles {
		s.references = append(s.references, SuggestionItem{Text: h, Description: "agent"})
	}
	for _, id := range batchIDs {
		s.references = append(s.references, SuggestionItem{Text: id, Description: "batch"})
	}
}

// Update filters the dropdown against the word being typed.
func (s *Suggestions) Update(input string) {
	s.filtered = nil
	s.selected = 0
	s.prefix = 0

	word := input
	if i := strings.LastIndexByte(input, ' '); i >= 0 {
		word = input[i+1:]
	}
	if word == "" {
		return
	}

	var pool []SuggestionItem
	switch word[0] {
	case '/':
		if word != input {
			return
		}
		pool = s.commands
	case '@':
		pool = s.references
	default:
		return
	}
	s.prefix = word[0]

	query := strings.ToLower(word[1:])
	for _, item := range pool {
		if strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
}

// Complete replaces the word being typed with the selected suggestion.
func (s *Suggestions) Complete(input string) string {
	sel := s.Selected()
	if sel == nil {
		return input
	}
	head := ""
	if i := strings.LastIndexByte(input, ' '); i >= 0 {
		head = input[:i+1]
	}
	s.filtered = nil
	return head + sel.Text + " "
}

// Next moves to the next suggestion.
func (s *Suggestions) Next() {
	if len(s.filtered) > 0 {
		s.selected = (s.selected + 1) % len(s.filtered)
	}
}

// Prev moves to the previous suggestion.
func (s *Suggestions) Prev() {
	if len(s.filtered) > 0 {
		s.selected = (s.selected - 1 + len(s.filtered)) % len(s.filtered)
	}
}

// Selected returns the highlighted suggestion, or nil.
func (s *Suggestions) Selected() *SuggestionItem {
	if len(s.filtered) == 0 {
		return nil
	}
	return &s.filtered[s.selected]
}

// IsVisible reports whether there is anything to show.
func (s *Suggestions) IsVisible() bool {
	return len(s.filtered) > 0
}

// Render draws the dropdown.
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))
	pick := lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true)

	var b strings.Builder
	header := "Commands"
	if s.prefix == '@' {
		header = "References"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header) + "\n")

	const maxVisible = 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(helpStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}
		if i == s.selected {
			b.WriteString(pick.Render("▶ "+item.Text) + " " + pick.Render(item.Description) + "\n")
		} else {
			b.WriteString("  " + item.Text + " " + helpStyle.Render(item.Description) + "\n")
		}
	}
	return box.Render(b.String())
}
