package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/config"
	"github.com/fentz26/leaddesk/internal/models"
)

func TestServiceOptions(t *testing.T) {
	opts, err := serviceOptions(config.AssignConfig{DefaultMode: "Count", EligibleRoles: []string{"telecaller", "agent"}})
	require.NoError(t, err)
	assert.Equal(t, allocation.ModeCount, opts.DefaultMode)
	assert.Equal(t, []models.Role{models.RoleTelecaller, models.RoleAgent}, opts.EligibleRoles)

	_, err = serviceOptions(config.AssignConfig{DefaultMode: "weighted"})
	assert.Error(t, err)

	_, err = serviceOptions(config.AssignConfig{EligibleRoles: []string{"intern"}})
	assert.Error(t, err)
}

func TestReminderConfig(t *testing.T) {
	sc := reminderConfig(config.ReminderConfig{Interval: 5 * time.Second})
	assert.Equal(t, 5*time.Second, sc.Interval)
	assert.Equal(t, 200, sc.BatchSize)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Prestige...", truncate("Prestige Lakeside Habitat", 11))
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"agent", "add"}, {"batch", "assign"}, {"batch", "plan"},
		{"lead", "outcome"}, {"callback", "reschedule"}, {"visit", "move"},
		{"stats"}, {"report"}, {"plan"}, {"tui"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestReportRange(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	from, to := reportRange("", "", now)
	assert.Equal(t, "2026-10-18", from)
	assert.Equal(t, "2026-10-18", to)

	from, to = reportRange("2026-10-01", "", now)
	assert.Equal(t, "2026-10-01", from)
	assert.Equal(t, "2026-10-01", to)

	from, to = reportRange("2026-10-01", "2026-10-15", now)
	assert.Equal(t, "2026-10-01", from)
	assert.Equal(t, "2026-10-15", to)
}

func TestParseDue(t *testing.T) {
	due, err := parseDue("2026-10-20T15:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 15, 30, 0, 0, time.UTC), due)

	due, err = parseDue("2026-10-20 15:30")
	require.NoError(t, err)
	assert.Equal(t, 15, due.Hour())
	assert.Equal(t, time.Local, due.Location())

	_, err = parseDue("tomorrow")
	assert.Error(t, err)
}
