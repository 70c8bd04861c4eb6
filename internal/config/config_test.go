package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".leaddesk", "leaddesk.db"), cfg.Store.Path)
	assert.Equal(t, "127.0.0.1:7466", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Assign.DefaultMode)
	assert.Empty(t, cfg.Assign.EligibleRoles)
	assert.True(t, cfg.Reminders.Enabled)
	assert.Equal(t, time.Minute, cfg.Reminders.Interval)
	assert.Equal(t, 200, cfg.Reminders.BatchSize)
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := chdirTemp(t)

	yaml := `
store:
  path: /tmp/leads.db
server:
  addr: ":9000"
  cors_origins:
    - http://localhost:3000
log:
  level: debug
  format: console
assign:
  default_mode: count
  eligible_roles: [telecaller, agent]
reminders:
  interval: 30s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaddesk.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/leads.db", cfg.Store.Path)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "count", cfg.Assign.DefaultMode)
	assert.Equal(t, []string{"telecaller", "agent"}, cfg.Assign.EligibleRoles)
	assert.Equal(t, 30*time.Second, cfg.Reminders.Interval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdirTemp(t)
	t.Setenv("LEADDESK_SERVER_ADDR", "0.0.0.0:8080")
	t.Setenv("LEADDESK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadBadYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaddesk.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLogger(t *testing.T) {
	tests := map[string]struct {
		cfg     LogConfig
		wantErr bool
	}{
		"json info":     {cfg: LogConfig{Level: "info", Format: "json"}},
		"console debug": {cfg: LogConfig{Level: "debug", Format: "console"}},
		"bad level":     {cfg: LogConfig{Level: "loud", Format: "json"}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := InitLogger(tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, zap.L())
		})
	}
}
