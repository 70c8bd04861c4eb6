// Package config loads leaddesk configuration and builds the global logger.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig    `yaml:"store" mapstructure:"store"`
	Server    ServerConfig   `yaml:"server" mapstructure:"server"`
	Log       LogConfig      `yaml:"log" mapstructure:"log"`
	Assign    AssignConfig   `yaml:"assign" mapstructure:"assign"`
	Reminders ReminderConfig `yaml:"reminders" mapstructure:"reminders"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AssignConfig holds distribution defaults.
type AssignConfig struct {
	// DefaultMode is used when a request names no mode. Empty means the
	// mode is inferred from the weights.
	DefaultMode string `yaml:"default_mode" mapstructure:"default_mode"`
	// EligibleRoles restricts which roles may receive leads. Empty allows
	// any active agent.
	EligibleRoles []string `yaml:"eligible_roles" mapstructure:"eligible_roles"`
}

// ReminderConfig controls the due-callback sweep run by the server.
type ReminderConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// DefaultDBPath returns ~/.leaddesk/leaddesk.db, or a relative path when
// the home directory is unknown.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".leaddesk", "leaddesk.db")
	}
	return filepath.Join(home, ".leaddesk", "leaddesk.db")
}

// Load reads leaddesk.yaml (optional), LEADDESK_* environment variables and
// defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("leaddesk")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".leaddesk"))
	}

	v.SetEnvPrefix("LEADDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.path", DefaultDBPath())
	v.SetDefault("server.addr", "127.0.0.1:7466")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("assign.default_mode", "")
	v.SetDefault("assign.eligible_roles", []string{})
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval", time.Minute)
	v.SetDefault("reminders.batch_size", 200)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
