package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/allocation"
	"github.com/fentz26/leaddesk/internal/audit"
	"github.com/fentz26/leaddesk/internal/config"
	"github.com/fentz26/leaddesk/internal/crm"
	"github.com/fentz26/leaddesk/internal/models"
	"github.com/fentz26/leaddesk/internal/scheduler"
	"github.com/fentz26/leaddesk/internal/store"
)

var (
	listenAddr string
	dbPath     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the leaddesk API server",
	Long:  `Starts the HTTP API that the CLI, the TUI and browser clients talk to.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides store.path)")
}

func serviceOptions(c config.AssignConfig) (crm.Options, error) {
	var opts crm.Options
	if c.DefaultMode != "" {
		m, err := allocation.ParseMode(c.DefaultMode)
		if err != nil {
			return opts, eris.Wrap(err, "config: assign.default_mode")
		}
		opts.DefaultMode = m
	}
	for _, r := range c.EligibleRoles {
		role := models.Role(r)
		if !role.Valid() {
			return opts, eris.Errorf("config: assign.eligible_roles: unknown role %q", r)
		}
		opts.EligibleRoles = append(opts.EligibleRoles, role)
	}
	return opts, nil
}

func reminderConfig(c config.ReminderConfig) *scheduler.Config {
	sc := scheduler.DefaultConfig()
	if c.Interval > 0 {
		sc.Interval = c.Interval
	}
	if c.BatchSize > 0 {
		sc.BatchSize = c.BatchSize
	}
	return sc
}

func runServe(cmd *cobra.Command, args []string) error {
	log := zap.L()

	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	if listenAddr == "" {
		listenAddr = cfg.Server.Addr
	}
	opts, err := serviceOptions(cfg.Assign)
	if err != nil {
		return err
	}

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	log.Info("store opened", zap.String("path", dbPath))

	rec := audit.NewRecorder(s)
	service := crm.NewService(s, rec, opts)
	server := crm.NewServer(service, listenAddr, cfg.Server.CORSOrigins)

	if cfg.Reminders.Enabled {
		sched := scheduler.New(s, rec, reminderConfig(cfg.Reminders))
		sched.Start()
		defer sched.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
			s.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := s.Close(); err != nil {
		log.Warn("database close", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
