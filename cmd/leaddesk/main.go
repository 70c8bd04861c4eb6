package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/client"
	"github.com/fentz26/leaddesk/internal/config"
	"github.com/fentz26/leaddesk/internal/crm"
	"github.com/fentz26/leaddesk/internal/models"
)

var rootCmd = &cobra.Command{
	Use:   "leaddesk",
	Short: "leaddesk - real-estate lead desk",
	Long: `leaddesk imports lead spreadsheets, distributes them to telecallers and agents
by count or percentage, and tracks calls, site visits and callbacks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		if apiAddr == "" {
			apiAddr = "http://" + cfg.Server.Addr
		}
		return config.InitLogger(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	cfg       *config.Config
	apiAddr   string
	actorID   string
	actorRole string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "API server URL (default: http:// + server.addr)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "cli", "Agent ID to act as")
	rootCmd.PersistentFlags().StringVar(&actorRole, "role", string(models.RoleAdmin), "Role to act as (admin, manager, telecaller, agent)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(leadCmd)
	rootCmd.AddCommand(callbackCmd)
	rootCmd.AddCommand(visitCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(tuiCmd)
}

// apiClient returns a client acting as the --actor/--role identity.
func apiClient() *client.Client {
	return client.New(apiAddr, crm.Actor{ID: actorID, Role: models.Role(actorRole)})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
