package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fentz26/leaddesk/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !serverRunning() {
		fmt.Println("leaddesk server not running. Starting background service...")
		if err := startServer(); err != nil {
			return eris.Wrap(err, "failed to start server")
		}
	}

	if err := tui.New(apiClient()).Run(); err != nil {
		return eris.Wrap(err, "TUI error")
	}
	return nil
}

func serverRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return apiClient().Health(ctx) == nil
}

func startServer() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "serve")
	configureServerProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for server...")
	for i := 0; i < 20; i++ {
		if serverRunning() {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return eris.Errorf("server started but API not reachable at %s", apiAddr)
}
