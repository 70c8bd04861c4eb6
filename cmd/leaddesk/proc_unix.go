//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureServerProc detaches the background server from the terminal.
func configureServerProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
