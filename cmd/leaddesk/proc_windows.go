//go:build windows

package main

import "os/exec"

// configureServerProc is a no-op; Windows children outlive the parent console.
func configureServerProc(cmd *exec.Cmd) {}
