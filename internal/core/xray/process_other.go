//go:build !unix

package xray

import (
	"os"
	"os/exec"
)

// Detach is a no-op on platforms without process groups.
func Detach(cmd *exec.Cmd) {}

// ProcessAlive reports whether pid refers to a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

// KillGroup kills pid.
func KillGroup(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}

// Interrupt kills pid; graceful signals are not available here.
func Interrupt(pid int) error {
	return KillGroup(pid)
}
