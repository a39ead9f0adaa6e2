//go:build unix

package xray

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"xprobe/internal/paths"
)

// Detach puts cmd in its own process group so it outlives the CLI and can
// be killed as a group. Under sudo the child drops back to the real user.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	if uid, gid, ok := paths.RealUser(); ok {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(uid),
			Gid: uint32(gid),
		}
	}
}

// ProcessAlive reports whether pid refers to a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// KillGroup kills the process group led by pid.
func KillGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return unix.Kill(pid, unix.SIGKILL)
	}
	return nil
}

// Interrupt asks pid to shut down gracefully.
func Interrupt(pid int) error {
	return unix.Kill(pid, unix.SIGINT)
}
