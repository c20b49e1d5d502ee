//go:build !windows

package vsbisect

import (
	"errors"
	"os/exec"
	"syscall"
)

// sysProcAttr puts spawned processes into their own process group so the
// whole tree can be signalled at once.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killTree kills the process group of cmd. A group that already exited is
// not an error.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
