//go:build windows

package vsbisect

import (
	"os/exec"
	"strconv"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// killTree tears down cmd and all its children. taskkill complaining means
// the tree is already gone, which is the state we want.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	_ = exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
	return nil
}
