//go:build !windows
// +build !windows

package utils

import (
	"os/exec"
	"syscall"
)

func ConfigureAsProcessGroup() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// TerminateProcessGroup asks the process and its children to exit.
func TerminateProcessGroup(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd, syscall.SIGTERM)
}

func KillProcessGroup(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd, syscall.SIGKILL)
}

func signalProcessGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		// group is gone or was never created
		return cmd.Process.Signal(sig)
	}
	return syscall.Kill(-pgid, sig)
}
