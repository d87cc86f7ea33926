//go:build windows
// +build windows

package utils

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func ConfigureAsProcessGroup() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// TerminateProcessGroup asks the process and its children to exit.
func TerminateProcessGroup(cmd *exec.Cmd) error {
	return taskkill(cmd, false)
}

func KillProcessGroup(cmd *exec.Cmd) error {
	return taskkill(cmd, true)
}

// Taskkill command documentation: https://learn.microsoft.com/en-us/windows-server/administration/windows-commands/taskkill
func taskkill(cmd *exec.Cmd, force bool) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	args := []string{"/T", "/PID", strconv.Itoa(cmd.Process.Pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}

	kill := exec.Command("TASKKILL", args...)
	kill.Stderr = os.Stderr
	kill.Stdout = os.Stdout
	return kill.Run()
}
