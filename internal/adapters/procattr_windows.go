//go:build windows

package adapters

import (
	"os/exec"
	"syscall"
)

// setProcAttr sets platform-specific process attributes for spawned debug
// adapters. On Windows, we create a new process group for better process
// management.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// signalProcessGroup terminates the process. Windows has no Unix-style
// process groups or graceful signals, so every signal is a hard kill.
func signalProcessGroup(pid int, cmd *exec.Cmd, _ syscall.Signal) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			if err.Error() != "os: process already finished" {
				return err
			}
		}
	}
	return nil
}
