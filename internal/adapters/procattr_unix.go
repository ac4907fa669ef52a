//go:build !windows

package adapters

import (
	"os/exec"
	"syscall"
)

// setProcAttr sets platform-specific process attributes for spawned debug
// adapters. On Unix, we create a new session so the adapter becomes a process
// group leader, allowing us to signal the entire process tree on teardown.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// signalProcessGroup delivers sig to a process and its entire group.
// ESRCH means the group is already gone, which is fine.
func signalProcessGroup(pid int, cmd *exec.Cmd, sig syscall.Signal) error {
	if pid > 0 {
		if err := syscall.Kill(-pid, sig); err != nil {
			if err != syscall.ESRCH {
				return err
			}
		}
		return nil
	}
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Signal(sig); err != nil {
			if err.Error() != "os: process already finished" {
				return err
			}
		}
	}
	return nil
}
