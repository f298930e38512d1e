//go:build !windows
// +build !windows

package scanner

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcess puts the child in its own process group so that a
// timeout or cancel reaches every process nmap started. The group gets
// SIGTERM first and SIGKILL once grace has elapsed.
func configureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	sig := syscall.SIGTERM
	if grace <= 0 {
		sig = syscall.SIGKILL
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, sig)
	}
	cmd.WaitDelay = grace
}

// killGroup removes anything left in the group after the leader exited
func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
