//go:build windows
// +build windows

package scanner

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcess starts the child in a new process group. Windows has
// no SIGTERM, so cancellation kills the process directly.
func configureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = grace
}

func killGroup(int) {}
