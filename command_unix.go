//go:build unix

package reach

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the shell into its own process group, so that a
// timeout also kills the commands it started.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
