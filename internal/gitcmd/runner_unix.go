//go:build unix

package gitcmd

import (
	"os/exec"
	"syscall"
	"time"
)

// setupProcessGroup starts the child in its own process group so that a
// cancel reaches everything it forked. Cancel terms the group; after the
// same grace WaitDelay gives the leader, the group is hard-killed.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid := cmd.Process.Pid
		if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
			// ESRCH means the group is already gone.
			return nil
		}
		time.AfterFunc(killGrace, func() {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		})
		return nil
	}
}
