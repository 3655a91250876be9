//go:build windows

package gitcmd

import "os/exec"

// Process groups are a unix concept; on Windows CommandContext's default
// kill-on-cancel is the best available.
func setupProcessGroup(cmd *exec.Cmd) {}
