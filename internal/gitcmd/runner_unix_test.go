//go:build unix

package gitcmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// A unique sleep duration makes the grandchild findable via pgrep.
	marker := fmt.Sprintf("sleep 3973.%d", os.Getpid())
	script := fmt.Sprintf("%s & exec %s", marker, marker)

	runner := NewRunner()
	_, err := runner.Run(context.Background(), Request{
		Bin:     "sh",
		Args:    []string{"-c", script},
		Dir:     t.TempDir(),
		Timeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTimeout)

	// The backgrounded grandchild must die with the group, at the latest
	// when the post-grace hard kill lands.
	deadline := time.Now().Add(killGrace + 3*time.Second)
	for time.Now().Before(deadline) {
		out, _ := exec.Command("pgrep", "-f", marker).Output()
		if len(bytes.TrimSpace(out)) == 0 {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("background child survived the timeout")
}
