//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStartsNewProcessGroup(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	Set(cmd)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, pgid, "child must lead its own group")
}

func TestKillGroupTerminatesChild(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	err := KillGroup(cmd.Process.Pid, time.Second, 2*time.Second)
	assert.NoError(t, err)
	// The child is gone; Wait just collects the exit status.
	_ = cmd.Wait()
}

func TestKillGroupEscalatesToSigkill(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	start := time.Now()
	err := KillGroup(cmd.Process.Pid, 200*time.Millisecond, 2*time.Second)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	_ = cmd.Wait()
}

func TestKillGroupMissingProcess(t *testing.T) {
	assert.NoError(t, KillGroup(0, time.Second, time.Second))
	assert.NoError(t, KillGroup(99999999, 100*time.Millisecond, time.Second))
}
