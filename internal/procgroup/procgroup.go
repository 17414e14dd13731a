// SPDX-License-Identifier: MIT

// Package procgroup starts child processes in their own process group and
// reaps the whole group on shutdown. The recording pipelines are two-stage
// (feeder piped into the muxer); killing only the direct child would leave
// the other stage running against a broken pipe.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

// ErrKillFailed reports a group that survived SIGKILL past the timeout.
var ErrKillFailed = errors.New("procgroup: kill failed")

// Set configures cmd to start as the leader of a new process group. It
// must be called before cmd.Start for KillGroup to work.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// KillGroup terminates the process group led by pid: SIGTERM, a grace
// window, then SIGKILL with a final timeout. The caller still owns the
// cmd.Wait call for the direct child.
func KillGroup(pid int, grace, timeout time.Duration) error {
	return killGroup(pid, grace, timeout)
}
