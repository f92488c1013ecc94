package pool

import (
	"fmt"
	"time"

	"chompbuild.dev/internal/process"
)

// Terminate sends SIGTERM to the process group of the running Exec for id,
// then waits up to 5s for it to exit before sending SIGKILL. It records no
// Terminating/Terminated state: the killed command resolves through
// dispatchGroup like any other failed wait, as ExecFailed.
func (p *Pool) Terminate(id CommandID) error {
	runningMu.Lock()
	proc, ok := running[id]
	runningMu.Unlock()
	if !ok {
		return fmt.Errorf("pool: no running exec for command %d", id)
	}

	if err := process.TerminateGroup(proc.Process.Pid); err != nil {
		return fmt.Errorf("pool: failed to terminate command %d: %w", id, err)
	}

	deadline := time.After(5 * time.Second)
	for {
		runningMu.Lock()
		_, stillRunning := running[id]
		runningMu.Unlock()
		if !stillRunning {
			return nil
		}
		select {
		case <-deadline:
			return process.KillGroup(proc.Process.Pid)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
