//go:build unix

package process

import (
	"fmt"
	"syscall"
)

// killProcessGroup sends a signal to an entire process group.
//
// The negative PID (-pgid) is the standard Unix way to signal a process
// group. All processes with that PGID receive the signal, including the
// dispatched command and any descendants it spawned.
//
// This is safe because launcher.Spawn makes every dispatched command the
// leader of its own process group. We only affect processes spawned by
// that specific command.
func killProcessGroup(pid int, sig syscall.Signal) error {
	// Send signal to process group (negative PID)
	// The kernel correctly interprets negative values despite type conversion
	err := syscall.Kill(-pid, sig)
	if err != nil {
		// ESRCH means no such process/group - acceptable if already dead
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("failed to signal process group %d: %w", pid, err)
	}
	return nil
}
