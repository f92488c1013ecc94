//go:build unix

package launcher

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommand builds the shell fallback for unix: `sh -c <cmdLine>`.
func shellCommand(ctx context.Context, cmdLine string) *exec.Cmd {
	return exec.CommandContext(ctx, "sh", "-c", cmdLine)
}

// setProcAttrs puts the spawned process in its own process group so the
// pool's Terminate can signal the whole tree at once.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
