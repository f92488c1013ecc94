//go:build unix

package process

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestTerminateGroupStopsChild(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn sleep: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := TerminateGroup(cmd.Process.Pid); err != nil {
		t.Fatalf("TerminateGroup: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit after TerminateGroup")
	}
}
