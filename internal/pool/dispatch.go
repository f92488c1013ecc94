package pool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"chompbuild.dev/internal/config"
	"chompbuild.dev/internal/launcher"
)

// running tracks in-flight Execs so Terminate can signal them.
var (
	runningMu sync.Mutex
	running   = make(map[CommandID]*exec.Cmd)
)

// dispatchGroup runs one exec for a batcher-merged group and resolves every
// member command with the same Result (spec.md §4.D: an exec's result is
// shared across all ids a batcher folded into it). mergedRun, if non-empty,
// overrides the dispatched command line; otherwise the group's sole member's
// own Run is used.
func (p *Pool) dispatchGroup(members []pending, mergedRun string) {
	primary := members[0].cmd
	if mergedRun != "" {
		primary.Run = mergedRun
	}

	cmdLine, env, cleanup, err := p.prepareDispatch(primary)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		p.resolveAll(members, Result{State: ExecFailed, Err: err})
		return
	}

	ctx := context.Background()
	proc, err := p.launcher.Spawn(ctx, cmdLine, env, primary.Cwd)
	if err != nil {
		p.resolveAll(members, Result{State: ExecFailed, Err: err})
		return
	}

	runningMu.Lock()
	for _, b := range members {
		running[b.cmd.ID] = proc
	}
	runningMu.Unlock()

	waitErr := proc.Wait()

	runningMu.Lock()
	for _, b := range members {
		delete(running, b.cmd.ID)
	}
	runningMu.Unlock()

	if waitErr == nil {
		p.resolveAll(members, Result{State: ExecFresh, ExitCode: 0})
		return
	}

	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		p.resolveAll(members, Result{State: ExecFailed, Err: fmt.Errorf("pool: wait: %w", waitErr)})
		return
	}
	p.resolveAll(members, Result{State: ExecFailed, ExitCode: exitErr.ExitCode(), Err: waitErr})
}

func (p *Pool) resolveAll(members []pending, res Result) {
	for _, b := range members {
		p.resolve(b, res)
	}
}

// prepareDispatch returns the concrete command line and environment to
// spawn, plus an optional cleanup for any temp file created for the
// node/deno bootstrap path.
func (p *Pool) prepareDispatch(cmd Command) (cmdLine string, env map[string]string, cleanup func(), err error) {
	switch cmd.Engine {
	case "", config.EngineShell:
		return cmd.Run, cmd.Env, nil, nil
	case config.EngineNode, config.EngineDeno:
		return bootstrapScriptEngine(cmd)
	default:
		return "", nil, nil, fmt.Errorf("pool: %w %q", launcher.ErrEngineNotFound, cmd.Engine)
	}
}

// bootstrapScriptEngine writes cmd.Run to a temp file and returns a command
// line invoking the node/deno runtime against it, with CHOMP_MAIN/
// CHOMP_PATH set so the script can locate its own source (spec.md §4.D,
// §6.3).
func bootstrapScriptEngine(cmd Command) (string, map[string]string, func(), error) {
	ext := ".mjs"
	runtime := "node"
	if cmd.Engine == config.EngineDeno {
		runtime = "deno"
	}

	f, err := os.CreateTemp("", "chomp-*"+ext)
	if err != nil {
		return "", nil, nil, fmt.Errorf("pool: failed to create bootstrap script: %w", err)
	}
	if _, err := f.WriteString(cmd.Run); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, nil, fmt.Errorf("pool: failed to write bootstrap script: %w", err)
	}
	f.Close()

	cleanup := func() { os.Remove(f.Name()) }

	env := make(map[string]string, len(cmd.Env)+2)
	for k, v := range cmd.Env {
		env[k] = v
	}
	env["CHOMP_MAIN"] = f.Name()
	env["CHOMP_PATH"] = cmd.Cwd

	runArgs := f.Name()
	if cmd.Engine == config.EngineDeno {
		runArgs = "run --allow-all " + f.Name()
	}

	return runtime + " " + runArgs, env, cleanup, nil
}
