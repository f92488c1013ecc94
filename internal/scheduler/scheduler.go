// Package scheduler implements the Driver (spec.md §4.F): it walks the
// Job/File DAG built by internal/graph, running eligible jobs through
// internal/pool in dependency order — never declaration order — and
// isolating a failed subtree from the rest of the graph.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chompbuild.dev/internal/chomplog"
	"chompbuild.dev/internal/graph"
	"chompbuild.dev/internal/pool"
)

// Driver owns one invocation's walk over a Graph. All Graph reads/writes
// are funneled through the methods below under d.mu, the "single
// threaded core" spec.md §9 describes — the Graph itself assumes a single
// mutating goroutine, so concurrent job drives serialize their access to
// it the same way Pool serializes its own batching state, while the slow
// part of a drive (waiting on a dispatched Exec) happens outside the lock
// so independent jobs can still land in the same Pool batch window.
type Driver struct {
	g     *graph.Graph
	p     *pool.Pool
	log   *chomplog.Logger
	force bool

	mu    sync.Mutex
	gates map[int]*jobGate
}

// jobGate lets concurrent drivers of the same job (a diamond dependency
// reached from two different parents at once) wait for the one goroutine
// actually resolving it instead of resolving it twice.
type jobGate struct {
	done chan struct{}
	err  error
}

// New creates a Driver. force mirrors a --force CLI flag: every job is
// treated as invalidation:always for this invocation only, never mutating
// the manifest's declared policy (spec.md §9).
func New(g *graph.Graph, p *pool.Pool, logger *chomplog.Logger, force bool) *Driver {
	return &Driver{g: g, p: p, log: logger, force: force, gates: make(map[int]*jobGate)}
}

// DriveTargets resolves each requested target and drives all of them
// concurrently, matching the original driver's drive_targets entry point.
// A target that fails does not prevent independent targets from still
// being attempted — each runs in its own goroutine against the shared
// Graph/Pool, so an unrelated failure never cancels a sibling target's
// progress.
func (d *Driver) DriveTargets(ctx context.Context, targets []string) error {
	idxs := make([]int, 0, len(targets))
	var lookupErr error
	for _, t := range targets {
		idx, err := d.lookupTarget(t)
		if err != nil {
			if lookupErr == nil {
				lookupErr = err
			}
			continue
		}
		idxs = append(idxs, idx)
	}

	errs := make([]error, len(idxs))
	var wg sync.WaitGroup
	for i, idx := range idxs {
		i, idx := i, idx
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.drive(ctx, idx, map[int]bool{})
		}()
	}
	wg.Wait()

	if lookupErr != nil {
		return lookupErr
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// drive walks idx's dependencies recursively (via driveJob/resolveJob) and,
// once they have all resolved, decides whether idx's own job needs to run.
func (d *Driver) drive(ctx context.Context, idx int, visiting map[int]bool) error {
	node := d.node(idx)

	if node.Kind == graph.KindFile {
		if node.File.ProducerID < 0 {
			return nil // source file with no producing job: nothing to drive
		}
		return d.drive(ctx, node.File.ProducerID, visiting)
	}

	return d.driveJob(ctx, idx, visiting)
}

// driveJob ensures jobIdx is resolved exactly once even if several
// concurrent siblings reach it at once, and detects true cycles (the job
// already on the current path's call stack) before ever touching the gate.
func (d *Driver) driveJob(ctx context.Context, jobIdx int, visiting map[int]bool) error {
	d.mu.Lock()
	job := d.g.Node(jobIdx).Job
	if job.State == graph.JobFresh || job.State == graph.JobFailed {
		d.mu.Unlock()
		return nil
	}
	if visiting[jobIdx] {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", graph.ErrCycle, job.Name)
	}
	if gate, ok := d.gates[jobIdx]; ok {
		d.mu.Unlock()
		<-gate.done
		return gate.err
	}
	gate := &jobGate{done: make(chan struct{})}
	d.gates[jobIdx] = gate
	d.mu.Unlock()

	childVisiting := cloneVisiting(visiting)
	childVisiting[jobIdx] = true

	err := d.resolveJob(ctx, jobIdx, childVisiting)
	gate.err = err
	close(gate.done)
	return err
}

// resolveJob expands jobIdx's interpolation row (if it owns one), drives
// every dependency concurrently, and then decides whether jobIdx itself
// needs to run.
func (d *Driver) resolveJob(ctx context.Context, jobIdx int, visiting map[int]bool) error {
	job := d.node(jobIdx).Job
	job.State = graph.JobPending
	d.setJob(jobIdx, job)

	if err := d.expandTarget(jobIdx); err != nil {
		return d.failJob(jobIdx, err)
	}

	job = d.node(jobIdx).Job
	deps := append([]int(nil), job.Deps...)

	var eg errgroup.Group
	for _, depIdx := range deps {
		depIdx := depIdx
		eg.Go(func() error {
			return d.drive(ctx, depIdx, visiting)
		})
	}
	depErr := eg.Wait()

	depFailed := false
	for _, depIdx := range deps {
		depNode := d.node(depIdx)
		if depNode.Kind == graph.KindJob && depNode.Job.State == graph.JobFailed {
			depFailed = true
		}
		if depNode.Kind == graph.KindFile && depNode.File.ProducerID >= 0 {
			if d.node(depNode.File.ProducerID).Job.State == graph.JobFailed {
				depFailed = true
			}
		}
	}

	if depFailed {
		return d.failJob(jobIdx, fmt.Errorf("scheduler: dependency of %q failed", job.Name))
	}
	if depErr != nil {
		return depErr
	}

	needsRun, err := d.needsRun(jobIdx)
	if err != nil {
		return d.failJob(jobIdx, err)
	}
	if !needsRun {
		d.log.JobCached(job.Name)
		job.State = graph.JobFresh
		d.setJob(jobIdx, job)
		return nil
	}

	return d.runJob(ctx, jobIdx)
}

func (d *Driver) runJob(ctx context.Context, jobIdx int) error {
	job := d.node(jobIdx).Job
	if job.Task.Run == "" || job.Pattern {
		// A grouping task or an unbound pattern row: its own freshness is
		// entirely a function of the dependency states already checked in
		// resolveJob — there is nothing to dispatch.
		job.State = graph.JobFresh
		d.setJob(jobIdx, job)
		return nil
	}

	d.log.JobStart(job.Name)
	start := time.Now()

	id := d.p.Batch(pool.Command{
		Task:   job.Task,
		Env:    d.buildEnv(job),
		Cwd:    job.Task.Cwd,
		Engine: job.Task.Engine,
		Run:    job.Task.Run,
	})

	res, err := d.p.ExecFuture(ctx, id)
	if err != nil {
		return d.failJob(jobIdx, err)
	}
	if res.State != pool.ExecFresh {
		return d.failJob(jobIdx, fmt.Errorf("scheduler: job %q exited %d: %w", job.Name, res.ExitCode, res.Err))
	}

	d.log.JobComplete(job.Name, time.Since(start))
	job.State = graph.JobFresh
	d.setJob(jobIdx, job)

	if job.TargetID >= 0 {
		d.touch(job.TargetID)
	}
	return nil
}

// buildEnv layers the per-job $DEP/$TARGET substitutions spec.md §8
// scenario S4 relies on (e.g. a command body of "cc -c $DEP -o $TARGET")
// over the task's declared env, without mutating the manifest's own env
// map. Multiple file deps are space-joined, mirroring how a shell would
// expect a multi-file $DEP to be interpolated into an argument list.
// launcher.Launcher already expands $NAME references against the env map
// it is given (substituteEnvRefs), so no launcher change is needed — this
// only has to make sure DEP/TARGET are present in that map.
func (d *Driver) buildEnv(job graph.JobNode) map[string]string {
	env := make(map[string]string, len(job.Task.Env)+2)
	for k, v := range job.Task.Env {
		env[k] = v
	}

	var deps []string
	for _, depIdx := range job.Deps {
		node := d.node(depIdx)
		if node.Kind == graph.KindFile {
			deps = append(deps, node.File.Path)
		}
	}
	if len(deps) > 0 {
		env["DEP"] = strings.Join(deps, " ")
	}
	if job.TargetID >= 0 {
		env["TARGET"] = d.node(job.TargetID).File.Path
	}
	return env
}

func (d *Driver) failJob(jobIdx int, err error) error {
	job := d.node(jobIdx).Job
	job.State = graph.JobFailed
	job.Err = err
	d.setJob(jobIdx, job)
	d.log.JobFailed(job.Name, err)
	return err
}

// cloneVisiting copies the current path's cycle-detection stack for a
// fork into a new goroutine; siblings must not share one mutable map.
func cloneVisiting(v map[int]bool) map[int]bool {
	cp := make(map[int]bool, len(v)+1)
	for k := range v {
		cp[k] = true
	}
	return cp
}

func (d *Driver) node(idx int) graph.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.g.Node(idx)
}

func (d *Driver) setJob(idx int, job graph.JobNode) {
	d.mu.Lock()
	d.g.SetJob(idx, job)
	d.mu.Unlock()
}

func (d *Driver) expandTarget(idx int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.g.ExpandTarget(idx)
}

func (d *Driver) needsRun(idx int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.g.NeedsRun(idx, d.force)
}

func (d *Driver) lookupTarget(name string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.g.LookupTarget(name)
}

func (d *Driver) touch(idx int) {
	d.mu.Lock()
	d.g.Touch(idx)
	d.mu.Unlock()
}
