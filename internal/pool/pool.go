// Package pool implements the Command Pool & Batcher (spec.md §4.D): a
// bounded-concurrency executor that lets an extension-registered batcher
// coalesce commands submitted within a short window before any of them is
// actually dispatched to a process.
package pool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"chompbuild.dev/internal/config"
	"chompbuild.dev/internal/launcher"
)

// CommandID identifies one Batch() submission.
type CommandID uint64

// ExecState names the Exec lifecycle states of spec.md §3. The pool only
// ever resolves a command to ExecFresh or ExecFailed; ExecPending,
// ExecExecuting, ExecTerminating and ExecTerminated are declared but never
// assigned, and a command stopped by Terminate resolves as ExecFailed.
type ExecState int

const (
	ExecPending ExecState = iota
	ExecExecuting
	ExecFresh
	ExecFailed
	ExecTerminating
	ExecTerminated
)

// Result is what ExecFuture resolves to.
type Result struct {
	ExitCode int
	State    ExecState
	Err      error
}

// Batcher is the host-provided coalescing hook installed by an extension's
// registerBatcher call (spec.md §4.B/§4.D). Given the commands armed in one
// batch window and the commands already running, it decides how to group
// them into dispatches.
type Batcher func(batch []Command, running []Command) (BatcherResult, error)

// Group is one dispatch unit a batcher decided to serve with a single exec.
// Multiple source CommandIDs sharing a Group share that exec's Result
// (spec.md §4.D: "both source command ids appear in that exec's ids"). Run,
// if non-empty, replaces the merged command line; a single-member group with
// an empty Run dispatches its member's own command line unchanged. Claim, if
// non-zero, is the completion_map outcome (spec.md §4.D/§4.B): rather than
// spawning anything, the group's members resolve to whatever CommandID
// Claim eventually resolves to — piggy-backing on an exec the batcher
// recognized as already doing the same work.
type Group struct {
	IDs   []CommandID
	Run   string
	Claim CommandID
}

// BatcherResult groups batch members into one or more execs to dispatch.
// Deferred lists ids a batcher chose to hold, undispatched, for the next
// batch window rather than resolve in this one (spec.md §4.D's third
// outcome alongside exec and completion_map) — they are re-armed exactly
// like a fresh Batch() submission.
type BatcherResult struct {
	Groups   []Group
	Deferred []CommandID
}

// Command is one unit submitted to the pool.
type Command struct {
	ID     CommandID
	Task   config.Task
	Env    map[string]string
	Cwd    string
	Engine config.Engine
	Run    string
}

type pending struct {
	cmd    Command
	future chan Result
}

// Pool is the single owner of the batching set, the pool-size semaphore,
// and the map of in-flight/resolved futures. Its mutable state is only
// ever touched from the goroutine that calls its exported methods plus the
// batch-window timer goroutine it spawns internally — never concurrently
// mutated from elsewhere, matching spec.md §5's single-threaded-core model.
type Pool struct {
	mu       sync.Mutex
	armed    bool
	window   time.Duration
	batch    []pending
	resolved map[CommandID]Result
	sem      *semaphore.Weighted
	batcher  Batcher
	nextID   uint64
	launcher *launcher.Launcher

	// inflight tracks commands currently dispatched (between runGroup
	// acquiring the semaphore and their exec resolving) so the next batch
	// window's batcher invocation can see real `running` data instead of
	// nil — the completion_map half of spec.md §4.D's contract.
	inflightMu sync.Mutex
	inflight   map[CommandID]Command
}

// New creates a Pool bounded to poolSize concurrent dispatches, using the
// ~5ms batch window of spec.md §4.D. With a nil batcher commands still wait
// for the window, then every command dispatches in its own group.
func New(poolSize int64, batcher Batcher, l *launcher.Launcher) *Pool {
	return &Pool{
		window:   5 * time.Millisecond,
		resolved: make(map[CommandID]Result),
		inflight: make(map[CommandID]Command),
		sem:      semaphore.NewWeighted(poolSize),
		batcher:  batcher,
		launcher: l,
	}
}

// Batch submits a command to the pool's current batch window, arming the
// window timer if this is the first submission since it last fired, and
// returns the CommandID future callers pass to ExecFuture.
func (p *Pool) Batch(cmd Command) CommandID {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := CommandID(p.nextID)
	cmd.ID = id

	future := make(chan Result, 1)
	p.batch = append(p.batch, pending{cmd: cmd, future: future})

	if !p.armed {
		p.armed = true
		go p.fireAfter(p.window)
	}
	return id
}

func (p *Pool) fireAfter(d time.Duration) {
	time.Sleep(d)
	p.mu.Lock()
	batch := p.batch
	p.batch = nil
	p.armed = false
	p.mu.Unlock()

	p.dispatchBatch(batch)
}

// dispatchBatch runs the registered batcher (if any) to decide grouping,
// re-arms any ids the batcher chose to defer to the next window, then
// dispatches each remaining group concurrently, bounded by the pool
// semaphore.
func (p *Pool) dispatchBatch(batch []pending) {
	if len(batch) == 0 {
		return
	}

	byID := make(map[CommandID]pending, len(batch))
	for _, b := range batch {
		byID[b.cmd.ID] = b
	}

	groups := []Group{}
	var deferred []CommandID
	if p.batcher != nil {
		cmds := make([]Command, len(batch))
		for i, b := range batch {
			cmds[i] = b.cmd
		}
		result, err := p.batcher(cmds, p.snapshotInflight())
		if err != nil {
			for _, b := range batch {
				p.resolve(b, Result{State: ExecFailed, Err: fmt.Errorf("pool: batcher: %w", err)})
			}
			return
		}
		groups = result.Groups
		deferred = result.Deferred
	} else {
		for _, b := range batch {
			groups = append(groups, Group{IDs: []CommandID{b.cmd.ID}})
		}
	}

	if len(deferred) > 0 {
		p.mu.Lock()
		for _, id := range deferred {
			if b, ok := byID[id]; ok {
				p.batch = append(p.batch, b)
			}
		}
		if !p.armed && len(p.batch) > 0 {
			p.armed = true
			go p.fireAfter(p.window)
		}
		p.mu.Unlock()
	}

	var wg sync.WaitGroup
	for _, group := range groups {
		group := group
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runGroup(group, byID)
		}()
	}
	wg.Wait()
}

// runGroup either claims an already-running exec on the group's behalf
// (completion_map) or dispatches one exec for the whole group, sharing its
// Result across every member CommandID — a batcher-merged group produces
// exactly one child process, not one per source command (spec.md §4.D).
func (p *Pool) runGroup(group Group, byID map[CommandID]pending) {
	members := make([]pending, 0, len(group.IDs))
	for _, id := range group.IDs {
		if b, ok := byID[id]; ok {
			members = append(members, b)
		}
	}
	if len(members) == 0 {
		return
	}

	if group.Claim != 0 {
		p.runClaimGroup(group.Claim, members)
		return
	}

	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		for _, b := range members {
			p.resolve(b, Result{State: ExecFailed, Err: err})
		}
		return
	}
	defer p.sem.Release(1)

	p.markInflight(members)
	defer p.clearInflight(members)

	p.dispatchGroup(members, group.Run)
}

// runClaimGroup resolves members with whatever Result claim eventually
// produces, without spawning a process of its own (spec.md §4.D
// completion_map: a batcher recognized that claim's in-flight exec already
// does this work).
func (p *Pool) runClaimGroup(claim CommandID, members []pending) {
	res, err := p.ExecFuture(context.Background(), claim)
	if err != nil {
		res = Result{State: ExecFailed, Err: fmt.Errorf("pool: completion_map claim on command %d: %w", claim, err)}
	}
	p.resolveAll(members, res)
}

func (p *Pool) markInflight(members []pending) {
	p.inflightMu.Lock()
	for _, b := range members {
		p.inflight[b.cmd.ID] = b.cmd
	}
	p.inflightMu.Unlock()
}

func (p *Pool) clearInflight(members []pending) {
	p.inflightMu.Lock()
	for _, b := range members {
		delete(p.inflight, b.cmd.ID)
	}
	p.inflightMu.Unlock()
}

func (p *Pool) snapshotInflight() []Command {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	out := make([]Command, 0, len(p.inflight))
	for _, c := range p.inflight {
		out = append(out, c)
	}
	return out
}

func (p *Pool) resolve(b pending, res Result) {
	p.mu.Lock()
	p.resolved[b.cmd.ID] = res
	p.mu.Unlock()
	b.future <- res
	close(b.future)
}

// ExecFuture blocks until the command identified by id resolves. While the
// command is still in the batching set it waits on that command's own
// future channel; once the window has taken it (or before it is known), it
// re-checks the resolved map every millisecond (spec.md §4.D).
func (p *Pool) ExecFuture(ctx context.Context, id CommandID) (Result, error) {
	for {
		p.mu.Lock()
		if res, ok := p.resolved[id]; ok {
			p.mu.Unlock()
			return res, nil
		}
		for _, b := range p.batch {
			if b.cmd.ID == id {
				future := b.future
				p.mu.Unlock()
				select {
				case res := <-future:
					return res, nil
				case <-ctx.Done():
					return Result{}, ctx.Err()
				}
			}
		}
		p.mu.Unlock()

		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// Stderr defaults to os.Stderr. Nothing in this module reads or replaces
// it: dispatched commands write to the process's own stderr, which
// launcher.Spawn attaches directly.
var Stderr = os.Stderr
