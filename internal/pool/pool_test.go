package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"chompbuild.dev/internal/config"
	"chompbuild.dev/internal/launcher"
)

func TestExecFutureResolvesShellCommand(t *testing.T) {
	l := launcher.New(t.TempDir())
	p := New(2, nil, l)

	id := p.Batch(Command{Engine: config.EngineShell, Run: "exit 0"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.ExecFuture(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != ExecFresh {
		t.Fatalf("expected ExecFresh, got %v (err=%v)", res.State, res.Err)
	}
}

func TestExecFutureReportsNonZeroExit(t *testing.T) {
	l := launcher.New(t.TempDir())
	p := New(2, nil, l)

	id := p.Batch(Command{Engine: config.EngineShell, Run: "exit 7"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.ExecFuture(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != ExecFailed || res.ExitCode != 7 {
		t.Fatalf("expected ExecFailed/7, got %v/%d", res.State, res.ExitCode)
	}
}

func TestBatcherGroupsSubmissionsWithinWindow(t *testing.T) {
	l := launcher.New(t.TempDir())
	var sawBatchSize int
	batcher := func(batch []Command, running []Command) (BatcherResult, error) {
		sawBatchSize = len(batch)
		groups := make([]Group, len(batch))
		for i, c := range batch {
			groups[i] = Group{IDs: []CommandID{c.ID}}
		}
		return BatcherResult{Groups: groups}, nil
	}
	p := New(4, batcher, l)

	id1 := p.Batch(Command{Engine: config.EngineShell, Run: "exit 0"})
	id2 := p.Batch(Command{Engine: config.EngineShell, Run: "exit 0"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := p.ExecFuture(ctx, id1); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ExecFuture(ctx, id2); err != nil {
		t.Fatal(err)
	}
	if sawBatchSize != 2 {
		t.Fatalf("expected both commands in one batch, got batch size %d", sawBatchSize)
	}
}

// TestBatcherMergesGroupIntoSharedExec exercises spec.md §5 scenario S5:
// a batcher that folds two commands into one merged exec, whose result
// both source command ids must observe identically.
func TestBatcherMergesGroupIntoSharedExec(t *testing.T) {
	l := launcher.New(t.TempDir())
	batcher := func(batch []Command, running []Command) (BatcherResult, error) {
		ids := make([]CommandID, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}
		return BatcherResult{Groups: []Group{{IDs: ids, Run: "exit 0"}}}, nil
	}
	p := New(4, batcher, l)

	id1 := p.Batch(Command{Engine: config.EngineShell, Run: "exit 1"})
	id2 := p.Batch(Command{Engine: config.EngineShell, Run: "exit 2"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res1, err := p.ExecFuture(ctx, id1)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := p.ExecFuture(ctx, id2)
	if err != nil {
		t.Fatal(err)
	}
	if res1.State != ExecFresh || res2.State != ExecFresh {
		t.Fatalf("expected both merged commands to observe the merged exec's success, got %v/%v", res1.State, res2.State)
	}
}

// TestBatcherDefersCommandToNextWindow exercises the defer outcome of
// spec.md §4.D's (defer, exec, completion_map) contract: a batcher that
// holds a command undispatched must see it again in a later window rather
// than have it silently forced through as a passthrough singleton.
func TestBatcherDefersCommandToNextWindow(t *testing.T) {
	l := launcher.New(t.TempDir())
	var mu sync.Mutex
	calls := 0
	batcher := func(batch []Command, running []Command) (BatcherResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			ids := make([]CommandID, len(batch))
			for i, c := range batch {
				ids[i] = c.ID
			}
			return BatcherResult{Deferred: ids}, nil
		}
		groups := make([]Group, len(batch))
		for i, c := range batch {
			groups[i] = Group{IDs: []CommandID{c.ID}}
		}
		return BatcherResult{Groups: groups}, nil
	}
	p := New(2, batcher, l)

	id := p.Batch(Command{Engine: config.EngineShell, Run: "exit 0"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.ExecFuture(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != ExecFresh {
		t.Fatalf("expected the deferred command to eventually dispatch, got %v (err=%v)", res.State, res.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Fatalf("expected the batcher to see the deferred command again in a later window, got %d calls", calls)
	}
}

// TestBatcherCompletionMapClaimsRunningExec exercises the completion_map
// outcome: a batcher can fold a new command into an already-dispatched
// exec's result without spawning anything of its own.
func TestBatcherCompletionMapClaimsRunningExec(t *testing.T) {
	l := launcher.New(t.TempDir())
	var mu sync.Mutex
	var firstID CommandID
	batcher := func(batch []Command, running []Command) (BatcherResult, error) {
		mu.Lock()
		first := firstID
		mu.Unlock()

		if first == 0 {
			groups := make([]Group, len(batch))
			for i, c := range batch {
				groups[i] = Group{IDs: []CommandID{c.ID}}
			}
			return BatcherResult{Groups: groups}, nil
		}
		var stillRunning bool
		for _, r := range running {
			if r.ID == first {
				stillRunning = true
			}
		}
		groups := make([]Group, 0, len(batch))
		for _, c := range batch {
			if stillRunning {
				groups = append(groups, Group{IDs: []CommandID{c.ID}, Claim: first})
				continue
			}
			groups = append(groups, Group{IDs: []CommandID{c.ID}})
		}
		return BatcherResult{Groups: groups}, nil
	}
	p := New(2, batcher, l)

	id1 := p.Batch(Command{Engine: config.EngineShell, Run: "sleep 0.05 && exit 0"})
	mu.Lock()
	firstID = id1
	mu.Unlock()

	time.Sleep(10 * time.Millisecond) // let the first window fire so its exec is inflight
	secondID := p.Batch(Command{Engine: config.EngineShell, Run: "exit 9"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res1, err := p.ExecFuture(ctx, id1)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := p.ExecFuture(ctx, secondID)
	if err != nil {
		t.Fatal(err)
	}
	if res1.State != ExecFresh || res2.State != ExecFresh {
		t.Fatalf("expected both ids to observe the claimed exec's success, got %v/%v", res1, res2)
	}
}
