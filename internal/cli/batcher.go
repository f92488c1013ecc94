package cli

import (
	"chompbuild.dev/internal/pool"
	"chompbuild.dev/internal/scripting"
)

// batcherFromHost adapts the host's registered batchers into a pool.Batcher,
// running each in registration order against the residual batch left by
// earlier batchers — exactly the run_batcher contract of spec.md §4.D. A
// host with no registered batchers yields a nil Batcher, so the pool falls
// back to dispatching every command one-to-one.
//
// Each registered batcher's response can claim ids into an exec group, fold
// them into an already-running exec via Claim (completion_map), or name
// them in Deferred to hold for the next window instead of resolving them
// now. Only an id no batcher touched at all falls back to the default
// one-exec-per-command passthrough.
func batcherFromHost(host *scripting.Host) pool.Batcher {
	names := host.Batchers()
	if len(names) == 0 {
		return nil
	}

	return func(batch, running []pool.Command) (pool.BatcherResult, error) {
		residual := batch
		claimed := make(map[pool.CommandID]bool, len(batch))
		deferred := make(map[pool.CommandID]bool, len(batch))
		var groups []pool.Group
		var deferredIDs []pool.CommandID

		runningReqs := toBatchRequests(running)

		for _, name := range names {
			if len(residual) == 0 {
				break
			}
			resp, err := host.RunBatcher(name, toBatchRequests(residual), runningReqs)
			if err != nil {
				return pool.BatcherResult{}, err
			}
			for _, g := range resp.Groups {
				ids := make([]pool.CommandID, 0, len(g.IDs))
				for _, id := range g.IDs {
					cid := pool.CommandID(id)
					if claimed[cid] || deferred[cid] {
						continue
					}
					claimed[cid] = true
					ids = append(ids, cid)
				}
				if len(ids) > 0 {
					groups = append(groups, pool.Group{IDs: ids, Run: g.Run, Claim: pool.CommandID(g.Claim)})
				}
			}
			for _, id := range resp.Deferred {
				cid := pool.CommandID(id)
				if claimed[cid] || deferred[cid] {
					continue
				}
				deferred[cid] = true
				deferredIDs = append(deferredIDs, cid)
			}
			residual = unclaimed(residual, claimed, deferred)
		}

		for _, c := range residual {
			groups = append(groups, pool.Group{IDs: []pool.CommandID{c.ID}})
		}
		return pool.BatcherResult{Groups: groups, Deferred: deferredIDs}, nil
	}
}

func toBatchRequests(cmds []pool.Command) []scripting.BatchRequest {
	out := make([]scripting.BatchRequest, len(cmds))
	for i, c := range cmds {
		out[i] = scripting.BatchRequest{ID: uint64(c.ID), Run: c.Run, Engine: string(c.Engine)}
	}
	return out
}

func unclaimed(cmds []pool.Command, claimed, deferred map[pool.CommandID]bool) []pool.Command {
	out := cmds[:0:0]
	for _, c := range cmds {
		if !claimed[c.ID] && !deferred[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
