package graph

import (
	"os"
	"path/filepath"
	"time"

	"chompbuild.dev/internal/config"
)

// NeedsRun decides whether the job at jobIdx must execute, per the three
// invalidation policies of spec.md §4.G:
//
//	not-found — run only if the target is missing (grouping tasks with no
//	            target, i.e. TargetID == noIndex, always run under this
//	            policy, since there is nothing to check for absence).
//	mtime     — run if the target is missing or older than any dependency
//	            (the default policy).
//	always    — always run, regardless of target/dependency state. A
//	            scheduler-level --force override is implemented by calling
//	            NeedsRun with force=true, which behaves identically to a
//	            job declared `invalidation: always` for that invocation
//	            only — it never mutates the manifest's declared policy.
func (g *Graph) NeedsRun(jobIdx int, force bool) (bool, error) {
	job := g.nodes[jobIdx].Job
	policy := job.Task.Invalidation
	if policy == "" {
		policy = config.InvalidationMtime
	}
	if force || policy == config.InvalidationAlways {
		return true, nil
	}

	if job.TargetID == noIndex {
		// Grouping task: no file to check staleness against, so it always
		// runs under not-found/mtime too — its freshness is entirely a
		// function of its dependencies' job states, decided by the
		// scheduler, not this function.
		return true, nil
	}

	targetState, targetTime, err := g.statFile(job.TargetID)
	if err != nil {
		return false, err
	}
	if targetState == FileNotFound {
		return true, nil
	}
	if policy == config.InvalidationNotFound {
		return false, nil
	}

	for _, depIdx := range job.Deps {
		if g.nodes[depIdx].Kind != KindFile {
			continue
		}
		depState, depTime, err := g.statFile(depIdx)
		if err != nil {
			return false, err
		}
		if depState == FileNotFound {
			continue
		}
		if depTime.After(targetTime) {
			return true, nil
		}
	}
	return false, nil
}

// statFile stats the file at idx if it has not already been checked this
// invocation, caching the result on the node.
func (g *Graph) statFile(idx int) (FileState, time.Time, error) {
	file := g.nodes[idx].File
	if file.lastChecked {
		return file.State, file.ModTime, nil
	}

	info, err := os.Stat(filepath.Join(g.root, file.Path))
	if err != nil {
		if os.IsNotExist(err) {
			file.State = FileNotFound
			file.lastChecked = true
			g.nodes[idx].File = file
			return file.State, time.Time{}, nil
		}
		return FileUninitialized, time.Time{}, err
	}

	file.ModTime = info.ModTime()
	file.State = FileFresh
	file.lastChecked = true
	g.nodes[idx].File = file
	return file.State, file.ModTime, nil
}
