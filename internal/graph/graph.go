// Package graph builds and drives the bipartite Job/File DAG described in
// spec.md §3-§4.E: task declarations become Job nodes, concrete paths become
// File nodes, and every cross-reference is a plain int index into a single
// arena — never a pointer — so the graph can be walked and mutated from one
// goroutine without aliasing concerns (spec.md §9 REDESIGN FLAGS).
package graph

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"chompbuild.dev/internal/config"
)

// Graph owns the full Job/File arena for one chomp invocation.
type Graph struct {
	nodes         []Node
	taskJobs      map[string]int // task name -> job index
	fileNodes     map[string]int // cleaned file path -> file index
	interpolation []interpolationRow
	fsys          fs.FS
	root          string
}

// Build constructs a Graph from the manifest's post-template-expansion task
// list. root is the directory globs are resolved relative to (normally the
// manifest's directory).
func Build(tasks []config.Task, root string) (*Graph, error) {
	g := &Graph{
		taskJobs:  make(map[string]int),
		fileNodes: make(map[string]int),
		fsys:      os.DirFS(root),
		root:      root,
	}

	for _, t := range tasks {
		if err := g.addTask(t); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) addTask(t config.Task) error {
	targets := t.AllTargets()
	if len(targets) > 1 {
		return fmt.Errorf("graph: task %q declares more than one target", t.Name)
	}

	jobIdx := len(g.nodes)
	job := JobNode{
		Name:     t.Name,
		Task:     t,
		TargetID: noIndex,
		State:    JobUninitialized,
	}
	g.nodes = append(g.nodes, Node{Kind: KindJob, Job: job})

	if t.Name != "" {
		if _, exists := g.taskJobs[t.Name]; exists {
			return fmt.Errorf("%w: task %q declared more than once", ErrDuplicateTarget, t.Name)
		}
		g.taskJobs[t.Name] = jobIdx
	}

	if len(targets) == 1 {
		target := targets[0]
		if containsGlobMeta(target) && !containsToken(target) {
			return fmt.Errorf("%w: %q", ErrWildcardTarget, target)
		}
		if containsToken(target) {
			g.interpolation = append(g.interpolation, interpolationRow{
				targetPattern: target,
				jobID:         jobIdx,
				depPatterns:   t.AllDeps(),
			})
			job = g.nodes[jobIdx].Job
			job.Pattern = true
			g.nodes[jobIdx].Job = job
		} else {
			fileIdx, err := g.ensureFile(target)
			if err != nil {
				return err
			}
			if existing := g.nodes[fileIdx].File.ProducerID; existing != noIndex {
				return fmt.Errorf("%w: %q", ErrDuplicateTarget, target)
			}
			file := g.nodes[fileIdx].File
			file.ProducerID = jobIdx
			g.nodes[fileIdx].File = file
			job = g.nodes[jobIdx].Job
			job.TargetID = fileIdx
			g.nodes[jobIdx].Job = job
		}
	}

	for _, dep := range t.AllDeps() {
		if containsToken(dep) {
			// Resolved lazily at ExpandTarget time against the paired
			// interpolation row; no static edge exists yet.
			continue
		}
		depIdx, err := g.ensureFile(dep)
		if err != nil {
			return err
		}
		job := g.nodes[jobIdx].Job
		job.Deps = append(job.Deps, depIdx)
		g.nodes[jobIdx].Job = job
	}

	return nil
}

func containsGlobMeta(s string) bool {
	return doublestar.ValidatePattern(s) && (indexAny(s, "*?[") >= 0)
}

func indexAny(s, chars string) int {
	for i, r := range s {
		for _, c := range chars {
			if r == c {
				return i
			}
		}
	}
	return -1
}

func containsToken(s string) bool {
	return indexAny(s, "#") >= 0
}

func cleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// ensureFile returns the index of the File node for path, creating it if
// this is the first reference.
func (g *Graph) ensureFile(path string) (int, error) {
	clean := cleanPath(path)
	if idx, ok := g.fileNodes[clean]; ok {
		return idx, nil
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, Node{Kind: KindFile, File: FileNode{
		Path:       clean,
		ProducerID: noIndex,
		State:      FileUninitialized,
	}})
	g.fileNodes[clean] = idx
	return idx, nil
}

// LookupTarget resolves a user- or dependency-requested target string
// through the four-step order of spec.md §4.E:
//  1. exact task name
//  2. exact file node already known to the graph
//  3. an interpolation row whose target pattern matches (tie-broken by
//     bestInterpolationMatch)
//  4. a bare filesystem path passthrough (a source file with no producing
//     job), verified to exist
func (g *Graph) LookupTarget(name string) (int, error) {
	if idx, ok := g.taskJobs[name]; ok {
		return idx, nil
	}

	clean := cleanPath(name)
	if idx, ok := g.fileNodes[clean]; ok {
		return idx, nil
	}

	if row, captured, found := bestInterpolationMatch(g.interpolation, clean); found {
		return g.synthesizeInterpolated(row, captured)
	}

	if containsGlobMeta(name) {
		return noIndex, fmt.Errorf("%w: %q", ErrWildcardTarget, name)
	}

	info, err := os.Stat(filepath.Join(g.root, clean))
	if err != nil {
		return noIndex, fmt.Errorf("%w: %q", ErrTargetNotFound, name)
	}
	idx, ferr := g.ensureFile(clean)
	if ferr != nil {
		return noIndex, ferr
	}
	file := g.nodes[idx].File
	file.State = FileFresh
	file.ModTime = info.ModTime()
	g.nodes[idx].File = file
	return idx, nil
}

// synthesizeInterpolated materializes a concrete Job/File pair for one glob
// match of an interpolation row, mirroring expand_interpolate: the row's
// dep patterns are substituted with the same captured fragment and resolved
// recursively through LookupTarget.
func (g *Graph) synthesizeInterpolated(row interpolationRow, captured string) (int, error) {
	target := substitute(row.targetPattern, captured)
	clean := cleanPath(target)
	if idx, ok := g.fileNodes[clean]; ok && g.nodes[idx].File.ProducerID != noIndex {
		return g.nodes[idx].File.ProducerID, nil
	}

	base := g.nodes[row.jobID].Job.Task
	jobIdx := len(g.nodes)
	job := JobNode{
		Name:     fmt.Sprintf("%s[%s]", base.Name, captured),
		Task:     base,
		TargetID: noIndex,
		State:    JobUninitialized,
	}
	g.nodes = append(g.nodes, Node{Kind: KindJob, Job: job})

	fileIdx, err := g.ensureFile(target)
	if err != nil {
		return noIndex, err
	}
	file := g.nodes[fileIdx].File
	file.ProducerID = jobIdx
	g.nodes[fileIdx].File = file

	job = g.nodes[jobIdx].Job
	job.TargetID = fileIdx
	for _, depPattern := range row.depPatterns {
		depPath := substitute(depPattern, captured)
		depIdx, err := g.LookupTarget(depPath)
		if err != nil {
			return noIndex, err
		}
		job.Deps = append(job.Deps, depIdx)
	}
	g.nodes[jobIdx].Job = job

	return jobIdx, nil
}

// ExpandTarget expands the interpolation row owned by jobIdx, if any. It
// globs each `#`-bearing dependency pattern against the filesystem
// (doublestar, `#` replaced with `**/*`) to discover the set of captured
// fragments a concrete job must exist for, then calls synthesizeInterpolated
// once per distinct fragment — the same job-creation path LookupTarget uses
// for a single concrete request — wiring each synthesized job as a Deps
// entry of the pattern job. A job that does not itself own an interpolation
// row (every non-interpolated task, and every job synthesizeInterpolated
// already produced) is left untouched: spec.md §3 — "a Job whose target
// contains `#` but has no bound interpolation substring ... is never
// directly run; only its synthesized children run."
func (g *Graph) ExpandTarget(jobIdx int) error {
	var row interpolationRow
	found := false
	for _, r := range g.interpolation {
		if r.jobID == jobIdx {
			row, found = r, true
			break
		}
	}
	if !found {
		return nil
	}

	captures := map[string]bool{}
	for _, dep := range row.depPatterns {
		if !containsToken(dep) {
			continue
		}
		globPattern := substitute(dep, "**/*")
		matches, err := doublestar.Glob(g.fsys, globPattern)
		if err != nil {
			return fmt.Errorf("graph: invalid interpolation glob %q: %w", dep, err)
		}
		for _, match := range matches {
			captured, ok := matchInterpolated(dep, match)
			if !ok {
				continue
			}
			captures[captured] = true
		}
	}

	job := g.nodes[jobIdx].Job
	existing := make(map[int]bool, len(job.Deps))
	for _, d := range job.Deps {
		existing[d] = true
	}
	for captured := range captures {
		childIdx, err := g.synthesizeInterpolated(row, captured)
		if err != nil {
			return err
		}
		if !existing[childIdx] {
			job.Deps = append(job.Deps, childIdx)
			existing[childIdx] = true
		}
	}
	g.nodes[jobIdx].Job = job
	return nil
}

// Node returns a copy of the arena element at idx.
func (g *Graph) Node(idx int) Node {
	return g.nodes[idx]
}

// SetJob replaces the JobNode at idx.
func (g *Graph) SetJob(idx int, job JobNode) {
	g.nodes[idx].Job = job
}

// SetFile replaces the FileNode at idx.
func (g *Graph) SetFile(idx int, file FileNode) {
	g.nodes[idx].File = file
}

// Root returns the directory all relative paths resolve against.
func (g *Graph) Root() string {
	return g.root
}

// Touch forces the next statFile call for the file node at idx to re-stat
// the filesystem, used after a job runs and may have changed its target's
// mtime.
func (g *Graph) Touch(idx int) {
	file := g.nodes[idx].File
	file.lastChecked = false
	g.nodes[idx].File = file
}
