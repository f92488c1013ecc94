package graph

import (
	"time"

	"chompbuild.dev/internal/config"
)

// JobState is the lifecycle of a Job node (spec.md §3).
type JobState int

const (
	JobUninitialized JobState = iota
	JobPending
	JobRunning
	JobFresh
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobFresh:
		return "fresh"
	case JobFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// FileState is the lifecycle of a File node (spec.md §3).
type FileState int

const (
	FileUninitialized FileState = iota
	FileFresh
	FileChanged
	FileNotFound
)

func (s FileState) String() string {
	switch s {
	case FileFresh:
		return "fresh"
	case FileChanged:
		return "changed"
	case FileNotFound:
		return "not-found"
	default:
		return "uninitialized"
	}
}

// NodeKind discriminates the two node shapes living in the single arena.
type NodeKind int

const (
	KindJob NodeKind = iota
	KindFile
)

// noIndex marks an absent index reference (no pointers are ever stored;
// cross-references are always plain ints into Graph.nodes).
const noIndex = -1

// JobNode is a task instance, possibly synthesized from an interpolation
// row match. Deps holds node indices (job or file) this job must wait on.
type JobNode struct {
	Name     string
	Task     config.Task
	TargetID int // index of this job's produced File node, or noIndex
	Deps     []int
	State    JobState
	Err      error

	// Pattern marks the original, never-synthesized job declared for a
	// `#`-bearing target. It is never run directly — ExpandTarget wires its
	// synthesized children as Deps and the scheduler drives those instead
	// (spec.md §3). Children created by synthesizeInterpolated leave this
	// false even though they share the same underlying Task, which still
	// carries the unsubstituted `#` pattern in its Target field.
	Pattern bool
}

// FileNode is a concrete path participating in the graph, either a
// dependency read from disk or a target produced by a Job.
type FileNode struct {
	Path        string
	ProducerID  int // index of the Job node that produces this file, or noIndex
	State       FileState
	ModTime     time.Time
	lastChecked bool
}

// Node is the arena element: exactly one of Job/File is meaningful,
// selected by Kind. Keeping both embedded (rather than a pointer union)
// means Graph.nodes is a single contiguous, pointer-free slice.
type Node struct {
	Kind NodeKind
	Job  JobNode
	File FileNode
}
