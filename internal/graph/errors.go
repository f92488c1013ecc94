package graph

import "errors"

// ErrWildcardTarget is returned when a requested target contains a glob
// wildcard. The driver never partially emulates wildcard expansion for a
// user-requested target — only for interpolated dependency rows.
var ErrWildcardTarget = errors.New("graph: wildcard targets are not supported")

// ErrDuplicateTarget is returned at build time when two tasks claim the
// same concrete (non-interpolated) target.
var ErrDuplicateTarget = errors.New("graph: duplicate target")

// ErrTargetNotFound is returned by LookupTarget when none of the four
// resolution steps (task name, file node, interpolation row, filesystem
// passthrough) match.
var ErrTargetNotFound = errors.New("graph: target not found")

// ErrCycle is returned when ExpandTarget detects a dependency cycle while
// walking the DAG.
var ErrCycle = errors.New("graph: dependency cycle detected")
