package config

import (
	"fmt"
	"strings"
)

// Validate performs manifest-level validation that does not require the
// task graph to be built yet (spec.md §7 "Config" error kind). Validation
// that depends on cross-task relationships in the expanded graph — duplicate
// concrete targets, wildcard/interpolation conflicts — happens in
// internal/graph once targets are expanded.
func Validate(manifest *Manifest) error {
	var errs []string

	if manifest.Version != "0.1" {
		errs = append(errs, fmt.Sprintf("unsupported chompfile version %q (expected \"0.1\")", manifest.Version))
	}

	seen := make(map[string]bool, len(manifest.Tasks))
	for i, task := range manifest.Tasks {
		if err := validateTask(i, task); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if task.Name != "" {
			if seen[task.Name] {
				errs = append(errs, fmt.Sprintf("task %q declared more than once", task.Name))
			}
			seen[task.Name] = true
		}
	}

	if manifest.DefaultTask != "" && !seen[manifest.DefaultTask] {
		errs = append(errs, fmt.Sprintf("default-task %q does not name a declared task", manifest.DefaultTask))
	}

	for name, task := range namedTasks(manifest.Tasks) {
		for _, dep := range task.AllDeps() {
			if dep == "" {
				continue
			}
			if _, ok := seen[dep]; !ok && !looksLikeTarget(dep) {
				errs = append(errs, fmt.Sprintf("task %q: dep %q does not match any declared task name or target", name, dep))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateTask(index int, task Task) error {
	var errs []string
	label := task.Name
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}

	if task.Target != "" && len(task.Targets) > 0 {
		errs = append(errs, fmt.Sprintf("task %q: target and targets are mutually exclusive", label))
	}
	if task.Dep != "" && len(task.Deps) > 0 {
		errs = append(errs, fmt.Sprintf("task %q: dep and deps are mutually exclusive", label))
	}

	if task.Run != "" && task.Template != "" {
		errs = append(errs, fmt.Sprintf("task %q: run and template are mutually exclusive", label))
	}

	switch task.Invalidation {
	case "", InvalidationNotFound, InvalidationMtime, InvalidationAlways:
	default:
		errs = append(errs, fmt.Sprintf("task %q: invalid invalidation %q", label, task.Invalidation))
	}

	switch task.Engine {
	case "", EngineShell, EngineNode, EngineDeno:
	default:
		errs = append(errs, fmt.Sprintf("task %q: invalid engine %q", label, task.Engine))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func namedTasks(tasks []Task) map[string]Task {
	out := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if t.Name != "" {
			out[t.Name] = t
		}
	}
	return out
}

// looksLikeTarget reports whether a dep string is a file path/glob rather
// than a named task reference — both are legal dep values (spec.md §3) and
// only name-shaped values that match no declared task are an error here;
// the graph package resolves path-shaped deps against the file system.
func looksLikeTarget(dep string) bool {
	return strings.ContainsAny(dep, "/.*#") || strings.Contains(dep, "**")
}
