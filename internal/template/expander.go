// Package template implements the Template Expander (spec.md §4.C):
// declaration-time expansion of a `template:`-bearing task into zero or
// more concrete tasks, driven by the embedded scripting host.
package template

import (
	"errors"
	"fmt"
	"strings"

	"chompbuild.dev/internal/config"
	"chompbuild.dev/internal/scripting"
)

// ErrTemplateNotFound is returned when a task names a template no loaded
// extension registered.
var ErrTemplateNotFound = errors.New("template: not found")

// ErrTemplateCycle is returned when expansion does not reach a fixpoint
// within maxDepth re-applications.
var ErrTemplateCycle = errors.New("template: expansion did not converge (possible cycle)")

// maxDepth bounds re-application of templates to their own output, per
// spec.md §4.C.
const maxDepth = 16

// Expand repeatedly applies registered templates to tasks until no task
// names an unexpanded template or maxDepth is reached, returning the final
// flat, template-free task list. Templates receive a lowercased snapshot
// of env and must not touch the filesystem — enforced by contract, as in
// the original, not by sandboxing.
func Expand(host *scripting.Host, tasks []config.Task, env map[string]string) ([]config.Task, error) {
	lowered := lowerKeys(env)
	current := tasks

	for depth := 0; depth < maxDepth; depth++ {
		next := make([]config.Task, 0, len(current))
		expanded := false

		for _, t := range current {
			if t.Template == "" {
				next = append(next, t)
				continue
			}
			expanded = true

			if !host.HasTemplate(t.Template) {
				return nil, fmt.Errorf("%w: %q (task %q)", ErrTemplateNotFound, t.Template, t.Name)
			}

			out, err := host.RunTemplate(t.Template, t, lowered)
			if err != nil {
				return nil, fmt.Errorf("template: expanding task %q via %q: %w", t.Name, t.Template, err)
			}
			next = append(next, out...)
		}

		current = next
		if !expanded {
			return current, nil
		}
	}

	return nil, ErrTemplateCycle
}

func lowerKeys(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToLower(k)] = v
	}
	return out
}
