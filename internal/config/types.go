// Package config parses and validates the chompfile manifest: the
// declarative description of tasks, their targets, dependencies, and the
// templates/extensions that expand them. Manifest parsing is an external,
// out-of-scope concern for the graph/driver core (spec.md §1); this
// package exists only to produce the in-memory []Task the core consumes.
package config

// Invalidation names the policy under which a task's target is considered
// stale relative to its dependencies (spec.md §4.G).
type Invalidation string

const (
	InvalidationNotFound Invalidation = "not-found"
	InvalidationMtime    Invalidation = "mtime"
	InvalidationAlways   Invalidation = "always"
)

// Engine names the execution engine a task's command body runs under.
type Engine string

const (
	EngineShell Engine = "shell"
	EngineNode  Engine = "node"
	EngineDeno  Engine = "deno"
)

// ServerConfig configures the (out-of-scope) static dev server.
type ServerConfig struct {
	Root string `yaml:"root"`
	Port int    `yaml:"port"`
}

// Manifest is the top-level chompfile document (spec.md §6).
type Manifest struct {
	Version         string                    `yaml:"version"`
	DefaultTask     string                    `yaml:"default-task"`
	Extensions      []string                  `yaml:"extensions"`
	Env             map[string]string         `yaml:"env"`
	EnvDefault      map[string]string         `yaml:"env-default"`
	Server          ServerConfig              `yaml:"server"`
	Tasks           []Task                    `yaml:"task"`
	TemplateOptions map[string]map[string]any `yaml:"template-options"`
}

// Task is a single manifest task entry, prior to template expansion
// (spec.md §3 "Task (post-template)" describes the concrete form this
// decays into; this struct is the raw declared form, which may still
// carry a `template` name).
type Task struct {
	Name            string            `yaml:"name"`
	Target          string            `yaml:"target"`
	Targets         []string          `yaml:"targets"`
	Dep             string            `yaml:"dep"`
	Deps            []string          `yaml:"deps"`
	Args            []string          `yaml:"args"`
	Serial          bool              `yaml:"serial"`
	Invalidation    Invalidation      `yaml:"invalidation"`
	Display         string            `yaml:"display"`
	Engine          Engine            `yaml:"engine"`
	Run             string            `yaml:"run"`
	Cwd             string            `yaml:"cwd"`
	Template        string            `yaml:"template"`
	TemplateOptions map[string]any    `yaml:"template-options"`
	Env             map[string]string `yaml:"env"`
	EnvDefault      map[string]string `yaml:"env-default"`
}

// AllDeps returns the task's dependency list, accepting either the
// singular `dep` or plural `deps` manifest key (not both).
func (t Task) AllDeps() []string {
	if t.Dep != "" {
		return append([]string{t.Dep}, t.Deps...)
	}
	return t.Deps
}

// AllTargets returns the task's declared target, accepting either the
// singular `target` or plural `targets` manifest key. A task has at most
// one concrete target under this spec; Validate rejects setting both keys,
// and graph.Build rejects a task whose list holds more than one target.
func (t Task) AllTargets() []string {
	if t.Target != "" {
		return append([]string{t.Target}, t.Targets...)
	}
	return t.Targets
}
