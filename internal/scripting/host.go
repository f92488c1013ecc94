// Package scripting embeds the JS environment templates and batchers run
// in (spec.md §4.B), grounded on the pure-Go QuickJS bindings used by the
// plugin runtime in the reference corpus's wikilite example: one VM per
// Host, host functions installed with RegisterFunc, JS called back into
// with Call/CallValue using a JSON-bridge for argument/result marshaling.
package scripting

import (
	"encoding/json"
	"fmt"
	"sync"

	"modernc.org/quickjs"
)

// ScriptError carries a JS exception out of the VM boundary (spec.md §7).
// toScriptError fills Message with the VM error's text; Stack is not
// populated by this package.
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("scripting: %s\n%s", e.Message, e.Stack)
	}
	return fmt.Sprintf("scripting: %s", e.Message)
}

// Host owns one QuickJS VM and the template/batcher functions extensions
// have registered into it via the global Chomp object.
type Host struct {
	mu       sync.Mutex
	vm       *quickjs.VM
	tpl      map[string]struct{}
	bat      map[string]struct{}
	batOrder []string
}

// NewHost creates a Host with the Chomp.registerTemplate/registerBatcher
// bridge installed.
func NewHost() (*Host, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("scripting: failed to create VM: %w", err)
	}

	h := &Host{vm: vm, tpl: map[string]struct{}{}, bat: map[string]struct{}{}}
	if err := h.install(); err != nil {
		vm.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the underlying VM.
func (h *Host) Close() error {
	return h.vm.Close()
}

// The register hooks run only from inside JS executed by Eval/RunTemplate/
// RunBatcher, each of which already holds h.mu, so they must not lock it
// again.
func (h *Host) install() error {
	if err := h.vm.RegisterFunc("__chomp_register_template", func(name string) {
		h.tpl[name] = struct{}{}
	}); err != nil {
		return fmt.Errorf("scripting: failed to register template hook: %w", err)
	}

	if err := h.vm.RegisterFunc("__chomp_register_batcher", func(name string) {
		if _, exists := h.bat[name]; !exists {
			h.batOrder = append(h.batOrder, name)
		}
		h.bat[name] = struct{}{}
	}); err != nil {
		return fmt.Errorf("scripting: failed to register batcher hook: %w", err)
	}

	bridge := `
		var Chomp = {
			_templates: {},
			_batchers: {},
			registerTemplate: function(name, fn) {
				Chomp._templates[name] = fn;
				__chomp_register_template(name);
			},
			registerBatcher: function(name, fn) {
				Chomp._batchers[name] = fn;
				__chomp_register_batcher(name);
			}
		};
		function __run_template_json(name, argsJSON) {
			var fn = Chomp._templates[name];
			if (!fn) throw new Error("template not registered: " + name);
			var args = JSON.parse(argsJSON);
			return JSON.stringify(fn(args.task, args.env));
		}
		function __run_batcher_json(name, argsJSON) {
			var fn = Chomp._batchers[name];
			if (!fn) throw new Error("batcher not registered: " + name);
			var args = JSON.parse(argsJSON);
			return JSON.stringify(fn(args.batch, args.running));
		}
	`
	if _, err := h.vm.Eval(bridge, quickjs.EvalGlobal); err != nil {
		return fmt.Errorf("scripting: failed to install bridge: %w", err)
	}
	return nil
}

// Eval runs an extension's top-level script, registering whatever
// templates/batchers it declares via Chomp.registerTemplate/registerBatcher.
func (h *Host) Eval(source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.vm.Eval(source, quickjs.EvalGlobal); err != nil {
		return toScriptError(err)
	}
	return nil
}

// HasTemplate reports whether name was registered by a loaded extension.
func (h *Host) HasTemplate(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tpl[name]
	return ok
}

// HasBatcher reports whether name was registered by a loaded extension.
func (h *Host) HasBatcher(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.bat[name]
	return ok
}

// Batchers returns the names of registered batchers in registration order
// (spec.md §4.B: "batchers as an ordered list").
func (h *Host) Batchers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.batOrder))
	copy(out, h.batOrder)
	return out
}

func toScriptError(err error) error {
	return &ScriptError{Message: err.Error()}
}

func marshalArgs(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("scripting: failed to marshal arguments: %w", err)
	}
	return string(b), nil
}
