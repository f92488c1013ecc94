package scripting

import (
	"encoding/json"
	"fmt"

	"chompbuild.dev/internal/config"
)

// RunTemplate calls a registered template function with task and env,
// returning the expansion list it produced (spec.md §4.C).
func (h *Host) RunTemplate(name string, task config.Task, env map[string]string) ([]config.Task, error) {
	argsJSON, err := marshalArgs(map[string]any{"task": task, "env": env})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	resultJSON, err := h.vm.Call("__run_template_json", name, argsJSON)
	h.mu.Unlock()
	if err != nil {
		return nil, toScriptError(err)
	}

	raw, ok := resultJSON.(string)
	if !ok {
		return nil, fmt.Errorf("scripting: template %q returned a non-string bridge result", name)
	}

	var out []config.Task
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("scripting: failed to decode template %q result: %w", name, err)
	}
	return out, nil
}

// BatchRequest and BatchResponse mirror the shapes pool.Command/
// pool.BatcherResult take across the JSON bridge.
type BatchRequest struct {
	ID     uint64 `json:"id"`
	Run    string `json:"run"`
	Engine string `json:"engine"`
}

// BatchGroup names the source command ids a batcher decided to serve with a
// single exec, optionally replacing their run bodies with a merged one
// (spec.md §4.D run_batcher contract). An empty Run leaves the group's sole
// member's original command line untouched. A non-zero Claim is the
// completion_map outcome: the group's members resolve to whatever command
// id Claim eventually resolves to instead of spawning their own exec.
type BatchGroup struct {
	IDs   []uint64 `json:"ids"`
	Run   string   `json:"run"`
	Claim uint64   `json:"claim"`
}

// BatchResponse is a batcher's full verdict for one window: the groups it
// chose to serve, plus the ids it chose to defer to the next window
// instead of serving now (spec.md §4.D's third outcome).
type BatchResponse struct {
	Groups   []BatchGroup `json:"groups"`
	Deferred []uint64     `json:"deferred"`
}

// RunBatcher calls a registered batcher function with the armed batch and
// the currently-running commands (spec.md §4.D).
func (h *Host) RunBatcher(name string, batch, running []BatchRequest) (BatchResponse, error) {
	argsJSON, err := marshalArgs(map[string]any{"batch": batch, "running": running})
	if err != nil {
		return BatchResponse{}, err
	}

	h.mu.Lock()
	resultJSON, err := h.vm.Call("__run_batcher_json", name, argsJSON)
	h.mu.Unlock()
	if err != nil {
		return BatchResponse{}, toScriptError(err)
	}

	raw, ok := resultJSON.(string)
	if !ok {
		return BatchResponse{}, fmt.Errorf("scripting: batcher %q returned a non-string bridge result", name)
	}

	var out BatchResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return BatchResponse{}, fmt.Errorf("scripting: failed to decode batcher %q result: %w", name, err)
	}
	return out, nil
}
