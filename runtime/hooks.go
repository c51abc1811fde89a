package runtime

import (
	"github.com/lightartw/textanalyze/types"
)

type hooks struct {
	before   []types.BeforeNodeHook
	after    []types.AfterNodeHook
	onError  []types.ErrorHook
	complete []types.CompleteHook
}

// fire runs one hook and swallows anything it panics with.
func (h *hooks) fire(fc *runContext, event string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			fc.Logger().Errorf("%s hook failed: %v", event, r)
		}
	}()
	call()
}

// Hooks get their own copy of the NodeSpec, so they cannot rewire the
// registered graph.
func (h *hooks) fireBefore(fc *runContext, node *types.NodeSpec, data types.Data) {
	for _, hook := range h.before {
		spec := *node
		h.fire(fc, "before_node", func() { hook(fc, &spec, data.Clone()) })
	}
}

func (h *hooks) fireAfter(fc *runContext, node *types.NodeSpec, result *types.NodeResult, data types.Data) {
	for _, hook := range h.after {
		spec, snapshot := *node, *result
		h.fire(fc, "after_node", func() { hook(fc, &spec, &snapshot, data.Clone()) })
	}
}

func (h *hooks) fireError(fc *runContext, node *types.NodeSpec, errMsg string, data types.Data) {
	for _, hook := range h.onError {
		spec := *node
		h.fire(fc, "on_error", func() { hook(fc, &spec, errMsg, data.Clone()) })
	}
}

func (h *hooks) fireComplete(fc *runContext, result *types.RunResult) {
	for _, hook := range h.complete {
		snapshot := *result
		snapshot.Context = result.Context.Clone()
		h.fire(fc, "on_complete", func() { hook(&snapshot) })
	}
}
