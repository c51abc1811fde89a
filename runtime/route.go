package runtime

import (
	"github.com/lightartw/textanalyze/types"
)

const unresolved = -1

// target is a successor reference. Names registered in the pipeline are
// resolved to an index into executePlan.nodes when the plan is compiled;
// an empty name ends the run.
type target struct {
	name  string
	index int
}

func (t target) isEnd() bool {
	return t.name == ""
}

// route is the static routing decision of a node. The per-call override
// carried by a NodeResult is applied before it, see nodeRuntime.resolveNext.
type route interface {
	next(data types.Data) target
}

type defaultRoute struct {
	to target
}

func (r defaultRoute) next(types.Data) target {
	return r.to
}

// branchRoute reads its field at routing time, after the node's own data
// has been merged.
type branchRoute struct {
	field   string
	onTrue  target
	onFalse target
}

func (r branchRoute) next(data types.Data) target {
	if data.Truthy(r.field) {
		return r.onTrue
	}
	return r.onFalse
}

/**
 * executePlan is the compiled, read-only form of a pipeline. It is built
 * once when the pipeline is sealed and shared by all concurrent runs.
 */
type executePlan struct {
	start string
	nodes []*nodeRuntime
	index map[string]int
}

func compilePlan(start string, order []string, specs map[string]*types.NodeSpec) *executePlan {
	plan := &executePlan{
		start: start,
		nodes: make([]*nodeRuntime, 0, len(order)),
		index: make(map[string]int, len(order)),
	}
	for i, name := range order {
		plan.index[name] = i
		plan.nodes = append(plan.nodes, newNodeRuntime(specs[name]))
	}
	for _, nr := range plan.nodes {
		nr.route = plan.compileRoute(nr.spec)
	}
	return plan
}

func (p *executePlan) compileRoute(spec *types.NodeSpec) route {
	if spec.BranchField != "" {
		return branchRoute{
			field:   spec.BranchField,
			onTrue:  p.resolve(spec.BranchTrue),
			onFalse: p.resolve(spec.BranchFalse),
		}
	}
	return defaultRoute{to: p.resolve(spec.Next)}
}

func (p *executePlan) resolve(name string) target {
	if idx, exists := p.index[name]; exists {
		return target{name: name, index: idx}
	}
	return target{name: name, index: unresolved}
}

func (p *executePlan) lookup(t target) (*nodeRuntime, bool) {
	if t.index == unresolved {
		return nil, false
	}
	return p.nodes[t.index], true
}
