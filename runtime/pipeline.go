package runtime

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/types"
)

var (
	_ types.Pipeline = &pipeline{}
)

func NewPipeline(name string, opts ...types.PipelineOption) types.Pipeline {
	options := types.NewPipelineOptions()
	for _, opt := range opts {
		opt(options)
	}
	return newPipeline(name, options)
}

type pipeline struct {
	name string
	opts *types.PipelineOptions

	mu    sync.Mutex
	specs map[string]*types.NodeSpec
	order []string
	start string
	hooks hooks

	sealOnce sync.Once
	plan     *executePlan
}

func newPipeline(name string, opts *types.PipelineOptions) *pipeline {
	return &pipeline{
		name:  name,
		opts:  opts,
		specs: make(map[string]*types.NodeSpec),
	}
}

func (p *pipeline) Name() string {
	return p.name
}

func (p *pipeline) Register(spec *types.NodeSpec) error {
	if spec == nil {
		return errors.BadRequestf("node spec is nil")
	}
	if spec.Name == "" {
		return errors.BadRequestf("node name is empty")
	}
	if spec.Handler == nil {
		return errors.BadRequestf("node:%s handler is nil", spec.Name)
	}
	if spec.Retry < 0 {
		return errors.BadRequestf("node:%s retry count %d is negative", spec.Name, spec.Retry)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan != nil {
		return errors.MethodNotAllowedf("pipeline %s is sealed", p.name)
	}
	if _, exists := p.specs[spec.Name]; exists {
		return errors.AlreadyExistsf("node: %s", spec.Name)
	}
	copied := *spec
	p.specs[spec.Name] = &copied
	p.order = append(p.order, spec.Name)
	return nil
}

func (p *pipeline) SetStart(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan != nil {
		return errors.MethodNotAllowedf("pipeline %s is sealed", p.name)
	}
	if _, exists := p.specs[name]; !exists {
		return errors.NotFoundf("start node: %s", name)
	}
	p.start = name
	return nil
}

func (p *pipeline) Start() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.start
}

func (p *pipeline) Node(name string) (*types.NodeSpec, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	spec, exists := p.specs[name]
	if !exists {
		return nil, false
	}
	copied := *spec
	return &copied, true
}

// NodeNames returns the node names in registration order.
func (p *pipeline) NodeNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *pipeline) addHook(add func(h *hooks)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan != nil {
		return errors.MethodNotAllowedf("pipeline %s is sealed", p.name)
	}
	add(&p.hooks)
	return nil
}

func (p *pipeline) BeforeNode(hook types.BeforeNodeHook) error {
	return p.addHook(func(h *hooks) { h.before = append(h.before, hook) })
}

func (p *pipeline) AfterNode(hook types.AfterNodeHook) error {
	return p.addHook(func(h *hooks) { h.after = append(h.after, hook) })
}

func (p *pipeline) OnError(hook types.ErrorHook) error {
	return p.addHook(func(h *hooks) { h.onError = append(h.onError, hook) })
}

func (p *pipeline) OnComplete(hook types.CompleteHook) error {
	return p.addHook(func(h *hooks) { h.complete = append(h.complete, hook) })
}

func (p *pipeline) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	problems := make([]string, 0)
	if p.start == "" {
		problems = append(problems, "no start node")
	}
	for _, name := range p.order {
		spec := p.specs[name]
		successors := []string{spec.Next}
		if spec.BranchField != "" {
			successors = []string{spec.BranchTrue, spec.BranchFalse}
		}
		for _, next := range successors {
			if next == "" {
				continue
			}
			if _, exists := p.specs[next]; !exists {
				problems = append(problems, name+" -> "+next+" is not registered")
			}
		}
	}
	if len(problems) > 0 {
		return errors.NotValidf("pipeline %s: %s", p.name, strings.Join(problems, "; "))
	}
	return nil
}

func (p *pipeline) Stats() []types.NodeRuntimeData {
	p.mu.Lock()
	plan := p.plan
	p.mu.Unlock()

	if plan == nil {
		return nil
	}
	stats := make([]types.NodeRuntimeData, 0, len(plan.nodes))
	for _, nr := range plan.nodes {
		stats = append(stats, nr.stats())
	}
	sort.SliceStable(stats, func(i, j int) bool { return plan.index[stats[i].Node] < plan.index[stats[j].Node] })
	return stats
}

// seal compiles the plan on first use; the pipeline is read-only afterwards.
func (p *pipeline) seal() *executePlan {
	p.sealOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.plan = compilePlan(p.start, p.order, p.specs)
	})
	return p.plan
}

func (p *pipeline) Run(ctx context.Context, data types.Data, opts ...types.RunOption) *types.RunResult {
	runOpts := &types.RunOptions{}
	for _, opt := range opts {
		opt(runOpts)
	}
	if data == nil {
		data = types.Data{}
	}

	plan := p.seal()
	fc := newRunContext(ctx, p.opts.Logger, p.name, runOpts.RequestID)
	result := &types.RunResult{
		RunID:     fc.runID,
		RequestID: fc.requestID,
		Pipeline:  p.name,
		Context:   data,
	}

	startTime := time.Now()
	fc.Logger().Infof("pipeline %s started", p.name)

	startNode := runOpts.StartNode
	if startNode == "" {
		startNode = plan.start
	}
	if startNode == "" {
		result.Fail(types.NewRoutingErrorf("pipeline %s has no start node", p.name))
	} else {
		p.walk(fc, plan, plan.resolve(startNode), data, result)
	}

	result.Records = fc.records
	result.Duration = time.Since(startTime)
	result.Success = result.Error == ""

	fc.current = ""
	if result.Success {
		fc.Logger().Infof("pipeline %s succeeded at %s in %v", p.name, result.FinalNode, result.Duration)
	} else {
		fc.Logger().Errorf("pipeline %s failed at %s in %v: %s", p.name, result.FinalNode, result.Duration, result.Error)
	}

	p.hooks.fireComplete(fc, result)
	return result
}

func (p *pipeline) walk(fc *runContext, plan *executePlan, next target, data types.Data, result *types.RunResult) {
	for steps := 0; !next.isEnd(); steps++ {
		if p.opts.MaxSteps > 0 && steps >= p.opts.MaxSteps {
			result.Fail(types.NewRoutingErrorf("pipeline %s exceeded %d steps", p.name, p.opts.MaxSteps))
			return
		}
		nr, exists := plan.lookup(next)
		if !exists {
			result.Fail(types.NewRoutingErrorf("unknown node: %s", next.name))
			return
		}
		result.FinalNode = nr.spec.Name

		fc.startRecord(nr.spec.Name)
		if nr.spec.Description != "" {
			fc.Logger().Debugf("%s: %s", nr.spec.Name, nr.spec.Description)
		}
		p.hooks.fireBefore(fc, nr.spec, data)

		nodeResult, attempts := nr.execute(fc, data, p.opts.RetryBackoff)
		fc.endRecord(nodeResult, attempts)
		data.Merge(nodeResult.Data)

		if nodeResult.Status == types.Failed {
			fc.Logger().Warnf("%s failed: %s", nr.spec.Name, nodeResult.Error)
			p.hooks.fireError(fc, nr.spec, nodeResult.Error, data)
			result.Fail(errors.New(nodeResult.Error))
			return
		}
		fc.Logger().Infof("%s %v", nr.spec.Name, nodeResult.Status)

		p.hooks.fireAfter(fc, nr.spec, nodeResult, data)
		next = nr.resolveNext(plan, data, nodeResult)
	}
}
