package types

import "context"

type BeforeNodeHook func(ctx Context, node *NodeSpec, data Data)
type AfterNodeHook func(ctx Context, node *NodeSpec, result *NodeResult, data Data)
type ErrorHook func(ctx Context, node *NodeSpec, errMsg string, data Data)
type CompleteHook func(result *RunResult)

type Pipeline interface {
	Name() string

	/**
	 * Register adds a node definition. Registration is only allowed
	 * before the first Run; afterwards the pipeline is sealed.
	 */
	Register(spec *NodeSpec) error
	SetStart(name string) error
	Start() string

	Node(name string) (*NodeSpec, bool)
	NodeNames() []string

	/**
	 * Hooks are strictly observational: they receive a snapshot of the
	 * context, their panics are recovered and logged, and they can not
	 * change the outcome or the routing of a run.
	 */
	BeforeNode(hook BeforeNodeHook) error
	AfterNode(hook AfterNodeHook) error
	OnError(hook ErrorHook) error
	OnComplete(hook CompleteHook) error

	/**
	 * Validate reports static successors that are not registered.
	 * Run does not call it: an unregistered successor only fails the
	 * runs that actually reach it.
	 */
	Validate() error

	Run(ctx context.Context, data Data, opts ...RunOption) *RunResult

	Stats() []NodeRuntimeData
}
