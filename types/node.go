package types

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

// NodeHandler runs the body of a node. A returned error is a handler error and
// is retried within the node's budget unless it is a FatalError; a result with
// status Failed is a deliberate failure and is not retried.
type NodeHandler func(ctx Context, data Data) (*NodeResult, error)

// NodeResult is the outcome of executing one node.
type NodeResult struct {
	Status StatusType
	// Data is merged into the run context, later keys win.
	Data Data
	// Error is set iff Status is Failed.
	Error string
	// Next overrides every static routing rule of the node when not empty.
	Next string
}

func Succeed(data Data) *NodeResult {
	return &NodeResult{Status: Success, Data: data}
}

func Skip(data Data) *NodeResult {
	return &NodeResult{Status: Skipped, Data: data}
}

func Fail(format string, args ...any) *NodeResult {
	return &NodeResult{Status: Failed, Error: fmt.Sprintf(format, args...)}
}

func (r *NodeResult) WithNext(node string) *NodeResult {
	r.Next = node
	return r
}

// NodeSpec is the static definition of a node, fixed once registered.
type NodeSpec struct {
	Name        string
	Description string
	Handler     NodeHandler

	Next string

	BranchField string
	BranchTrue  string
	BranchFalse string

	// Retry is the number of re-invocations after the first failed attempt.
	Retry int
	// RetryBackoff is the wait between attempts when the handler error
	// carries no backoff of its own.
	RetryBackoff time.Duration
}

type NodeRuntimeData struct {
	Node           string
	CurrentRunning int32
	SuccessTimes   int64
	SkippedTimes   int64
	FailedTimes    int64
	Retries        int64
}

// NodeBuilder assembles a NodeSpec fluently:
//
//	types.NewNode("classify").Handler(h).Branch("is_related", "analyze", "skip").Retry(2).Build()
type NodeBuilder struct {
	spec NodeSpec
}

func NewNode(name string) *NodeBuilder {
	return &NodeBuilder{spec: NodeSpec{Name: name}}
}

func (b *NodeBuilder) Handler(h NodeHandler) *NodeBuilder {
	b.spec.Handler = h
	return b
}

func (b *NodeBuilder) Describe(desc string) *NodeBuilder {
	b.spec.Description = desc
	return b
}

func (b *NodeBuilder) Then(next string) *NodeBuilder {
	b.spec.Next = next
	return b
}

func (b *NodeBuilder) Branch(field, ifTrue, ifFalse string) *NodeBuilder {
	b.spec.BranchField = field
	b.spec.BranchTrue = ifTrue
	b.spec.BranchFalse = ifFalse
	return b
}

func (b *NodeBuilder) Retry(count int) *NodeBuilder {
	b.spec.Retry = count
	return b
}

func (b *NodeBuilder) Backoff(d time.Duration) *NodeBuilder {
	b.spec.RetryBackoff = d
	return b
}

func (b *NodeBuilder) Build() (*NodeSpec, error) {
	if b.spec.Name == "" {
		return nil, errors.BadRequestf("node name is empty")
	}
	if b.spec.Handler == nil {
		return nil, errors.BadRequestf("node %s handler is nil", b.spec.Name)
	}
	if b.spec.Retry < 0 {
		return nil, errors.BadRequestf("node %s retry count %d is negative", b.spec.Name, b.spec.Retry)
	}
	spec := b.spec
	return &spec, nil
}
