package runtime

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lightartw/textanalyze/types"
)

type nodeRuntime struct {
	spec  *types.NodeSpec
	route route

	runtimeData *types.NodeRuntimeData
}

func newNodeRuntime(spec *types.NodeSpec) *nodeRuntime {
	nr := &nodeRuntime{spec: spec}
	nr.runtimeData = &types.NodeRuntimeData{Node: spec.Name}
	return nr
}

// resolveNext applies the routing precedence: the result's override, then
// the branch field, then the default successor.
func (n *nodeRuntime) resolveNext(plan *executePlan, data types.Data, result *types.NodeResult) target {
	if result.Next != "" {
		return plan.resolve(result.Next)
	}
	return n.route.next(data)
}

func (n *nodeRuntime) runHandler(fc *runContext, data types.Data) (result *types.NodeResult, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = types.NewFatalError(fmt.Errorf("panic on %s: %v", n.spec.Name, r))
		}
	}()
	// each attempt sees the context as it was before the node started
	return n.spec.Handler(fc, data.Clone())
}

func (n *nodeRuntime) execute(fc *runContext, data types.Data, defaultBackoff time.Duration) (*types.NodeResult, int) {
	atomic.AddInt32(&n.runtimeData.CurrentRunning, 1)
	defer atomic.AddInt32(&n.runtimeData.CurrentRunning, -1)

	backoff := n.spec.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	result, attempts, err := retry(fc, n.spec.Retry, backoff, func(int) (*types.NodeResult, error) {
		return n.runHandler(fc, data)
	}, func(attempt int, err error, wait time.Duration) {
		atomic.AddInt64(&n.runtimeData.Retries, 1)
		fc.Logger().Warnf("attempt %d/%d failed, retry in %v: %v", attempt, n.spec.Retry+1, wait, err)
	})
	if err != nil {
		result = types.Fail("node %s failed after %d retries: %v", n.spec.Name, attempts-1, err)
	}
	result = n.normalize(result)

	switch result.Status {
	case types.Success:
		atomic.AddInt64(&n.runtimeData.SuccessTimes, 1)
	case types.Skipped:
		atomic.AddInt64(&n.runtimeData.SkippedTimes, 1)
	default:
		atomic.AddInt64(&n.runtimeData.FailedTimes, 1)
	}
	return result, attempts
}

// normalize enforces that Error is set iff the status is Failed and that
// handlers only hand back terminal statuses.
func (n *nodeRuntime) normalize(result *types.NodeResult) *types.NodeResult {
	if result == nil {
		return types.Succeed(nil)
	}
	switch result.Status {
	case types.Success, types.Skipped:
		result.Error = ""
	case types.Failed:
		if result.Error == "" {
			result.Error = fmt.Sprintf("node %s failed", n.spec.Name)
		}
	default:
		return types.Fail("node %s returned non-terminal status %v", n.spec.Name, result.Status)
	}
	return result
}

func (n *nodeRuntime) stats() types.NodeRuntimeData {
	return types.NodeRuntimeData{
		Node:           n.spec.Name,
		CurrentRunning: atomic.LoadInt32(&n.runtimeData.CurrentRunning),
		SuccessTimes:   atomic.LoadInt64(&n.runtimeData.SuccessTimes),
		SkippedTimes:   atomic.LoadInt64(&n.runtimeData.SkippedTimes),
		FailedTimes:    atomic.LoadInt64(&n.runtimeData.FailedTimes),
		Retries:        atomic.LoadInt64(&n.runtimeData.Retries),
	}
}
