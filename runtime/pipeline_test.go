package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightartw/textanalyze/types"
)

func newTestPipeline(t *testing.T, opts ...types.PipelineOption) (types.Pipeline, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	opts = append([]types.PipelineOption{types.WithLogger(logger)}, opts...)
	return NewPipeline(t.Name(), opts...), hook
}

func mustRegister(t *testing.T, p types.Pipeline, b *types.NodeBuilder) {
	spec, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, p.Register(spec))
}

func setter(key string, value any) types.NodeHandler {
	return func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
		return types.Succeed(types.Data{key: value}), nil
	}
}

func passNode(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	return types.Succeed(nil), nil
}

// A -> B, B branches on "ok" to C or D.
func buildBranchPipeline(t *testing.T, ok bool) types.Pipeline {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(setter("ok", ok)).Then("B"))
	mustRegister(t, p, types.NewNode("B").Handler(passNode).Branch("ok", "C", "D"))
	mustRegister(t, p, types.NewNode("C").Handler(setter("visited", "C")))
	mustRegister(t, p, types.NewNode("D").Handler(setter("visited", "D")))
	require.NoError(t, p.SetStart("A"))
	return p
}

func TestBranchScenario(t *testing.T) {
	cases := []struct {
		ok    bool
		visit []string
		final string
	}{
		{true, []string{"A", "B", "C"}, "C"},
		{false, []string{"A", "B", "D"}, "D"},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("ok=%v", c.ok), func(t *testing.T) {
			p := buildBranchPipeline(t, c.ok)
			result := p.Run(context.Background(), types.Data{})

			assert.True(t, result.Success)
			assert.Empty(t, result.Error)
			assert.Equal(t, c.final, result.FinalNode)
			if diff := cmp.Diff(c.visit, result.Visited()); diff != "" {
				t.Errorf("visited mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, c.final, result.Context["visited"])
			for _, record := range result.Records {
				assert.Equal(t, types.Success, record.Status)
				assert.Equal(t, 1, record.Attempts)
				assert.False(t, record.EndTime.Before(record.StartTime))
			}
		})
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	p, _ := newTestPipeline(t)
	var calls int32
	mustRegister(t, p, types.NewNode("A").Handler(passNode).Then("B"))
	mustRegister(t, p, types.NewNode("B").Retry(2).Then("C").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("boom")
		}))
	mustRegister(t, p, types.NewNode("C").Handler(passNode))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Equal(t, "B", result.FinalNode)
	assert.EqualValues(t, 3, calls)
	assert.Equal(t, "node B failed after 2 retries: boom", result.Error)

	require.Len(t, result.Records, 2)
	assert.Equal(t, types.Failed, result.Records[1].Status)
	assert.Equal(t, 3, result.Records[1].Attempts)
	assert.Equal(t, result.Error, result.Records[1].Error)

	stats := p.Stats()
	require.Len(t, stats, 3)
	assert.EqualValues(t, 1, stats[1].FailedTimes)
	assert.EqualValues(t, 2, stats[1].Retries)
	assert.EqualValues(t, 0, stats[2].SuccessTimes)
}

func TestRetryThenSucceed(t *testing.T) {
	p, hook := newTestPipeline(t)
	calls := 0
	mustRegister(t, p, types.NewNode("flaky").Retry(2).Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			calls++
			if calls <= 2 {
				return nil, types.NewRetryErrorf(0, "attempt %d", calls)
			}
			return types.Succeed(types.Data{"calls": calls}), nil
		}))
	require.NoError(t, p.SetStart("flaky"))

	result := p.Run(context.Background(), nil)
	assert.True(t, result.Success)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Context["calls"])
	assert.Equal(t, 3, result.Records[0].Attempts)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel {
			warnings++
			assert.Equal(t, "flaky", entry.Data["node"])
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestFatalErrorIsNotRetried(t *testing.T) {
	p, _ := newTestPipeline(t)
	calls := 0
	mustRegister(t, p, types.NewNode("A").Retry(5).Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			calls++
			return nil, types.NewFatalErrorf("bad input")
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "node A failed after 0 retries: bad input", result.Error)
}

func TestPanicIsFatal(t *testing.T) {
	p, _ := newTestPipeline(t)
	calls := 0
	mustRegister(t, p, types.NewNode("A").Retry(3).Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			calls++
			panic("nil map")
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Contains(t, result.Error, "panic on A: nil map")
}

func TestFailFast(t *testing.T) {
	p, _ := newTestPipeline(t)
	calls := 0
	ran := false
	mustRegister(t, p, types.NewNode("A").Handler(setter("a", 1)).Then("B"))
	mustRegister(t, p, types.NewNode("B").Retry(3).Then("C").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			calls++
			r := types.Fail("empty url")
			r.Data = types.Data{"b": 2}
			return r, nil
		}))
	mustRegister(t, p, types.NewNode("C").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			ran = true
			return types.Succeed(nil), nil
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.False(t, ran)
	assert.Equal(t, 1, calls, "a Failed result is not retried")
	assert.Equal(t, "empty url", result.Error)
	assert.Equal(t, "B", result.FinalNode)
	// merges already applied are kept
	assert.Equal(t, types.Data{"a": 1, "b": 2}, result.Context)
}

func TestSkipContinuesRouting(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("mark_skip").Then("save").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return types.Skip(types.Data{"skip_reason": "not related"}), nil
		}))
	mustRegister(t, p, types.NewNode("save").Handler(setter("saved", true)))
	require.NoError(t, p.SetStart("mark_skip"))

	result := p.Run(context.Background(), nil)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"mark_skip", "save"}, result.Visited())
	assert.Equal(t, types.Skipped, result.Records[0].Status)
	assert.Equal(t, "not related", result.Context["skip_reason"])
	assert.Equal(t, true, result.Context["saved"])
}

func TestOverrideBeatsBranch(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("N").Branch("x", "A", "B").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return types.Succeed(nil).WithNext("C"), nil
		}))
	for _, name := range []string{"A", "B", "C"} {
		mustRegister(t, p, types.NewNode(name).Handler(passNode))
	}
	require.NoError(t, p.SetStart("N"))

	result := p.Run(context.Background(), types.Data{"x": true})
	assert.True(t, result.Success)
	assert.Equal(t, []string{"N", "C"}, result.Visited())
	assert.Equal(t, "C", result.FinalNode)
}

func TestBranchReadsMergedData(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("decide").Branch("go", "yes", "no").Handler(setter("go", "y")))
	mustRegister(t, p, types.NewNode("yes").Handler(passNode))
	mustRegister(t, p, types.NewNode("no").Handler(passNode))
	require.NoError(t, p.SetStart("decide"))

	result := p.Run(context.Background(), types.Data{"go": false})
	assert.Equal(t, []string{"decide", "yes"}, result.Visited())
}

func TestMissingBranchFieldTakesFalse(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("decide").Branch("missing", "yes", "no").Handler(passNode))
	mustRegister(t, p, types.NewNode("yes").Handler(passNode))
	mustRegister(t, p, types.NewNode("no").Handler(passNode))
	require.NoError(t, p.SetStart("decide"))

	result := p.Run(context.Background(), nil)
	assert.Equal(t, []string{"decide", "no"}, result.Visited())
}

func TestTerminalNode(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("only").Handler(setter("done", true)))
	require.NoError(t, p.SetStart("only"))

	result := p.Run(context.Background(), nil)
	assert.True(t, result.Success)
	assert.Equal(t, "only", result.FinalNode)
	assert.Len(t, result.Records, 1)
}

func TestNodesCanNotDeleteKeys(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Then("B").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			delete(data, "keep")
			data["leak"] = true
			return types.Succeed(types.Data{"over": "A"}), nil
		}))
	mustRegister(t, p, types.NewNode("B").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			if _, ok := data["keep"]; !ok {
				return nil, types.NewFatalErrorf("keep was deleted")
			}
			return types.Succeed(types.Data{"over": "B"}), nil
		}))
	require.NoError(t, p.SetStart("A"))

	input := types.Data{"keep": 1, "over": "input"}
	result := p.Run(context.Background(), input)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, types.Data{"keep": 1, "over": "B"}, result.Context)
}

func TestUnknownNode(t *testing.T) {
	p, _ := newTestPipeline(t)
	errorHooks := 0
	mustRegister(t, p, types.NewNode("A").Handler(passNode).Then("ghost"))
	require.NoError(t, p.SetStart("A"))
	require.NoError(t, p.OnError(func(ctx types.Context, node *types.NodeSpec, errMsg string, data types.Data) {
		errorHooks++
	}))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Equal(t, "unknown node: ghost", result.Error)
	assert.Equal(t, "A", result.FinalNode)
	assert.Equal(t, []string{"A"}, result.Visited())
	assert.Equal(t, 0, errorHooks)
}

func TestRunErrKeepsFailureClass(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(passNode).Then("ghost"))
	mustRegister(t, p, types.NewNode("B").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return types.Fail("broken"), nil
		}))

	result := p.Run(context.Background(), nil)
	require.Error(t, result.Err)
	assert.True(t, types.IsRoutingError(result.Err))
	assert.Equal(t, result.Error, result.Err.Error())

	result = p.Run(context.Background(), nil, types.WithStartNode("A"))
	assert.True(t, types.IsRoutingError(result.Err))
	assert.Equal(t, "unknown node: ghost", result.Err.Error())

	result = p.Run(context.Background(), nil, types.WithStartNode("B"))
	require.Error(t, result.Err)
	assert.False(t, types.IsRoutingError(result.Err))
	assert.Equal(t, "broken", result.Err.Error())

	mustRegister(t, p, types.NewNode("C").Handler(passNode))
	result = p.Run(context.Background(), nil, types.WithStartNode("C"))
	assert.True(t, result.Success)
	assert.NoError(t, result.Err)
}

func TestUnknownOverride(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return types.Succeed(nil).WithNext("nowhere"), nil
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Equal(t, "unknown node: nowhere", result.Error)
}

func TestStartNode(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(passNode).Then("B"))
	mustRegister(t, p, types.NewNode("B").Handler(passNode))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no start node")
	assert.Empty(t, result.Records)

	result = p.Run(context.Background(), nil, types.WithStartNode("B"))
	assert.True(t, result.Success)
	assert.Equal(t, []string{"B"}, result.Visited())

	result = p.Run(context.Background(), nil, types.WithStartNode("Z"))
	assert.False(t, result.Success)
	assert.Equal(t, "unknown node: Z", result.Error)
}

func TestRunIdentity(t *testing.T) {
	p, _ := newTestPipeline(t)
	var seen []string
	mustRegister(t, p, types.NewNode("A").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			seen = append(seen, ctx.GetRequestID(), ctx.GetPipeline(), ctx.GetCurrentNode())
			return types.Succeed(nil), nil
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil, types.WithRequestID("news-1"))
	assert.Equal(t, []string{"news-1", p.Name(), "A"}, seen)
	assert.Equal(t, "news-1", result.RequestID)
	assert.NotEmpty(t, result.RunID)

	other := p.Run(context.Background(), nil)
	assert.Equal(t, other.RunID, other.RequestID)
	assert.NotEqual(t, result.RunID, other.RunID)
}

func TestMaxSteps(t *testing.T) {
	p, _ := newTestPipeline(t, types.WithMaxSteps(5))
	mustRegister(t, p, types.NewNode("loop").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			n, _ := data.GetInt("n")
			return types.Succeed(types.Data{"n": n + 1}).WithNext("loop"), nil
		}))
	require.NoError(t, p.SetStart("loop"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Len(t, result.Records, 5)
	assert.Equal(t, 5, result.Context["n"])
	assert.Contains(t, result.Error, "exceeded 5 steps")
	assert.True(t, types.IsRoutingError(result.Err))
}

func TestLoopsAreUnboundedByDefault(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("loop").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			n, _ := data.GetInt("n")
			if n == 300 {
				return types.Succeed(nil), nil
			}
			return types.Succeed(types.Data{"n": n + 1}).WithNext("loop"), nil
		}))
	require.NoError(t, p.SetStart("loop"))

	result := p.Run(context.Background(), nil)
	require.True(t, result.Success, result.Error)
	assert.Len(t, result.Records, 301)
	assert.Equal(t, 300, result.Context["n"])
}

func TestNonTerminalStatusFails(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return &types.NodeResult{Status: types.Running}, nil
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "non-terminal status")
}

func TestNilResultSucceeds(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return nil, nil
		}))
	require.NoError(t, p.SetStart("A"))

	result := p.Run(context.Background(), nil)
	assert.True(t, result.Success)
	assert.Equal(t, types.Success, result.Records[0].Status)
}

func TestHooks(t *testing.T) {
	p, logHook := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(setter("a", 1)).Then("B"))
	mustRegister(t, p, types.NewNode("B").Handler(
		func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return types.Fail("broken"), nil
		}))
	require.NoError(t, p.SetStart("A"))

	var events []string
	var completed []*types.RunResult
	require.NoError(t, p.BeforeNode(func(ctx types.Context, node *types.NodeSpec, data types.Data) {
		events = append(events, "before:"+node.Name)
		data["injected"] = true
		panic("before hook")
	}))
	require.NoError(t, p.AfterNode(func(ctx types.Context, node *types.NodeSpec, result *types.NodeResult, data types.Data) {
		events = append(events, "after:"+node.Name)
		result.Status = types.Failed
		result.Next = "B"
	}))
	require.NoError(t, p.OnError(func(ctx types.Context, node *types.NodeSpec, errMsg string, data types.Data) {
		events = append(events, "error:"+node.Name+":"+errMsg)
		panic(errors.New("error hook"))
	}))
	require.NoError(t, p.OnComplete(func(result *types.RunResult) {
		completed = append(completed, result)
		result.Success = true
	}))

	result := p.Run(context.Background(), nil)
	assert.Equal(t, []string{"before:A", "after:A", "before:B", "error:B:broken"}, events)
	assert.False(t, result.Success)
	assert.Equal(t, "broken", result.Error)
	assert.Equal(t, types.Success, result.Records[0].Status)
	assert.NotContains(t, result.Context, "injected")

	require.Len(t, completed, 1)
	assert.Equal(t, result.RunID, completed[0].RunID)

	failedHooks := 0
	for _, entry := range logHook.AllEntries() {
		if entry.Level == log.ErrorLevel && strings.Contains(entry.Message, "hook failed") {
			failedHooks++
		}
	}
	assert.Equal(t, 3, failedHooks)
}

func TestHooksCanNotRewireNodes(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(setter("a", 1)).Then("B"))
	mustRegister(t, p, types.NewNode("B").Handler(setter("b", 2)))
	require.NoError(t, p.SetStart("A"))

	hijack := func(node *types.NodeSpec) {
		node.Handler = func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
			return types.Fail("hijacked"), nil
		}
		node.Next = "ghost"
		node.Retry = 9
	}
	require.NoError(t, p.BeforeNode(func(ctx types.Context, node *types.NodeSpec, data types.Data) {
		hijack(node)
	}))
	require.NoError(t, p.AfterNode(func(ctx types.Context, node *types.NodeSpec, result *types.NodeResult, data types.Data) {
		hijack(node)
	}))

	for run := 0; run < 2; run++ {
		result := p.Run(context.Background(), nil)
		require.True(t, result.Success, result.Error)
		assert.Equal(t, []string{"A", "B"}, result.Visited())
		assert.Equal(t, types.Data{"a": 1, "b": 2}, result.Context)
	}

	a, ok := p.Node("A")
	require.True(t, ok)
	assert.Equal(t, "B", a.Next)
	assert.Zero(t, a.Retry)
}

func TestOnCompleteFiresOnRoutingFailure(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(passNode))
	completed := 0
	require.NoError(t, p.OnComplete(func(result *types.RunResult) { completed++ }))

	p.Run(context.Background(), nil)
	p.Run(context.Background(), nil, types.WithStartNode("A"))
	assert.Equal(t, 2, completed)
}

func TestRegister(t *testing.T) {
	p, _ := newTestPipeline(t)

	assert.True(t, errors.Is(p.Register(nil), errors.BadRequest))
	assert.True(t, errors.Is(p.Register(&types.NodeSpec{Name: "A"}), errors.BadRequest))
	assert.True(t, errors.Is(p.Register(&types.NodeSpec{Handler: passNode}), errors.BadRequest))
	assert.True(t, errors.Is(p.Register(&types.NodeSpec{Name: "A", Handler: passNode, Retry: -1}), errors.BadRequest))

	spec := &types.NodeSpec{Name: "A", Handler: passNode, Next: "B"}
	require.NoError(t, p.Register(spec))
	assert.True(t, errors.Is(p.Register(spec), errors.AlreadyExists))

	// the pipeline keeps its own copy
	spec.Next = "C"
	stored, ok := p.Node("A")
	require.True(t, ok)
	assert.Equal(t, "B", stored.Next)
	_, ok = p.Node("B")
	assert.False(t, ok)

	assert.True(t, errors.Is(p.SetStart("B"), errors.NotFound))
	require.NoError(t, p.SetStart("A"))
	assert.Equal(t, "A", p.Start())
	assert.Nil(t, p.Stats())

	p.Run(context.Background(), nil)

	assert.True(t, errors.Is(p.Register(&types.NodeSpec{Name: "B", Handler: passNode}), errors.MethodNotAllowed))
	assert.True(t, errors.Is(p.SetStart("A"), errors.MethodNotAllowed))
	assert.True(t, errors.Is(p.OnComplete(func(*types.RunResult) {}), errors.MethodNotAllowed))
	assert.Equal(t, []string{"A"}, p.NodeNames())
}

func TestValidate(t *testing.T) {
	p, _ := newTestPipeline(t)
	mustRegister(t, p, types.NewNode("A").Handler(passNode).Branch("ok", "B", "ghost"))
	mustRegister(t, p, types.NewNode("B").Handler(passNode).Then("phantom"))

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Contains(t, err.Error(), "no start node")
	assert.Contains(t, err.Error(), "A -> ghost")
	assert.Contains(t, err.Error(), "B -> phantom")

	good := buildBranchPipeline(t, true)
	assert.NoError(t, good.Validate())
}

func TestConcurrentRuns(t *testing.T) {
	p := buildBranchPipeline(t, true)
	results := make(chan *types.RunResult, 16)
	for i := 0; i < 16; i++ {
		go func(i int) {
			results <- p.Run(context.Background(), types.Data{"i": i})
		}(i)
	}
	seen := map[int]bool{}
	for i := 0; i < 16; i++ {
		result := <-results
		assert.True(t, result.Success)
		seen[result.Context["i"].(int)] = true
	}
	assert.Len(t, seen, 16)

	stats := p.Stats()
	assert.EqualValues(t, 16, stats[0].SuccessTimes)
	assert.EqualValues(t, 0, stats[3].SuccessTimes)
}
