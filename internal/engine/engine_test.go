package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/orchestrator/common/logger"
	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/collab/pricing"
	"github.com/lyzr/orchestrator/internal/collab/stub"
	"github.com/lyzr/orchestrator/internal/dispatch"
	"github.com/lyzr/orchestrator/internal/dispatch/tools"
	"github.com/lyzr/orchestrator/internal/engine"
	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/progress"
	"github.com/lyzr/orchestrator/internal/retention"
	"github.com/lyzr/orchestrator/internal/telemetry"
)

// verbatimInvoker echoes the prompt it was given, unmodified, unless a
// scripted response function is supplied.
type verbatimInvoker struct {
	respond func(agent collab.AgentSpec, prompt string) (string, error)
}

func (v *verbatimInvoker) Invoke(ctx context.Context, agent collab.AgentSpec, tools []collab.ToolDescriptor, prompt string) (collab.InvokeResult, error) {
	if v.respond != nil {
		out, err := v.respond(agent, prompt)
		if err != nil {
			return collab.InvokeResult{}, err
		}
		return collab.InvokeResult{FinalOutput: out, Trace: rawTrace(out)}, nil
	}
	return collab.InvokeResult{FinalOutput: prompt, Trace: rawTrace(prompt)}, nil
}

func rawTrace(output string) telemetry.RawTrace {
	return telemetry.RawTrace{FinalOutput: output}
}

type testEnv struct {
	eng       *engine.Engine
	bus       *progress.Bus
	store     *stub.RecordingStore
	retention *retention.Store
}

func newTestEnv(invoker collab.AgentInvoker, broker collab.CredentialBroker) *testEnv {
	toolRegistry := tools.NewRegistry(tools.NewURLGuard(), nil, "https://backend.example.invalid")
	registry := dispatch.NewRegistry(toolRegistry)
	bus := progress.NewBus()
	retentionStore := retention.New(bus)
	store := &stub.RecordingStore{}

	if broker == nil {
		broker = &stub.FixedBroker{Known: true}
	}

	eng := engine.New(engine.Deps{
		Registry:  registry,
		Bus:       bus,
		Retention: retentionStore,
		Invoker:   invoker,
		Broker:    broker,
		Pricing:   pricing.Default(),
		Log:       logger.New("error", "json"),
		Store:     store,
	})
	return &testEnv{eng: eng, bus: bus, store: store, retention: retentionStore}
}

func awaitTerminal(t *testing.T, eng *engine.Engine, execID string) engine.Execution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exec, err := eng.AwaitTerminal(ctx, execID)
	require.NoError(t, err)
	return exec
}

func agentData(name, instructions, modelID string) map[string]any {
	return map[string]any{"name": name, "instructions": instructions, "model_id": modelID}
}

// S1 — Single agent echo.
func TestS1_SingleAgentEcho(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)

	g := graph.New([]graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("Agent1", "Reply with the input verbatim", "gpt-4o-mini")},
	}, nil)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "hello", UserID: "u1"})
	exec := awaitTerminal(t, env.eng, execID)

	require.Equal(t, engine.StatusCompleted, exec.Status)
	require.NotNil(t, exec.Result)
	assert.Equal(t, "hello", *exec.Result)
	assert.Equal(t, engine.NodeStateCompleted, exec.Progress.NodeStatus["A1"].State)
	assert.Equal(t, 100, exec.Progress.Percent)
}

// S2 — Conditional age routing.
func TestS2_ConditionalAgeRouting(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)

	nodes := []graph.Node{
		{ID: "I", Kind: graph.KindInput, Data: map[string]any{}},
		{ID: "C", Kind: graph.KindConditional, Data: map[string]any{
			"conditions": []any{
				map[string]any{"id": "adult", "rule": map[string]any{"jsonpath": "age", "operator": "greater_than", "value": "17"}},
				map[string]any{"id": "minor", "is_default": true},
			},
		}},
		{ID: "AAdult", Kind: graph.KindAgent, Data: agentData("AdultHandler", "handle an adult applicant", "gpt-4o-mini")},
		{ID: "OAdult", Kind: graph.KindOutput, Data: map[string]any{}},
		{ID: "OMinor", Kind: graph.KindOutput, Data: map[string]any{}},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "I", Target: "C"},
		{ID: "e2", Source: "C", Target: "AAdult", SourceHandle: "adult"},
		{ID: "e3", Source: "AAdult", Target: "OAdult"},
		{ID: "e4", Source: "C", Target: "OMinor", SourceHandle: "minor"},
	}
	g := graph.New(nodes, edges)

	execID := env.eng.Submit(context.Background(), engine.Submission{
		Graph: g, Input: map[string]any{"age": 25.0, "name": "Alice"}, UserID: "u1",
	})
	exec := awaitTerminal(t, env.eng, execID)

	require.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, engine.NodeStateCompleted, exec.Progress.NodeStatus["AAdult"].State)
	assert.Equal(t, engine.NodeStateCompleted, exec.Progress.NodeStatus["OAdult"].State)
	// OMinor is non-executable (output kind) so it starts and stays "completed"
	// in node_status even though its branch was never traversed.
	assert.Equal(t, engine.NodeStateCompleted, exec.Progress.NodeStatus["OMinor"].State)
}

// S3 — Retry then success on a tool node.
func TestS3_ToolRetryThenSuccess(t *testing.T) {
	calls := 0
	transport := toolTransportFunc(func(ctx context.Context, req tools.Request) (tools.Response, error) {
		calls++
		if calls <= 2 {
			return tools.Response{StatusCode: 429}, nil
		}
		return tools.Response{StatusCode: 200, Body: []byte("ok")}, nil
	})

	toolRegistry := tools.NewRegistry(tools.NewURLGuard(), transport, "https://backend.example.invalid")
	registry := dispatch.NewRegistry(toolRegistry)
	bus := progress.NewBus()
	eng := engine.New(engine.Deps{
		Registry:  registry,
		Bus:       bus,
		Retention: retention.New(bus),
		Invoker:   &verbatimInvoker{},
		Broker:    &stub.FixedBroker{Known: true},
		Pricing:   pricing.Default(),
		Log:       logger.New("error", "json"),
		Store:     &stub.RecordingStore{},
	})

	nodes := []graph.Node{
		{ID: "I", Kind: graph.KindInput, Data: map[string]any{}},
		{ID: "T", Kind: graph.KindTool, Data: map[string]any{"name": "External", "tool_type": "some_external_action"}},
		{ID: "O", Kind: graph.KindOutput, Data: map[string]any{}},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "I", Target: "T"},
		{ID: "e2", Source: "T", Target: "O"},
	}
	g := graph.New(nodes, edges)

	execID := eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "go", UserID: "u1"})
	exec := awaitTerminal(t, eng, execID)

	require.Equal(t, engine.StatusCompleted, exec.Status)
	require.NotNil(t, exec.Result)
	assert.Equal(t, "ok", *exec.Result)
	assert.Equal(t, 3, calls)
}

type toolTransportFunc func(ctx context.Context, req tools.Request) (tools.Response, error)

func (f toolTransportFunc) Do(ctx context.Context, req tools.Request) (tools.Response, error) {
	return f(ctx, req)
}

// S4 — Validation failure (cycle): no node ever enters running. The graph
// keeps a clean start/end (I, O) around the A<->B cycle so validation trips
// on cycle detection rather than the earlier missing-start/end checks.
func TestS4_ValidationFailureCycle(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)

	nodes := []graph.Node{
		{ID: "I", Kind: graph.KindInput, Data: map[string]any{}},
		{ID: "A", Kind: graph.KindAgent, Data: agentData("A", "do a", "gpt-4o-mini")},
		{ID: "B", Kind: graph.KindAgent, Data: agentData("B", "do b", "gpt-4o-mini")},
		{ID: "O", Kind: graph.KindOutput, Data: map[string]any{}},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "I", Target: "A"},
		{ID: "e2", Source: "A", Target: "B"},
		{ID: "e3", Source: "B", Target: "A"},
		{ID: "e4", Source: "B", Target: "O"},
	}
	g := graph.New(nodes, edges)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "x", UserID: "u1"})
	exec := awaitTerminal(t, env.eng, execID)

	require.Equal(t, engine.StatusFailed, exec.Status)
	require.NotNil(t, exec.Error)
	assert.Equal(t, "validation", string(exec.Error.Kind))
	assert.Contains(t, exec.Error.Message, "cycle")
	for id, status := range exec.Progress.NodeStatus {
		assert.NotEqual(t, engine.NodeStateRunning, status.State, "node %s should never have entered running", id)
	}
}

// S5 — Interactive suspend/resume.
func TestS5_SuspendAndResume(t *testing.T) {
	invoker := &verbatimInvoker{respond: func(agent collab.AgentSpec, prompt string) (string, error) {
		if agent.Name == "A1" {
			return "What would you like to do next?", nil
		}
		return prompt, nil // A2 echoes whatever it received
	}}
	env := newTestEnv(invoker, nil)

	nodes := []graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "ask the user", "gpt-4o-mini")},
		{ID: "A2", Kind: graph.KindAgent, Data: agentData("A2", "echo upstream", "gpt-4o-mini")},
	}
	edges := []graph.Edge{{ID: "e1", Source: "A1", Target: "A2"}}
	g := graph.New(nodes, edges)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "start", UserID: "u1"})

	require.Eventually(t, func() bool {
		exec, ok := env.eng.GetExecution("u1", execID)
		return ok && exec.Status == engine.StatusWaitingForInput
	}, 2*time.Second, 10*time.Millisecond)

	ok := env.eng.ProvideInput(execID, "summarize")
	require.True(t, ok)

	exec := awaitTerminal(t, env.eng, execID)
	require.Equal(t, engine.StatusCompleted, exec.Status)
	require.NotNil(t, exec.Result)
	assert.Equal(t, "summarize", *exec.Result)
}

// S7 — Idempotence of provide_input: a second call is a no-op.
func TestProvideInput_SecondCallIsNoOp(t *testing.T) {
	invoker := &verbatimInvoker{respond: func(agent collab.AgentSpec, prompt string) (string, error) {
		return "please choose an option: a or b?", nil
	}}
	env := newTestEnv(invoker, nil)

	g := graph.New([]graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "ask", "gpt-4o-mini")},
	}, nil)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "start", UserID: "u1"})

	require.Eventually(t, func() bool {
		exec, ok := env.eng.GetExecution("u1", execID)
		return ok && exec.Status == engine.StatusWaitingForInput
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, env.eng.ProvideInput(execID, "a"))
	assert.False(t, env.eng.ProvideInput(execID, "b"), "a second provide_input call must be a no-op")

	awaitTerminal(t, env.eng, execID)
}

// S8/Property 8 — cross-execution isolation between two users.
func TestCrossExecutionIsolation(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)

	g := graph.New([]graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "reply", "gpt-4o-mini")},
	}, nil)

	execA := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "alice-in", UserID: "alice"})
	execB := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "bob-in", UserID: "bob"})

	subAlice := env.bus.Subscribe(execA)
	defer subAlice.Unsubscribe()
	subBob := env.bus.Subscribe(execB)
	defer subBob.Unsubscribe()

	resultA := awaitTerminal(t, env.eng, execA)
	resultB := awaitTerminal(t, env.eng, execB)

	require.NotNil(t, resultA.Result)
	require.NotNil(t, resultB.Result)
	assert.Equal(t, "alice-in", *resultA.Result)
	assert.Equal(t, "bob-in", *resultB.Result)
	assert.NotEqual(t, execA, execB)
}

// Property 6 — retention caps a user's store at 100 regardless of how many
// executions that user runs, without a global lock serializing other users.
func TestRetention_PerUserCapUnderConcurrency(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)
	g := graph.New([]graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "reply", "gpt-4o-mini")},
	}, nil)

	var wg sync.WaitGroup
	execIDs := make(chan string, 110)
	for i := 0; i < 110; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			execID := env.eng.Submit(context.Background(), engine.Submission{
				Graph: g, Input: fmt.Sprintf("in-%d", i), UserID: "bulk-user",
			})
			awaitTerminal(t, env.eng, execID)
			execIDs <- execID
		}(i)
	}
	wg.Wait()
	close(execIDs)

	records := env.retention.List("bulk-user")
	assert.LessOrEqual(t, len(records), 100, "per-user retention cap must hold under concurrent submissions")
}

// Property 2 — percent is monotonic non-decreasing and reaches 100 iff terminal.
func TestProgress_MonotonicAndReaches100(t *testing.T) {
	invoker := &verbatimInvoker{}
	env := newTestEnv(invoker, nil)

	nodes := []graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "step1", "gpt-4o-mini")},
		{ID: "A2", Kind: graph.KindAgent, Data: agentData("A2", "step2", "gpt-4o-mini")},
	}
	edges := []graph.Edge{{ID: "e1", Source: "A1", Target: "A2"}}
	g := graph.New(nodes, edges)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "go", UserID: "u1"})
	sub := env.bus.Subscribe(execID)
	defer sub.Unsubscribe()

	lastPercent := -1
	terminal := false
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case e := <-sub.Events:
			if e.Kind != progress.EventExecutionUpdate {
				continue
			}
			up := e.Payload.(progress.ExecutionUpdate)
			prog := up.Progress.(engine.Progress)
			assert.GreaterOrEqual(t, prog.Percent, lastPercent)
			lastPercent = prog.Percent
			if up.Status == string(engine.StatusCompleted) || up.Status == string(engine.StatusFailed) {
				terminal = true
				assert.Equal(t, 100, prog.Percent)
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	assert.True(t, terminal, "execution never reached a terminal status")
}

// Property 1 — validation failure means no node ever enters running.
func TestValidationFailure_NeverEntersRunning(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)

	g := graph.New([]graph.Node{
		{ID: "A", Kind: graph.KindAgent, Data: map[string]any{}}, // missing name/instructions
	}, nil)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "x", UserID: "u1"})
	exec := awaitTerminal(t, env.eng, execID)

	require.Equal(t, engine.StatusFailed, exec.Status)
	require.NotNil(t, exec.Error)
}

func TestToolNotEnabled_FailsExecution(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, &stub.FixedBroker{
		Known:     true,
		Credential: collab.Credential{APIKey: "k", EnabledToolIDs: []string{"other_tool"}},
	})

	nodes := []graph.Node{
		{ID: "T", Kind: graph.KindTool, Data: map[string]any{"name": "Search", "tool_type": "search_web"}},
	}
	g := graph.New(nodes, nil)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "query", UserID: "u1"})
	exec := awaitTerminal(t, env.eng, execID)

	require.Equal(t, engine.StatusFailed, exec.Status)
	require.NotNil(t, exec.Error)
	assert.Equal(t, "tool_not_enabled", string(exec.Error.Kind))
}

// Cancellation is observed at the driver's next yield point (the top of the
// plan loop), not mid-handler — so a second node downstream of the one
// in-flight at Cancel time is what actually exercises the cut-over; a
// cancelled single-node execution whose lone handler runs to completion has
// no later yield point to catch it.
func TestCancel_TransitionsToFailedCancelled(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	invoker := &verbatimInvoker{respond: func(agent collab.AgentSpec, prompt string) (string, error) {
		if agent.Name == "A1" {
			close(started)
			<-block
			return prompt, nil
		}
		return prompt, nil
	}}
	env := newTestEnv(invoker, nil)

	nodes := []graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "slow", "gpt-4o-mini")},
		{ID: "A2", Kind: graph.KindAgent, Data: agentData("A2", "fast", "gpt-4o-mini")},
	}
	edges := []graph.Edge{{ID: "e1", Source: "A1", Target: "A2"}}
	g := graph.New(nodes, edges)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "go", UserID: "u1"})
	<-started

	ok := env.eng.Cancel(execID)
	require.True(t, ok)
	close(block)

	exec := awaitTerminal(t, env.eng, execID)
	assert.Equal(t, engine.StatusFailed, exec.Status)
	require.NotNil(t, exec.Error)
	assert.Equal(t, "cancelled", string(exec.Error.Kind))
	assert.NotEqual(t, engine.NodeStateCompleted, exec.Progress.NodeStatus["A2"].State)
}

func TestGraphStore_RecordedExactlyOnceOnTerminal(t *testing.T) {
	env := newTestEnv(&verbatimInvoker{}, nil)
	g := graph.New([]graph.Node{
		{ID: "A1", Kind: graph.KindAgent, Data: agentData("A1", "reply", "gpt-4o-mini")},
	}, nil)

	execID := env.eng.Submit(context.Background(), engine.Submission{Graph: g, Input: "hi", UserID: "u1"})
	awaitTerminal(t, env.eng, execID)

	snapshots := env.store.All()
	count := 0
	for _, s := range snapshots {
		if s.ExecutionID == execID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
