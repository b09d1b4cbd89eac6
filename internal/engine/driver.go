package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lyzr/orchestrator/common/logger"
	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/dispatch"
	"github.com/lyzr/orchestrator/internal/engineerr"
	"github.com/lyzr/orchestrator/internal/gate"
	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/planner"
	"github.com/lyzr/orchestrator/internal/telemetry"
)

// drive is the step driver: the single goroutine that owns st for the whole
// lifecycle of one execution (spec §4.4). It is strictly sequential — the
// only yield points are an agent/tool dispatch, the user-input gate park, and
// a progress-bus publish (which itself never blocks).
func (e *Engine) drive(ctx context.Context, execID string, st *execState, sub Submission) {
	log := e.log.WithRunID(execID)
	g := sub.Graph

	// Step 2: validate. On failure, mark failed without ever entering running
	// for any node (spec §8 Property 1).
	result, err := e.validator.Validate(g)
	if err != nil {
		log.Warn("validation failed", "error", err)
		e.fail(st, engineerr.As(err))
		e.commit(execID, st)
		return
	}

	// Step 3: resolve identity.
	ident := e.resolveIdentity(g, sub.Identity)
	st.mutate(func(ex *Execution) { ex.Identity = ident })

	// Step 4: initialize per-node progress and publish the initial snapshot.
	e.initProgress(st, g)
	e.publish(execID, st)

	// Steps 5-9: drive the plan.
	plan := planner.Build(g, result.Starts, result.Ends)
	outcome := e.runPlan(ctx, execID, st, g, plan, sub, log)

	switch outcome.kind {
	case outcomeFailed:
		log.Error("execution failed", "kind", outcome.err.Kind, "message", outcome.err.Message)
		e.fail(st, outcome.err)
	case outcomeCancelled:
		e.fail(st, engineerr.CancelledErr())
	default:
		e.succeed(st, outcome.result, outcome.trace)
	}

	e.publish(execID, st)
	e.commit(execID, st)
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeFailed
	outcomeCancelled
)

type runOutcome struct {
	kind   outcomeKind
	result string
	err    *engineerr.Error
	trace  *telemetry.Trace
}

// nodeOutput is what one node contributed to the execution context, keyed by
// output key ("result"/"default"/"prompt").
type nodeOutput map[string]any

// runPlan drives the plan's nodes in order, honoring conditional branch
// selection (only the chosen edge's target becomes reached), agent tool
// binding, and the user-input gate. It returns once the execution reaches a
// terminal outcome.
func (e *Engine) runPlan(ctx context.Context, execID string, st *execState, g *graph.Graph, plan planner.Plan, sub Submission, log *logger.Logger) runOutcome {
	outputs := make(map[string]nodeOutput, len(g.Nodes))
	reached := make(map[string]bool, len(g.Nodes))
	executed := make(map[string]bool, len(g.Nodes))
	for _, s := range plan.Starts {
		reached[s] = true
	}

	boundToolOnly := computeBoundToolOnlyNodes(g)

	var lastExecutableResult string
	var lastTrace *telemetry.Trace
	var outputNodeResults []string
	executableCount := 0
	for _, id := range plan.Order {
		if n, ok := g.Node(id); ok && n.Kind.IsExecutable() && !boundToolOnly[id] {
			executableCount++
		}
	}
	completedCount := 0

	execCtx := &dispatch.ExecContext{
		ExecutionID:  execID,
		UserID:       sub.UserID,
		Framework:    sub.Framework,
		InitialInput: sub.Input,
		Invoker:      e.invoker,
		Broker:       e.broker,
		Pricing:      e.pricing,
		BoundTools: func(agentNodeID string) []collab.ToolDescriptor {
			var tools []collab.ToolDescriptor
			for _, edge := range g.In(agentNodeID) {
				if edge.TargetHandle != "tool" {
					continue
				}
				if src, ok := g.Node(edge.Source); ok {
					tools = append(tools, collab.ToolDescriptor{NodeID: src.ID, ToolType: src.ToolType})
				}
			}
			return tools
		},
	}

	for _, id := range plan.Order {
		select {
		case <-ctx.Done():
			e.markRemainingFailed(st, g, plan.Order, executed)
			return runOutcome{kind: outcomeCancelled}
		default:
		}

		n, _ := g.Node(id)

		if !reached[id] {
			continue // on an untraversed conditional branch: stays pending/completed, not a failure
		}

		if boundToolOnly[id] {
			// Exists purely to supply a tool binding to an agent; not independently dispatched.
			executed[id] = true
			propagateLiveness(g, n, "", reached)
			continue
		}

		switch n.Kind {
		case graph.KindConditional:
			input := gatherInput(g, id, executed, outputs, sub.Input)
			selected, ok := dispatch.EvaluateConditional(n.Conditions, input)
			if !ok {
				e.markRemainingFailed(st, g, plan.Order, executed)
				return runOutcome{kind: outcomeFailed, err: engineerr.NoBranch(id)}
			}
			executed[id] = true
			propagateLiveness(g, n, selected, reached)

		case graph.KindInput, graph.KindOutput:
			inputs := map[string]any{}
			if v := gatherInput(g, id, executed, outputs, sub.Input); v != nil {
				inputs["result"] = v
				inputs["default"] = v
			}
			handler, _ := e.registry.Get(n.Kind)
			out, err := handler.Handle(ctx, dispatch.Request{Node: n, Inputs: inputs, Exec: execCtx})
			if err != nil {
				e.markRemainingFailed(st, g, plan.Order, executed)
				return runOutcome{kind: outcomeFailed, err: engineerr.HandlerFailed(id, err)}
			}
			outputs[id] = out.Values
			executed[id] = true
			propagateLiveness(g, n, "", reached)
			if n.Kind == graph.KindOutput {
				if s, ok := out.Values["result"].(string); ok {
					outputNodeResults = append(outputNodeResults, s)
				}
			}

		case graph.KindAgent, graph.KindTool:
			e.setNodeState(st, id, NodeStateRunning)
			e.publish(execID, st)

			inputMap := map[string]any{}
			if v := gatherInput(g, id, executed, outputs, sub.Input); v != nil {
				inputMap["result"] = v
				inputMap["default"] = v
				inputMap["prompt"] = stringifyAny(v)
			}

			handler, ok := e.registry.Get(n.Kind)
			if !ok {
				e.markRemainingFailed(st, g, plan.Order, executed)
				return runOutcome{kind: outcomeFailed, err: engineerr.InternalErr(fmt.Errorf("no handler registered for kind %q", n.Kind))}
			}

			out, err := handler.Handle(ctx, dispatch.Request{Node: n, Inputs: inputMap, Exec: execCtx})
			if err != nil {
				e.setNodeState(st, id, NodeStateFailed)
				e.markRemainingFailed(st, g, plan.Order, executed)
				return runOutcome{kind: outcomeFailed, err: engineerr.As(err)}
			}

			if out.Trace != nil {
				extracted := telemetry.Extract(*out.Trace, n.ModelID, e.pricing)
				lastTrace = &extracted
			}

			// User-input gate (spec §4.9): only agent outputs are scanned.
			if n.Kind == graph.KindAgent {
				resultStr, _ := out.Values["result"].(string)
				if question, asks := gate.Detect(resultStr); asks {
					reply, cancelled := e.parkForInput(ctx, execID, st, question, resultStr)
					if cancelled {
						e.markRemainingFailed(st, g, plan.Order, executed)
						return runOutcome{kind: outcomeCancelled}
					}
					out.Values["result"] = reply
					out.Values["default"] = reply
				}
			}

			outputs[id] = out.Values
			executed[id] = true
			completedCount++
			e.setNodeState(st, id, NodeStateCompleted)
			e.updateProgressPercent(st, completedCount, executableCount, n.Name)
			e.publish(execID, st)

			if s, ok := out.Values["result"].(string); ok {
				lastExecutableResult = s
			}
			propagateLiveness(g, n, "", reached)
		}
	}

	final := lastExecutableResult
	if len(outputNodeResults) > 0 {
		final = strings.Join(outputNodeResults, "\n")
	}
	return runOutcome{kind: outcomeSuccess, result: final, trace: lastTrace}
}

// parkForInput suspends the driver until ProvideInput delivers a reply or ctx
// is cancelled (spec §4.9).
func (e *Engine) parkForInput(ctx context.Context, execID string, st *execState, question, fullOutput string) (reply string, cancelled bool) {
	ch := st.openGate()
	defer st.closeGate()

	st.mutate(func(ex *Execution) { ex.Status = StatusWaitingForInput })
	e.publishInputRequest(execID, question, fullOutput)
	e.publish(execID, st)

	select {
	case text := <-ch:
		st.mutate(func(ex *Execution) { ex.Status = StatusRunning })
		e.publishInputReceived(execID, text)
		e.publish(execID, st)
		return text, false
	case <-ctx.Done():
		return "", true
	}
}

// gatherInput collects the result/default output of every executed
// predecessor connected by a non-tool-binding edge, concatenating with
// numbered prefixes when more than one source contributes (spec §4.4 step 5).
// A node with no incoming edges at all is a graph start: it receives the
// execution's initial input directly, the same way an explicit input node
// does (spec scenario S1: a lone agent node with no edges still sees the
// submitted input as its prompt).
func gatherInput(g *graph.Graph, nodeID string, executed map[string]bool, outputs map[string]nodeOutput, initialInput any) any {
	var dataEdges int
	var values []any
	for _, e := range g.In(nodeID) {
		if e.TargetHandle == "tool" {
			continue
		}
		dataEdges++
		if !executed[e.Source] {
			continue
		}
		out, ok := outputs[e.Source]
		if !ok {
			continue
		}
		if v, ok := out["result"]; ok {
			values = append(values, v)
		} else if v, ok := out["default"]; ok {
			values = append(values, v)
		}
	}

	if dataEdges == 0 {
		return initialInput
	}

	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("[%d] %s", i+1, stringifyAny(v))
		}
		return strings.Join(parts, "\n")
	}
}

func stringifyAny(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// propagateLiveness marks the targets of a node's effectively-taken out-edges
// as reached. For conditional nodes only the edge whose SourceHandle matches
// selected is live; for every other kind all out-edges are live.
func propagateLiveness(g *graph.Graph, n *graph.Node, selected string, reached map[string]bool) {
	for _, e := range g.Out(n.ID) {
		if n.Kind == graph.KindConditional && e.SourceHandle != selected {
			continue
		}
		reached[e.Target] = true
	}
}

// computeBoundToolOnlyNodes identifies tool nodes whose every outgoing edge is
// a target_handle="tool" binding into an agent: these exist purely to
// describe a tool available to that agent and are not independently
// dispatched (spec §4.3's agent tool-binding rule).
func computeBoundToolOnlyNodes(g *graph.Graph) map[string]bool {
	out := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Kind != graph.KindTool {
			continue
		}
		edges := g.Out(n.ID)
		if len(edges) == 0 {
			continue
		}
		allBound := true
		for _, e := range edges {
			if e.TargetHandle != "tool" {
				allBound = false
				break
			}
		}
		if allBound {
			out[n.ID] = true
		}
	}
	return out
}

// markRemainingFailed marks every still-pending or running executable node
// failed once the execution terminates on a fault (spec §4.4 step 8).
func (e *Engine) markRemainingFailed(st *execState, g *graph.Graph, order []string, executed map[string]bool) {
	st.mutate(func(ex *Execution) {
		for _, id := range order {
			n, ok := g.Node(id)
			if !ok || !n.Kind.IsExecutable() {
				continue
			}
			if executed[id] {
				continue
			}
			cur, ok := ex.Progress.NodeStatus[id]
			if !ok || cur.State == NodeStateCompleted {
				continue
			}
			cur.State = NodeStateFailed
			ex.Progress.NodeStatus[id] = cur
		}
	})
}
