package engine

import (
	"context"
	"time"

	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/engineerr"
	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/identity"
	"github.com/lyzr/orchestrator/internal/progress"
	"github.com/lyzr/orchestrator/internal/retention"
	"github.com/lyzr/orchestrator/internal/telemetry"
)

// resolveIdentity returns the caller-supplied identity if any, otherwise
// derives one from graph structure (spec §4.4 step 3).
func (e *Engine) resolveIdentity(g *graph.Graph, provided *identity.Identity) identity.Identity {
	if provided != nil {
		return *provided
	}
	return e.identityGen.Generate(g)
}

// initProgress seeds Progress.NodeStatus: executable, independently-dispatched
// nodes start pending; everything else (conditional/input/output nodes and
// bound-only tool nodes) starts completed since the driver never dispatches
// them on their own.
func (e *Engine) initProgress(st *execState, g *graph.Graph) {
	boundToolOnly := computeBoundToolOnlyNodes(g)

	statuses := make(map[string]NodeStatus, len(g.Nodes))
	total := 0
	for _, n := range g.Nodes {
		state := NodeStateCompleted
		if n.Kind.IsExecutable() && !boundToolOnly[n.ID] {
			state = NodeStatePending
			total++
		}
		statuses[n.ID] = NodeStatus{State: state, Name: n.Name, Kind: n.Kind}
	}

	st.mutate(func(ex *Execution) {
		ex.Progress = Progress{
			Percent:    0,
			TotalSteps: total,
			NodeStatus: statuses,
		}
	})
}

// setNodeState transitions one node's status, preserving its name/kind.
func (e *Engine) setNodeState(st *execState, nodeID string, state NodeState) {
	st.mutate(func(ex *Execution) {
		cur := ex.Progress.NodeStatus[nodeID]
		cur.State = state
		ex.Progress.NodeStatus[nodeID] = cur
	})
}

// updateProgressPercent advances the coarse percent/step counters after a
// node completes (spec §3 Progress data model).
func (e *Engine) updateProgressPercent(st *execState, completed, total int, activity string) {
	st.mutate(func(ex *Execution) {
		ex.Progress.CurrentStep = completed
		ex.Progress.CurrentActivity = activity
		if total > 0 {
			ex.Progress.Percent = completed * 100 / total
		}
	})
}

// fail transitions the execution to failed and records the classified error.
func (e *Engine) fail(st *execState, err *engineerr.Error) {
	now := time.Now()
	st.mutate(func(ex *Execution) {
		ex.Status = StatusFailed
		ex.Error = err
		ex.CompletedAt = &now
	})
	st.markTerminal()
}

// succeed transitions the execution to completed with its final result and
// extracted telemetry.
func (e *Engine) succeed(st *execState, result string, trace *telemetry.Trace) {
	now := time.Now()
	st.mutate(func(ex *Execution) {
		ex.Status = StatusCompleted
		ex.Result = &result
		ex.Trace = trace
		ex.CompletedAt = &now
		ex.Progress.Percent = 100
	})
	st.markTerminal()
}

// publish broadcasts the current snapshot as an execution_update event.
func (e *Engine) publish(execID string, st *execState) {
	snap := st.Snapshot()
	var errAny any
	if snap.Error != nil {
		errAny = snap.Error
	}
	event := progress.Event{
		Kind: progress.EventExecutionUpdate,
		Payload: progress.ExecutionUpdate{
			Status:   string(snap.Status),
			Progress: snap.Progress,
			Result:   snap.Result,
			Error:    errAny,
			Identity: snap.Identity,
		},
	}
	e.bus.Publish(execID, event)
	e.relayPublish(snap.UserID, event)
}

func (e *Engine) publishInputRequest(execID, question, fullOutput string) {
	event := progress.Event{
		Kind: progress.EventInputRequest,
		Payload: progress.InputRequest{
			Question:   question,
			FullOutput: fullOutput,
			Timestamp:  time.Now().Unix(),
		},
	}
	e.bus.Publish(execID, event)
	if snap, ok := e.GetExecution("", execID); ok {
		e.relayPublish(snap.UserID, event)
	}
}

func (e *Engine) publishInputReceived(execID, text string) {
	event := progress.Event{
		Kind:    progress.EventInputReceived,
		Payload: progress.InputReceived{Input: text},
	}
	e.bus.Publish(execID, event)
	if snap, ok := e.GetExecution("", execID); ok {
		e.relayPublish(snap.UserID, event)
	}
}

// relayPublish forwards event to the optional cross-process relay (cmd/fanout),
// logging but not failing the execution on delivery error.
func (e *Engine) relayPublish(userID string, event progress.Event) {
	if e.relay == nil {
		return
	}
	if err := e.relay.Publish(context.Background(), userID, event); err != nil {
		e.log.Warn("progress relay publish failed", "user_id", userID, "error", err)
	}
}

// commit persists the terminal snapshot to retention and the graph store,
// then drops the in-memory driver state (spec §4.4 step 10, §4.7, §6).
func (e *Engine) commit(execID string, st *execState) {
	snap := st.Snapshot()

	e.retention.Put(snap.UserID, retention.Record{
		ExecutionID: execID,
		CreatedAt:   snap.CreatedAt,
		Snapshot:    snap,
	})

	if e.store != nil {
		var trace telemetry.Trace
		if snap.Trace != nil {
			trace = *snap.Trace
		}
		snapshot := collab.Snapshot{
			ExecutionID: execID,
			UserID:      snap.UserID,
			Identity:    snap.Identity,
			Status:      string(snap.Status),
			CreatedAt:   snap.CreatedAt,
			CompletedAt: snap.CompletedAt,
			CostInfo:    trace.CostInfo,
			Trace:       trace,
		}
		if err := e.store.Record(context.Background(), snapshot); err != nil {
			e.log.Error("graph store record failed", "execution_id", execID, "error", err)
		}
	}

	e.forget(execID)
}
