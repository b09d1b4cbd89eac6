// Package stub provides deterministic collab.* implementations used by tests
// and local/demo wiring: an echoing agent invoker, a fixed-credential broker,
// and an in-memory recording graph store. None of these call out to a real
// LLM, credential vault, or database — they exist to exercise the engine's
// contracts in isolation (spec §6: "only the contracts are fixed here").
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/telemetry"
)

// EchoInvoker returns a fixed or derived reply for every agent invocation,
// with a single synthetic span so extraction has something to chew on.
type EchoInvoker struct {
	// Reply, if set, is returned verbatim; otherwise the invoker echoes the
	// prompt prefixed by the agent's name.
	Reply string
}

func (e *EchoInvoker) Invoke(ctx context.Context, agent collab.AgentSpec, tools []collab.ToolDescriptor, prompt string) (collab.InvokeResult, error) {
	out := e.Reply
	if out == "" {
		out = fmt.Sprintf("%s: %s", agent.Name, prompt)
	}

	start := time.Now()
	end := start.Add(10 * time.Millisecond)
	return collab.InvokeResult{
		FinalOutput: out,
		Trace: telemetry.RawTrace{
			FinalOutput: out,
			Spans: []telemetry.RawSpan{
				{
					Name:      agent.Name,
					SpanID:    "span-1",
					TraceID:   "trace-1",
					StartTime: start,
					EndTime:   end,
					Status:    "ok",
					Kind:      "agent",
					Attributes: map[string]any{
						"gen_ai.usage.input_tokens":  10,
						"gen_ai.usage.output_tokens": 20,
					},
				},
			},
		},
	}, nil
}

// FixedBroker resolves the same credential for every user.
type FixedBroker struct {
	Credential collab.Credential
	Known      bool
}

func (f *FixedBroker) Resolve(ctx context.Context, userID string) (collab.Credential, bool, error) {
	return f.Credential, f.Known, nil
}

// RecordingStore captures every snapshot handed to it, for test assertions.
type RecordingStore struct {
	mu        sync.Mutex
	Snapshots []collab.Snapshot
}

func (r *RecordingStore) Record(ctx context.Context, snapshot collab.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Snapshots = append(r.Snapshots, snapshot)
	return nil
}

// All returns a copy of the captured snapshots.
func (r *RecordingStore) All() []collab.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]collab.Snapshot, len(r.Snapshots))
	copy(out, r.Snapshots)
	return out
}
