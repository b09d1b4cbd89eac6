// Package dispatch implements the type-indexed node handlers from spec §4.3:
// one handler per node kind, registered in a closed registry so an unregistered
// kind fails validation rather than silently no-oping (spec §9 design note).
package dispatch

import (
	"context"

	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/dispatch/tools"
	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/telemetry"
)

// ExecContext carries everything a handler needs beyond its own node's inputs:
// the collaborators, the submission's initial input, and the tool bindings
// resolved from target_handle="tool" edges.
type ExecContext struct {
	ExecutionID  string
	UserID       string
	Framework    string
	InitialInput any

	Invoker collab.AgentInvoker
	Broker  collab.CredentialBroker
	Pricing telemetry.PricingTable

	// BoundTools returns the tool descriptors bound to agentNodeID via edges
	// with target_handle="tool".
	BoundTools func(agentNodeID string) []collab.ToolDescriptor
}

// Request is what the engine hands a handler for one node dispatch.
type Request struct {
	Node   *graph.Node
	Inputs map[string]any
	Exec   *ExecContext
}

// Outputs is what a handler returns: named output values (at minimum "result"
// and "default" for executable nodes) plus, for agent/tool nodes, the raw
// trace for internal/telemetry to extract.
type Outputs struct {
	Values map[string]any
	Trace  *telemetry.RawTrace
}

// Handler realizes one node kind's behavior.
type Handler interface {
	Handle(ctx context.Context, req Request) (Outputs, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Outputs, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (Outputs, error) { return f(ctx, req) }

// Registry is the closed, type-indexed handler table.
type Registry struct {
	handlers map[graph.Kind]Handler
}

// NewRegistry builds a Registry with the input, output, agent and tool handlers
// wired. Conditional nodes are not dispatched through the registry: the engine
// routes them with EvaluateConditional.
func NewRegistry(toolRegistry *tools.Registry) *Registry {
	r := &Registry{handlers: make(map[graph.Kind]Handler, 5)}
	r.handlers[graph.KindInput] = HandlerFunc(handleInput)
	r.handlers[graph.KindOutput] = HandlerFunc(handleOutput)
	r.handlers[graph.KindAgent] = HandlerFunc(handleAgent)
	r.handlers[graph.KindTool] = newToolHandler(toolRegistry)
	return r
}

// Get returns the handler for kind, or false if kind is unregistered.
func (r *Registry) Get(kind graph.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}
