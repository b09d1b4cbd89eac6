// Package collab defines the external collaborator interfaces the engine depends
// on but does not implement: the agent invoker, the credential broker, and the
// graph store (spec §6). Only the contracts are fixed here — concrete LLM calls,
// web search, and third-party tool integrations are out of scope.
package collab

import (
	"context"

	"github.com/lyzr/orchestrator/internal/telemetry"
)

// AgentSpec describes the agent a node binds to.
type AgentSpec struct {
	Name         string
	ModelID      string
	Instructions string
	Description  string
}

// ToolDescriptor describes a tool bound to an agent via a target_handle="tool" edge.
type ToolDescriptor struct {
	NodeID   string
	ToolType string
}

// InvokeResult is what the agent invoker returns for one dispatch. Trace is the
// pre-extraction raw trace; internal/telemetry.Extract turns it into a Trace.
type InvokeResult struct {
	FinalOutput string
	Trace       telemetry.RawTrace
}

// AgentInvoker executes one agent node and returns its output plus a raw
// telemetry trace for internal/telemetry to extract.
type AgentInvoker interface {
	Invoke(ctx context.Context, agent AgentSpec, tools []ToolDescriptor, prompt string) (InvokeResult, error)
}

// Credential is what the broker resolves for a user.
type Credential struct {
	APIKey         string
	EnabledToolIDs []string // nil means no whitelist restriction
}

// CredentialBroker decrypts and returns a per-user API key and optional tool
// whitelist. Resolve returns (Credential{}, false) when the user has none on file.
type CredentialBroker interface {
	Resolve(ctx context.Context, userID string) (Credential, bool, error)
}

// Allows reports whether toolID is permitted for this credential's whitelist.
func (c Credential) Allows(toolID string) bool {
	if c.EnabledToolIDs == nil {
		return true
	}
	for _, id := range c.EnabledToolIDs {
		if id == toolID {
			return true
		}
	}
	return false
}

// Snapshot is the terminal-state record the graph store persists exactly once
// per execution, per spec §6.
type Snapshot struct {
	ExecutionID   string
	UserID        string
	Identity      any
	Status        string
	CreatedAt     any
	CompletedAt   any
	CostInfo      telemetry.CostInfo
	Trace         telemetry.Trace
}

// GraphStore persists a terminal execution snapshot for analytics. Called
// exactly once per execution.
type GraphStore interface {
	Record(ctx context.Context, snapshot Snapshot) error
}
