// Package engine implements the execution lifecycle from spec §4.4: per-
// execution step driving, conditional branching, retries, and the progress/
// telemetry/retention wiring around one submitted graph run. Grounded on the
// teacher's coordinator/coordinator.go lifecycle and logging shape, but
// re-architected per spec §9 into one goroutine per execution that owns a
// private state cell — external reads get a point-in-time snapshot, never a
// pointer into live state (the "single-writer, message-passing reads" design
// note realized directly, without a distributed queue).
package engine

import (
	"time"

	"github.com/lyzr/orchestrator/internal/engineerr"
	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/identity"
	"github.com/lyzr/orchestrator/internal/telemetry"
)

// Status is the closed set of execution lifecycle states (spec §3).
type Status string

const (
	StatusRunning         Status = "running"
	StatusWaitingForInput Status = "waiting_for_input"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// NodeState is the closed set of per-node execution states (spec §3).
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateRunning   NodeState = "running"
	NodeStateCompleted NodeState = "completed"
	NodeStateFailed    NodeState = "failed"
)

// NodeStatus is one entry of Progress.NodeStatus.
type NodeStatus struct {
	State NodeState  `json:"state"`
	Name  string     `json:"name"`
	Kind  graph.Kind `json:"kind"`
}

// Progress is the live execution progress block (spec §3).
type Progress struct {
	Percent         int                   `json:"percent"`
	CurrentActivity string                `json:"current_activity"`
	CurrentStep     int                   `json:"current_step"`
	TotalSteps      int                   `json:"total_steps"`
	NodeStatus      map[string]NodeStatus `json:"node_status"`
}

func (p Progress) clone() Progress {
	cp := p
	cp.NodeStatus = make(map[string]NodeStatus, len(p.NodeStatus))
	for k, v := range p.NodeStatus {
		cp.NodeStatus[k] = v
	}
	return cp
}

// Execution is the immutable-once-terminal execution record (spec §3). It is
// always handed out as a value copy (Snapshot) — never a pointer into the
// driver goroutine's live state.
type Execution struct {
	ExecutionID string
	UserID      string
	Status      Status
	CreatedAt   time.Time
	CompletedAt *time.Time
	Input       any
	Identity    identity.Identity
	Result      *string
	Error       *engineerr.Error
	Progress    Progress
	Trace       *telemetry.Trace
}

func (e Execution) clone() Execution {
	cp := e
	cp.Progress = e.Progress.clone()
	return cp
}

// Submission is what a caller hands the engine (spec §6).
type Submission struct {
	Graph     *graph.Graph
	Input     any
	Framework string
	UserID    string
	Identity  *identity.Identity
}
