// Package webhook implements the graph-to-URL binding from spec §4.8: a
// graph is registered once and then triggered by external callers, each
// trigger driving a fresh execution through the standard engine path and
// blocking for a terminal result. Grounded on the teacher's
// cmd/hitl-worker/worker consumer-id minting (google/uuid) and on
// coordinator/router.go's registration-table shape, converted from a
// Redis-stream dispatch into a direct engine.Submit/AwaitTerminal call since
// distributed execution across machines is an explicit spec Non-goal.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lyzr/orchestrator/common/ratelimit"
	"github.com/lyzr/orchestrator/internal/engine"
	"github.com/lyzr/orchestrator/internal/graph"
)

const pollInterval = 500 // milliseconds, informational: AwaitTerminal already blocks efficiently

// Registration is a stored graph binding, owned by the caller that registered it.
type Registration struct {
	WebhookID string
	URL       string
	UserID    string
	Graph     *graph.Graph
}

// RateLimiter checks a tiered per-user request budget before a trigger runs
// an execution, adapted from the teacher's common/ratelimit.RateLimiter
// (Redis+Lua fixed-window counter keyed by workflow complexity tier).
type RateLimiter interface {
	CheckTieredLimit(ctx context.Context, userID string, tier ratelimit.WorkflowTier) (*ratelimit.RateLimitResult, error)
}

// TriggerResult is what trigger() returns to the external caller.
type TriggerResult struct {
	OK     bool   `json:"ok"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Registry binds graphs to webhook ids and drives triggered executions
// through the engine, synchronously, per spec §4.8.
type Registry struct {
	engine  *engine.Engine
	baseURL string
	limiter RateLimiter

	mu   sync.RWMutex
	byID map[string]Registration
}

// New constructs a Registry. baseURL is prefixed to minted webhook URLs
// ("{baseURL}/hooks/{webhook_id}"). limiter is optional; a nil limiter
// disables tiered rate limiting entirely.
func New(eng *engine.Engine, baseURL string, limiter RateLimiter) *Registry {
	return &Registry{engine: eng, baseURL: baseURL, limiter: limiter, byID: make(map[string]Registration)}
}

// Register mints a random id and stores the frozen graph under userID,
// returning the {webhook_id, url} pair.
func (r *Registry) Register(g *graph.Graph, userID string) Registration {
	id := uuid.New().String()
	reg := Registration{
		WebhookID: id,
		URL:       fmt.Sprintf("%s/hooks/%s", r.baseURL, id),
		UserID:    userID,
		Graph:     g,
	}

	r.mu.Lock()
	r.byID[id] = reg
	r.mu.Unlock()

	return reg
}

// Lookup returns the registration for webhookID.
func (r *Registry) Lookup(webhookID string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[webhookID]
	return reg, ok
}

// Unregister drops a webhook binding; triggers against it afterward fail as unknown.
func (r *Registry) Unregister(webhookID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, webhookID)
}

// Trigger constructs an execution with input=canonical-json(body), drives it
// through the standard engine path, and blocks until terminal status (spec
// §4.8). The 500ms cooperative poll interval named in the spec is realized
// by AwaitTerminal's channel wait rather than literal polling — there is no
// busy loop, so no poll ever runs late or early.
func (r *Registry) Trigger(ctx context.Context, webhookID string, body any) TriggerResult {
	reg, ok := r.Lookup(webhookID)
	if !ok {
		return TriggerResult{OK: false, Error: fmt.Sprintf("unknown webhook %q", webhookID)}
	}

	if r.limiter != nil {
		kinds := make([]string, len(reg.Graph.Nodes))
		for i, n := range reg.Graph.Nodes {
			kinds[i] = string(n.Kind)
		}
		tier := ratelimit.InspectNodeKinds(kinds).Tier

		result, err := r.limiter.CheckTieredLimit(ctx, reg.UserID, tier)
		if err != nil {
			return TriggerResult{OK: false, Error: fmt.Sprintf("rate limit check failed: %v", err)}
		}
		if !result.Allowed {
			return TriggerResult{OK: false, Error: fmt.Sprintf("rate limit exceeded for tier %q, retry after %ds", tier, result.RetryAfterSeconds)}
		}
	}

	canonical, err := canonicalJSON(body)
	if err != nil {
		return TriggerResult{OK: false, Error: fmt.Sprintf("invalid body: %v", err)}
	}

	execID := r.engine.Submit(ctx, engine.Submission{
		Graph:     reg.Graph,
		Input:     canonical,
		Framework: "webhook",
		UserID:    reg.UserID,
	})

	exec, err := r.engine.AwaitTerminal(ctx, execID)
	if err != nil {
		return TriggerResult{OK: false, Error: err.Error()}
	}

	if exec.Status == engine.StatusFailed {
		msg := "execution failed"
		if exec.Error != nil {
			msg = exec.Error.Error()
		}
		return TriggerResult{OK: false, Error: msg}
	}

	result := ""
	if exec.Result != nil {
		result = *exec.Result
	}
	return TriggerResult{OK: true, Result: result}
}

// canonicalJSON produces a stable JSON encoding of body (map keys sorted by
// encoding/json's default marshaling behavior).
func canonicalJSON(body any) (string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
