package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyzr/orchestrator/common/logger"
	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/dispatch"
	"github.com/lyzr/orchestrator/internal/identity"
	"github.com/lyzr/orchestrator/internal/progress"
	"github.com/lyzr/orchestrator/internal/retention"
	"github.com/lyzr/orchestrator/internal/telemetry"
	"github.com/lyzr/orchestrator/internal/validator"
)

// Engine drives execution submissions end to end (spec §4.4). One Engine
// instance is shared process-wide; each Submit call spawns its own driver
// goroutine holding the single-writer state cell for that execution.
type Engine struct {
	validator   *validator.Validator
	identityGen *identity.Generator
	registry    *dispatch.Registry
	bus         *progress.Bus
	relay       progress.Relay
	retention   *retention.Store
	store       collab.GraphStore
	invoker     collab.AgentInvoker
	broker      collab.CredentialBroker
	pricing     telemetry.PricingTable
	log         *logger.Logger

	seq int64

	mu     sync.Mutex
	states map[string]*execState
}

// Deps bundles the collaborators and shared infrastructure an Engine needs.
type Deps struct {
	Registry   *dispatch.Registry
	Bus        *progress.Bus
	Relay      progress.Relay
	Retention  *retention.Store
	Store      collab.GraphStore
	Invoker    collab.AgentInvoker
	Broker     collab.CredentialBroker
	Pricing    telemetry.PricingTable
	Log        *logger.Logger
}

// New constructs an Engine with its own validator and identity generator
// (both stateful caches, owned per-engine) and the supplied collaborators.
func New(deps Deps) *Engine {
	return &Engine{
		validator:   validator.New(),
		identityGen: identity.New(),
		registry:    deps.Registry,
		bus:         deps.Bus,
		relay:       deps.Relay,
		retention:   deps.Retention,
		store:       deps.Store,
		invoker:     deps.Invoker,
		broker:      deps.Broker,
		pricing:     deps.Pricing,
		log:         deps.Log,
		states:      make(map[string]*execState),
	}
}

// nextExecID mints "exec_{user_id}_{monotonic_ms}" (spec §4.4 step 1),
// disambiguated with a per-process sequence number so two submissions in the
// same millisecond never collide.
func (e *Engine) nextExecID(userID string) string {
	n := atomic.AddInt64(&e.seq, 1)
	return fmt.Sprintf("exec_%s_%d_%d", userID, time.Now().UnixMilli(), n)
}

// Submit registers a pending execution record and starts its driver goroutine,
// returning the execution id immediately. The driver runs the full lifecycle
// from spec §4.4 asynchronously; callers observe progress via Subscribe or
// poll GetExecution/AwaitTerminal.
func (e *Engine) Submit(ctx context.Context, sub Submission) string {
	userID := sub.UserID
	if userID == "" {
		userID = "anonymous"
	}
	execID := e.nextExecID(userID)

	driverCtx, cancel := context.WithCancel(context.Background())
	st := newExecState(Execution{
		ExecutionID: execID,
		UserID:      userID,
		Status:      StatusRunning,
		CreatedAt:   time.Now(),
		Input:       sub.Input,
	}, cancel)

	e.mu.Lock()
	e.states[execID] = st
	e.mu.Unlock()

	go e.drive(driverCtx, execID, st, sub)

	return execID
}

// GetExecution returns the current snapshot for execID under userID.
func (e *Engine) GetExecution(userID, execID string) (Execution, bool) {
	e.mu.Lock()
	st, ok := e.states[execID]
	e.mu.Unlock()
	if ok {
		return st.Snapshot(), true
	}

	if rec, ok := e.retention.Get(userID, execID); ok {
		if exec, ok := rec.Snapshot.(Execution); ok {
			return exec, true
		}
	}
	return Execution{}, false
}

// Subscribe attaches a progress subscriber for execID.
func (e *Engine) Subscribe(execID string) *progress.Subscription {
	return e.bus.Subscribe(execID)
}

// Cancel transitions execID to failed("cancelled") at the driver's next yield
// point (spec §5). In-flight handlers finish but their output is discarded.
func (e *Engine) Cancel(execID string) bool {
	e.mu.Lock()
	st, ok := e.states[execID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	st.cancel()
	return true
}

// ProvideInput resumes a waiting_for_input execution with text, per spec
// §4.9/§8 Property 7. Returns false ("not waiting") if the execution isn't
// currently parked — including on a second call for the same execution.
func (e *Engine) ProvideInput(execID, text string) bool {
	e.mu.Lock()
	st, ok := e.states[execID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	return st.deliverInput(text)
}

// AwaitTerminal blocks until execID reaches a terminal status or ctx is done,
// used by the webhook registry's synchronous trigger (spec §4.8).
func (e *Engine) AwaitTerminal(ctx context.Context, execID string) (Execution, error) {
	e.mu.Lock()
	st, ok := e.states[execID]
	e.mu.Unlock()
	if !ok {
		if exec, ok := e.GetExecution("", execID); ok {
			return exec, nil
		}
		return Execution{}, fmt.Errorf("unknown execution %q", execID)
	}

	select {
	case <-st.done:
		return st.Snapshot(), nil
	case <-ctx.Done():
		return st.Snapshot(), ctx.Err()
	}
}

// forget drops the in-memory driver state once an execution is terminal and
// committed to retention; GetExecution falls back to the retention store.
func (e *Engine) forget(execID string) {
	e.mu.Lock()
	delete(e.states, execID)
	e.mu.Unlock()
}
