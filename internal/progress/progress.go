// Package progress implements the per-execution pub/sub bus (spec §4.5):
// ordered delivery per execution, no cross-execution ordering, and a
// never-block-the-driver contract realized with bounded drop-oldest channels.
// Grounded on the teacher's token_publisher.go fan-out shape, converted from a
// Redis-stream publish to an in-process channel send (distributed execution
// across machines is an explicit spec Non-goal).
package progress

import (
	"sync"
)

// EventKind is the closed set of message shapes spec §4.5 defines.
type EventKind string

const (
	EventExecutionUpdate EventKind = "execution_update"
	EventInputRequest    EventKind = "input_request"
	EventInputReceived   EventKind = "input_received"
)

// Event is one message delivered to a subscriber. Payload is one of
// ExecutionUpdate, InputRequest, or InputReceived depending on Kind.
type Event struct {
	Kind    EventKind
	Payload any
}

// ExecutionUpdate is the execution_update payload.
type ExecutionUpdate struct {
	Status   string
	Progress any // engine.Progress, kept as any to avoid an import cycle
	Result   *string
	Error    any
	Identity any
}

// InputRequest is the input_request payload.
type InputRequest struct {
	Question   string
	FullOutput string
	Timestamp  int64
}

// InputReceived is the input_received payload.
type InputReceived struct {
	Input string
}

const subscriberBuffer = 32

// subscriber is a bounded, drop-oldest mailbox for one attached consumer.
type subscriber struct {
	ch chan Event
	mu sync.Mutex
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Event, subscriberBuffer)}
}

// send never blocks: on a full buffer it drops the oldest queued event to make
// room, so a slow or gone subscriber never stalls the publishing execution.
func (s *subscriber) send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- e:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Bus is a per-execution subscriber table. One Bus instance is shared by the
// whole engine; subscriptions are keyed by execution id.
type Bus struct {
	mu    sync.Mutex
	subs  map[string][]*subscriber
	last  map[string]Event // latest execution_update, replayed to late subscribers
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*subscriber),
		last: make(map[string]Event),
	}
}

// Subscription is a handle returned to callers; Events delivers the ordered
// stream, Unsubscribe detaches (silent — no error, no further blocking).
type Subscription struct {
	Events <-chan Event
	bus    *Bus
	execID string
	sub    *subscriber
}

// Unsubscribe detaches this subscription. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	list := s.bus.subs[s.execID]
	for i, sub := range list {
		if sub == s.sub {
			s.bus.subs[s.execID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Subscribe attaches a new subscriber to execID. A late subscriber immediately
// receives the current (last published execution_update) record, then
// subsequent updates, per spec §4.5.
func (b *Bus) Subscribe(execID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber()
	b.subs[execID] = append(b.subs[execID], sub)

	if last, ok := b.last[execID]; ok {
		sub.send(last)
	}

	return &Subscription{Events: sub.ch, bus: b, execID: execID, sub: sub}
}

// Publish delivers e to every subscriber of execID, in publication order,
// never blocking on a slow consumer. execution_update events are remembered
// for replay to future late subscribers.
func (b *Bus) Publish(execID string, e Event) {
	b.mu.Lock()
	if e.Kind == EventExecutionUpdate {
		b.last[execID] = e
	}
	subs := append([]*subscriber{}, b.subs[execID]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.send(e)
	}
}

// Close drops all subscriber state for execID, called by the retention store
// on eviction (spec §4.7: "removal also drops the execution's ... subscribers").
func (b *Bus) Close(execID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, execID)
	delete(b.last, execID)
}
