package engine

import (
	"context"
	"sync"
)

// execState is the single-writer state cell for one execution: only the
// driver goroutine mutates it (under mu, briefly, to publish a consistent
// snapshot); every other caller gets a cloned copy via Snapshot.
type execState struct {
	mu   sync.Mutex
	exec Execution

	cancel context.CancelFunc

	// inputCh delivers a reply to a parked driver goroutine waiting in the
	// user-input gate (spec §4.9). nil unless the execution is currently
	// waiting_for_input.
	muGate  sync.Mutex
	inputCh chan string

	done chan struct{} // closed once the execution reaches a terminal status
}

func newExecState(exec Execution, cancel context.CancelFunc) *execState {
	return &execState{exec: exec, cancel: cancel, done: make(chan struct{})}
}

// Snapshot returns a point-in-time copy of the execution record.
func (s *execState) Snapshot() Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec.clone()
}

// mutate applies fn to the live record under lock; fn must not retain the
// pointer beyond its call.
func (s *execState) mutate(fn func(*Execution)) {
	s.mu.Lock()
	fn(&s.exec)
	s.mu.Unlock()
}

// markTerminal transitions to a terminal status and closes done, waking any
// waiter in AwaitTerminal.
func (s *execState) markTerminal() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// openGate opens a fresh input channel for the user-input gate to park on,
// replacing any previous one. A second delivery is a no-op because
// deliverInput clears the channel as it sends.
func (s *execState) openGate() chan string {
	s.muGate.Lock()
	defer s.muGate.Unlock()
	ch := make(chan string, 1)
	s.inputCh = ch
	return ch
}

// closeGate clears the parked channel once the gate has been satisfied or the
// execution otherwise moves on.
func (s *execState) closeGate() {
	s.muGate.Lock()
	s.inputCh = nil
	s.muGate.Unlock()
}

// deliverInput sends text to a parked gate, returning false if no gate is
// currently open (spec §8 Property 7: a second provide_input call is a no-op).
func (s *execState) deliverInput(text string) bool {
	s.muGate.Lock()
	ch := s.inputCh
	s.inputCh = nil
	s.muGate.Unlock()

	if ch == nil {
		return false
	}
	ch <- text
	return true
}
