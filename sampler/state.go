package sampler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/probescope/probescope/logger"
)

// State represents the lifecycle stage of a sampler.
type State uint32

// Sampler lifecycle states.
const (
	// IdleState indicates no acquisition is active and no transport is held.
	IdleState State = iota
	// ConnectingState indicates the transport and protocol handshake are in
	// progress.
	ConnectingState
	// SamplingState indicates the cadence loop is producing samples.
	SamplingState
	// PausedState indicates the worker is alive but samples are discarded.
	PausedState
	// StoppingState indicates a cooperative shutdown is draining in-flight
	// work.
	StoppingState
	// FaultedState is terminal: an unrecoverable protocol error occurred and
	// the sampler must be recreated by the caller.
	FaultedState
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case IdleState:
		return "idle"
	case ConnectingState:
		return "connecting"
	case SamplingState:
		return "sampling"
	case PausedState:
		return "paused"
	case StoppingState:
		return "stopping"
	case FaultedState:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state admits no further transitions except
// an explicit restart.
func (s State) IsTerminal() bool {
	return s == FaultedState
}

// StateChangeHandler is invoked on every state transition.
//
// Handlers run synchronously under the state manager's lock; keep them short.
type StateChangeHandler func(prev State, cur State)

// validTransitions lists the allowed next states per state.
var validTransitions = map[State][]State{
	IdleState:       {ConnectingState},
	ConnectingState: {SamplingState, StoppingState, FaultedState},
	SamplingState:   {PausedState, StoppingState, FaultedState},
	PausedState:     {SamplingState, StoppingState, FaultedState},
	StoppingState:   {IdleState, FaultedState},
	FaultedState:    {},
}

// StateMgr manages sampler state transitions with validation, change
// handlers, and the ability to wait for a target state.
type StateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []StateChangeHandler
}

// NewStateMgr creates a StateMgr in IdleState.
func NewStateMgr(l logger.Logger, handlers ...StateChangeHandler) *StateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &StateMgr{
		logger:   l,
		handlers: append([]StateChangeHandler(nil), handlers...),
	}
	mgr.state.Store(uint32(IdleState))
	mgr.cond = sync.NewCond(&mgr.mu)

	return mgr
}

// State returns the current state.
func (m *StateMgr) State() State {
	return State(m.state.Load())
}

// AddHandler registers additional state change handlers.
func (m *StateMgr) AddHandler(handlers ...StateChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handlers...)
}

// To transitions to the given state.
//
// A transition to the current state is a no-op. Disallowed transitions return
// ErrInvalidTransition.
func (m *StateMgr) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur == next {
		return nil
	}

	allowed := false
	for _, s := range validTransitions[cur] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		m.logger.Debug("invalid state transition", "from", cur, "to", next)
		return ErrInvalidTransition
	}

	m.state.Store(uint32(next))

	for _, handler := range m.handlers {
		handler(cur, next)
	}

	m.cond.Broadcast()

	return nil
}

// WaitState blocks until the given state is reached or ctx is done.
func (m *StateMgr) WaitState(ctx context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		m.cond.Broadcast()
	})
	defer stopFunc()

	for m.State() != state {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			m.cond.Wait()
		}
	}

	return nil
}
