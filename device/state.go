package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openfab/fabdrive/logger"
)

// State represents a stage of the device lifecycle.
type State uint32

// Device lifecycle states.
const (
	// StateUninitialized is the initial state; the device has never been discovered.
	StateUninitialized State = iota
	// StateDiscovering indicates that discovery is building the queue and executor.
	StateDiscovering
	// StateReady indicates that the device accepts commands; the queue and
	// executor exist exactly while the device is in this state.
	StateReady
	// StateFailed indicates that discovery failed; terminal until an explicit retry.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsReady returns true if the state is StateReady.
func (s State) IsReady() bool { return s == StateReady }

// Event is a lifecycle event fed to the state machine.
type Event uint32

// Device lifecycle events.
const (
	// EventDiscover starts discovery; legal from uninitialized and failed.
	EventDiscover Event = iota
	// EventInitializationDone completes discovery; legal from discovering.
	EventInitializationDone
	// EventInitializationFail aborts discovery; legal from discovering.
	EventInitializationFail
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventDiscover:
		return "discover"
	case EventInitializationDone:
		return "initializationDone"
	case EventInitializationFail:
		return "initializationFail"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from  State
	event Event
}

// transitions is the full legal transition table. Any (state, event) pair not
// present here fails closed with ErrInvalidTransition.
var transitions = map[transitionKey]State{
	{StateUninitialized, EventDiscover}:          StateDiscovering,
	{StateFailed, EventDiscover}:                 StateDiscovering,
	{StateDiscovering, EventInitializationDone}:  StateReady,
	{StateDiscovering, EventInitializationFail}:  StateFailed,
}

// TransitionHandler is invoked after every state entry, including Reset.
//
// Handlers are notification hooks: they run after the new state is stored, and a
// panicking handler is recovered and logged so it can neither roll back nor block
// the transition.
type TransitionHandler func(prev State, next State)

// Machine is the device lifecycle state machine.
//
// It is safe for concurrent use. State reads are lock-free; transitions are
// serialized.
type Machine struct {
	mu       sync.Mutex
	state    atomic.Uint32
	handlers []TransitionHandler
	logger   logger.Logger
}

// NewMachine creates a Machine in StateUninitialized.
func NewMachine(l logger.Logger, handlers ...TransitionHandler) *Machine {
	if l == nil {
		l = logger.GetLogger()
	}

	m := &Machine{logger: l}
	m.handlers = append(m.handlers, handlers...)
	m.state.Store(uint32(StateUninitialized))

	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// AddHandler registers additional transition handlers.
func (m *Machine) AddHandler(handlers ...TransitionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handlers...)
}

// Fire applies a lifecycle event.
//
// If the event is not legal from the current state, the machine logs the attempt
// and returns ErrInvalidTransition without invoking any handler.
func (m *Machine) Fire(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	next, ok := transitions[transitionKey{cur, event}]
	if !ok {
		m.logger.Error("invalid lifecycle transition", "state", cur.String(), "event", event.String())

		return fmt.Errorf("%w: event %s in state %s", ErrInvalidTransition, event, cur)
	}

	// Store the new state before notifying so handlers observe the entered state.
	m.state.Store(uint32(next))
	m.invokeHandlers(cur, next)

	return nil
}

// Reset forces the machine back to StateUninitialized from any state.
//
// This is the explicit re-discovery path: it is not part of the event table and
// never fails. Handlers are notified like any other state entry.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur == StateUninitialized {
		return
	}

	m.state.Store(uint32(StateUninitialized))
	m.invokeHandlers(cur, StateUninitialized)
}

// invokeHandlers notifies all registered handlers of a state entry.
// A handler panic is recovered and logged; notification is fire-and-forget.
func (m *Machine) invokeHandlers(prev State, next State) {
	for _, handler := range m.handlers {
		if handler == nil {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("lifecycle transition handler panicked",
						"prev", prev.String(), "next", next.String(), "panic", r)
				}
			}()

			handler(prev, next)
		}()
	}
}
