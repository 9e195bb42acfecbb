package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
)

// State is the capture controller lifecycle state
type State string

const (
	Unconfigured State = "unconfigured"
	Configuring  State = "configuring"
	Ready        State = "ready"
	Recording    State = "recording"
	Finishing    State = "finishing"
)

// CanTransition enforces the allowed transition graph
func CanTransition(from, to State) bool {
	switch from {
	case Unconfigured:
		return to == Configuring
	case Configuring:
		return to == Ready || to == Unconfigured
	case Ready:
		// Ready -> Ready covers camera flip and flash changes
		return to == Ready || to == Recording || to == Configuring
	case Recording:
		return to == Finishing || to == Configuring
	case Finishing:
		return to == Ready || to == Configuring
	}
	return false
}

// Transition is one recorded state change
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// StateMachine tracks the controller state. Safe for concurrent use: the
// finalize completion runs off the main queue.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	last    Transition
	entered time.Time
	logger  *diaglog.Logger
}

// NewStateMachine starts in Unconfigured
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: Unconfigured,
		entered: time.Now(),
	}
}

// SetLogger injects the diagnostic logger
func (sm *StateMachine) SetLogger(l *diaglog.Logger) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.logger = l
}

// Transition moves to `to` or returns an error if the edge is not allowed
func (sm *StateMachine) Transition(to State, reason string) error {
	sm.mu.Lock()
	from := sm.current
	if !CanTransition(from, to) {
		sm.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s (%s)", from, to, reason)
	}
	now := time.Now()
	sm.current = to
	sm.entered = now
	sm.last = Transition{From: from, To: to, Reason: reason, At: now}
	logger := sm.logger
	sm.mu.Unlock()

	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentState,
		Event:     diaglog.EventStateTransition,
		Reason:    reason,
		Payload: map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		},
	})
	return nil
}

// Current returns the current state
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Is reports whether the current state is one of states
func (sm *StateMachine) Is(states ...State) bool {
	cur := sm.Current()
	for _, s := range states {
		if s == cur {
			return true
		}
	}
	return false
}

// Configured reports whether configuration has completed at least once and
// not been torn down
func (sm *StateMachine) Configured() bool {
	return sm.Is(Ready, Recording, Finishing)
}

// IsRecording reports whether samples are being written
func (sm *StateMachine) IsRecording() bool {
	return sm.Is(Recording)
}

// LastTransition returns the most recent transition (zero before any)
func (sm *StateMachine) LastTransition() Transition {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.last
}

// TimeInState returns how long the machine has been in the current state
func (sm *StateMachine) TimeInState() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.entered)
}
