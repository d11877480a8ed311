package output

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is a stage of the output directory lifecycle.
type State string

const (
	StateUninitialized  State = "UNINITIALIZED"
	StateDirsCreated    State = "DIRS_CREATED"
	StatePopulated      State = "POPULATED"
	StateTransferred    State = "TRANSFERRED"
	StateTransferFailed State = "TRANSFER_FAILED"
	StateCleaned        State = "CLEANED"
	StateCleanSkipped   State = "CLEAN_SKIPPED"
	StateDone           State = "DONE"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid output state transition")

// validTransitions defines which state transitions are allowed.
// Transfer and cleanup are both optional, so POPULATED may skip ahead.
var validTransitions = map[State][]State{
	StateUninitialized:  {StateDirsCreated},
	StateDirsCreated:    {StatePopulated},
	StatePopulated:      {StateTransferred, StateTransferFailed, StateCleaned, StateCleanSkipped, StateDone},
	StateTransferred:    {StateCleaned, StateCleanSkipped, StateDone},
	StateTransferFailed: {},
	StateCleaned:        {StateDone},
	StateCleanSkipped:   {StateDone},
	StateDone:           {},
}

func canTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Lifecycle tracks the state of one source's output directory.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	history []State
}

// NewLifecycle returns a lifecycle in StateUninitialized.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateUninitialized, history: []State{StateUninitialized}}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns every state visited, oldest first.
func (l *Lifecycle) History() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.history)
}

// TransitionTo moves to next or returns ErrInvalidTransition.
func (l *Lifecycle) TransitionTo(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !canTransition(l.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, next)
	}
	l.state = next
	l.history = append(l.history, next)
	return nil
}

// IsTerminal reports whether no further transition is possible.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(validTransitions[l.state]) == 0
}
