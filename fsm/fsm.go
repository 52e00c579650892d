package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEventRejected is the error returned when the state machine cannot
	// process an event in the state that it is in.
	ErrEventRejected = errors.New("event rejected")

	// ErrInvalidConfig is returned when the state table of a machine is
	// incomplete.
	ErrInvalidConfig = errors.New("invalid state machine config")

	// ErrWaitForStateTimedOut is returned when the awaited state isn't
	// reached in time.
	ErrWaitForStateTimedOut = errors.New(
		"timed out while waiting for state",
	)

	// ErrInvalidContextType is returned when an action is passed an event
	// context of an unexpected type.
	ErrInvalidContextType = errors.New("invalid context")
)

const (
	// Default is the state every machine starts in unless told otherwise.
	Default StateType = ""

	// NoOp ends the processing of an event.
	NoOp EventType = "NoOp"

	// OnError is returned by actions through HandleError.
	OnError EventType = "OnError"
)

// StateType is the name of a state.
type StateType string

// EventType is the name of an event.
type EventType string

// EventContext is passed unchanged to every action executed while processing
// one SendEvent call.
type EventContext interface{}

// Action is executed when its state is entered. The returned event is
// processed next, unless it is NoOp.
type Action func(ctx context.Context, eventCtx EventContext) EventType

// Transitions maps the events a state accepts to the states they lead to.
type Transitions map[EventType]StateType

// State binds an action to the transitions that are valid after it ran.
type State struct {
	Action      Action
	Transitions Transitions
}

// States is the static state table of a machine.
type States map[StateType]State

// Notification describes a single transition.
type Notification struct {
	PreviousState StateType
	NextState     StateType
	Event         EventType

	// LastActionError is the error set by the most recent HandleError
	// call, if any.
	LastActionError error
}

// Observer is notified of every transition before the action of the new
// state runs.
type Observer interface {
	Notify(Notification)
}

// StateMachine processes events against a state table. Only one event is
// processed at a time.
type StateMachine struct {
	// States is the state table of the machine.
	States States

	// ActionEntryFunc, if set, is called before every action.
	ActionEntryFunc func(Notification)

	// LastActionError is an error set by the last action executed.
	LastActionError error

	mutex    sync.Mutex
	previous StateType
	current  StateType

	observers     []Observer
	observerMutex sync.Mutex
}

// NewStateMachine creates a state machine in the Default state.
func NewStateMachine(states States) *StateMachine {
	return &StateMachine{
		States:  states,
		current: Default,
	}
}

// lookup resolves the state an event leads to from the current state without
// changing the machine.
func (s *StateMachine) lookup(event EventType) (StateType, State, error) {
	from, ok := s.States[s.current]
	if !ok {
		return "", State{}, fmt.Errorf("%w: unknown state %q",
			ErrInvalidConfig, s.current)
	}

	next, ok := from.Transitions[event]
	if !ok {
		return "", State{}, fmt.Errorf("%w: %v not valid in %q",
			ErrEventRejected, event, s.current)
	}

	to, ok := s.States[next]
	switch {
	case !ok:
		return "", State{}, fmt.Errorf("%w: unknown target state %q",
			ErrInvalidConfig, next)

	case to.Action == nil:
		return "", State{}, fmt.Errorf("%w: state %q has no action",
			ErrInvalidConfig, next)
	}

	return next, to, nil
}

// SendEvent processes an event and every event returned by the actions it
// triggers until an action returns NoOp. An event that is not valid in the
// current state is rejected with ErrEventRejected and leaves the state
// unchanged.
func (s *StateMachine) SendEvent(ctx context.Context, event EventType,
	eventCtx EventContext) error {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.States == nil {
		return fmt.Errorf("%w: no states", ErrInvalidConfig)
	}

	for event != NoOp {
		next, state, err := s.lookup(event)
		if err != nil {
			log.Debugf("Event %v not processed in state %q: %v",
				event, s.current, err)

			if errors.Is(err, ErrInvalidConfig) {
				return err
			}

			return ErrEventRejected
		}

		s.previous, s.current = s.current, next

		notification := Notification{
			PreviousState:   s.previous,
			NextState:       s.current,
			Event:           event,
			LastActionError: s.LastActionError,
		}
		s.notify(notification)

		if s.ActionEntryFunc != nil {
			s.ActionEntryFunc(notification)
		}

		event = state.Action(ctx, eventCtx)
	}

	return nil
}

func (s *StateMachine) notify(n Notification) {
	s.observerMutex.Lock()
	defer s.observerMutex.Unlock()

	for _, observer := range s.observers {
		observer.Notify(n)
	}
}

// CurrentState returns the state the machine is in.
func (s *StateMachine) CurrentState() StateType {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.current
}

// RegisterObserver registers an observer with the state machine.
func (s *StateMachine) RegisterObserver(observer Observer) {
	if observer == nil {
		return
	}

	s.observerMutex.Lock()
	s.observers = append(s.observers, observer)
	s.observerMutex.Unlock()
}

// HandleError records err as the last action error and returns OnError.
func (s *StateMachine) HandleError(err error) EventType {
	log.Errorf("State machine error in %q: %v", s.current, err)
	s.LastActionError = err

	return OnError
}

// NoOpAction is the action of states that only wait for the next event.
func NoOpAction(_ context.Context, _ EventContext) EventType {
	return NoOp
}

// waitTimeoutError wraps ErrWaitForStateTimedOut with the awaited state.
func waitTimeoutError(expected StateType) error {
	return fmt.Errorf("%w: expected %s", ErrWaitForStateTimedOut, expected)
}
