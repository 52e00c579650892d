package fsm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errAction = errors.New("action error")
)

// TestStateMachineContext is a test context for the state machine.
type TestStateMachineContext struct {
	*StateMachine

	visited []StateType
}

// GetStates returns the states for the test state machine.
// The StateMap looks like this:
// Default -> Event1 -> State2 -> Event2 -> State3.
func (c *TestStateMachineContext) GetStates() States {
	return States{
		Default: State{
			Action: NoOpAction,
			Transitions: Transitions{
				"Event1": "State2",
			},
		},
		"State2": State{
			Action: func(_ context.Context, _ EventContext) EventType {
				c.visited = append(c.visited, "State2")
				return "Event2"
			},
			Transitions: Transitions{
				"Event2": "State3",
			},
		},
		"State3": State{
			Action: func(_ context.Context, _ EventContext) EventType {
				c.visited = append(c.visited, "State3")
				return NoOp
			},
			Transitions: Transitions{},
		},
	}
}

// errorAction returns an error.
func (c *TestStateMachineContext) errorAction(_ context.Context,
	_ EventContext) EventType {

	return c.StateMachine.HandleError(errAction)
}

func setupTestStateMachineContext() *TestStateMachineContext {
	ctx := &TestStateMachineContext{}
	ctx.StateMachine = NewStateMachine(ctx.GetStates())

	return ctx
}

// TestStateMachineSuccess tests that events returned by actions are chained
// until an action returns NoOp.
func TestStateMachineSuccess(t *testing.T) {
	ctx := setupTestStateMachineContext()

	err := ctx.SendEvent(context.Background(), "Event1", nil)
	require.NoError(t, err)

	require.Equal(t, StateType("State3"), ctx.CurrentState())
	require.Equal(t, []StateType{"State2", "State3"}, ctx.visited)
}

// TestStateMachineRejectsUnknownEvent asserts that an event that has no
// transition in the current state is rejected without changing state.
func TestStateMachineRejectsUnknownEvent(t *testing.T) {
	ctx := setupTestStateMachineContext()

	err := ctx.SendEvent(context.Background(), "Event2", nil)
	require.ErrorIs(t, err, ErrEventRejected)
	require.Equal(t, Default, ctx.CurrentState())
	require.Empty(t, ctx.visited)
}

// TestStateMachineConfigurationError tests the state machine with a
// configuration error.
func TestStateMachineConfigurationError(t *testing.T) {
	ctx := setupTestStateMachineContext()
	ctx.StateMachine.States = nil

	err := ctx.SendEvent(context.Background(), "Event1", nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	// A transition into a state without an action is a config error
	// too, and doesn't move the machine.
	ctx = setupTestStateMachineContext()
	ctx.States["State2"] = State{}

	err = ctx.SendEvent(context.Background(), "Event1", nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, Default, ctx.CurrentState())
}

// TestStateMachineActionError tests the state machine with an action error.
func TestStateMachineActionError(t *testing.T) {
	ctx := setupTestStateMachineContext()

	observer := NewCachedObserver(10)
	ctx.RegisterObserver(observer)

	// The new StateMap looks like this:
	// 	Default -> Event1 -> State2
	//
	// 	State2 -> OnError -> ErrorState
	ctx.States["State2"] = State{
		Action: ctx.errorAction,
		Transitions: Transitions{
			OnError: "ErrorState",
		},
	}
	ctx.States["ErrorState"] = State{
		Action:      NoOpAction,
		Transitions: Transitions{},
	}

	err := ctx.SendEvent(context.Background(), "Event1", nil)

	// Sending an event to the state machine should not return an error.
	require.NoError(t, err)

	// Ensure that the last error is set.
	require.Equal(t, errAction, ctx.StateMachine.LastActionError)

	// Expect the state machine to have transitioned to the ErrorState.
	require.Equal(t, StateType("ErrorState"), ctx.CurrentState())

	notifications := observer.GetCachedNotifications()
	require.Len(t, notifications, 2)
	require.Equal(t, OnError, notifications[1].Event)
	require.Equal(t, errAction, notifications[1].LastActionError)
}

// TestCachedObserverWaitForState asserts that waiting returns once the state
// is reached and times out otherwise.
func TestCachedObserverWaitForState(t *testing.T) {
	ctx := setupTestStateMachineContext()

	observer := NewCachedObserver(10)
	ctx.RegisterObserver(observer)

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- observer.WaitForState(
			context.Background(), time.Second*5, "State3",
		)
	}()

	require.NoError(t, ctx.SendEvent(context.Background(), "Event1", nil))
	require.NoError(t, <-waitErr)

	err := observer.WaitForState(
		context.Background(), time.Millisecond*50, Default,
	)
	require.ErrorIs(t, err, ErrWaitForStateTimedOut)
}

func TestFixedSizeSlice(t *testing.T) {
	slice := NewFixedSizeSlice[int](2)
	slice.Add(1)
	slice.Add(2)
	slice.Add(3)

	require.Equal(t, []int{2, 3}, slice.Get())
}
