// Package statemachine provides a small generic finite state machine.
//
// States and events are any comparable types, typically string-based enums.
// Transitions are declared up front with functional options; guards choose
// between several transitions sharing a state/event pair and actions run
// before the state changes:
//
//	m := statemachine.MustNew[State, Trigger](Idle,
//	    statemachine.WithTransition(Idle, Running, Start),
//	    statemachine.WithTransition(Running, Failed, Crash,
//	        statemachine.WithGuard(func(_ context.Context, _ State, _ Trigger, data any) bool {
//	            return data.(int) > 3
//	        }),
//	    ),
//	    statemachine.WithTransition(Running, Idle, Crash),
//	)
//
// Fire returns *ErrNoTransitionAvailable when nothing is defined for the pair
// and *ErrTransitionRejected when guards veto every candidate.
// All methods are safe for concurrent use.
package statemachine
