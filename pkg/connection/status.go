package connection

import (
	"context"
	"time"

	"github.com/blicence/notifysync/pkg/statemachine"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Status is a snapshot of the connection. Values handed out by the Manager
// are copies.
type Status struct {
	Connected         bool       `json:"connected"`
	ReconnectAttempts uint       `json:"reconnectAttempts"`
	LastConnectedAt   *time.Time `json:"lastConnected,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
	State             State      `json:"state"`
}

func (s Status) clone() Status {
	if s.LastConnectedAt != nil {
		t := *s.LastConnectedAt
		s.LastConnectedAt = &t
	}
	return s
}

type trigger string

const (
	triggerDial       trigger = "dial"
	triggerOpened     trigger = "opened"
	triggerDropped    trigger = "dropped"
	triggerDisconnect trigger = "disconnect"
)

// newLifecycle declares the connection state table. A drop moves to
// reconnecting while the attempt count passed as data is within max, and to
// disconnected otherwise.
func newLifecycle(maxAttempts uint, observe func(from, to State, t trigger)) *statemachine.Machine[State, trigger] {
	withinBudget := func(_ context.Context, _ State, _ trigger, data any) bool {
		attempts, _ := data.(uint)
		return attempts <= maxAttempts
	}
	live := []State{StateConnecting, StateConnected}

	return statemachine.MustNew[State, trigger](StateDisconnected,
		statemachine.WithTransitionFrom([]State{StateDisconnected, StateReconnecting}, StateConnecting, triggerDial),
		statemachine.WithTransition(StateConnecting, StateConnected, triggerOpened),
		statemachine.WithTransitionFrom(live, StateReconnecting, triggerDropped,
			statemachine.WithGuard(withinBudget),
		),
		statemachine.WithTransitionFrom(live, StateDisconnected, triggerDropped),
		statemachine.WithTransitionFrom(
			[]State{StateDisconnected, StateConnecting, StateConnected, StateReconnecting},
			StateDisconnected, triggerDisconnect,
		),
		statemachine.WithObserver(observe),
	)
}
