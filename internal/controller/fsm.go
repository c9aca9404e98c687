package controller

// This file implements the per-peer session state machine driven by the
// connection supervisor. The FSM is a pure function over a transition
// table -- no side effects, no Peer dependency -- so the retry and abort
// behavior can be tested without sockets.
//
// State diagram:
//
//	Disconnected ──ConnectPeer──▶ Connecting
//	Connecting ──dial ok──▶ Connected
//	Connecting ──dial fail, attempts < max──▶ Connecting (retry after gap)
//	Connecting ──dial fail, attempts ≥ max──▶ Aborted
//	Connected ──DisconnectPeer──▶ Disconnecting
//	Disconnecting ──socket closed──▶ Disconnected
//	Connected ──socket error──▶ Connecting
//	Aborted ──ConnectPeer──▶ Connecting
//
// Aborted is terminal until the façade explicitly re-arms the peer with
// another ConnectPeer call.

// SessionStatus is the lifecycle state of one peer's websocket session.
type SessionStatus uint8

const (
	// StatusDisconnected is the initial state: no socket, no retry timer.
	StatusDisconnected SessionStatus = iota

	// StatusConnecting means the supervisor is attempting to dial the peer,
	// possibly waiting out the retry gap between attempts.
	StatusConnecting

	// StatusConnected means the peer holds an open socket and participates
	// in per-tick exchanges.
	StatusConnected

	// StatusDisconnecting means a disconnect was requested and the socket
	// close is pending.
	StatusDisconnecting

	// StatusAborted means the attempt counter reached the configured
	// maximum. The peer stays aborted until re-armed via ConnectPeer.
	StatusAborted
)

// String returns the lower-case wire/report name of the status.
func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SessionEvent is an input to the session FSM.
type SessionEvent uint8

const (
	// EventConnectRequested is the façade arming (or re-arming) the peer.
	EventConnectRequested SessionEvent = iota

	// EventDisconnectRequested is the façade asking for a graceful close.
	EventDisconnectRequested

	// EventDialSucceeded is a successful websocket handshake.
	EventDialSucceeded

	// EventDialFailedRetry is a failed dial attempt under the attempt limit.
	EventDialFailedRetry

	// EventDialFailedFinal is a failed dial attempt at or over the limit.
	EventDialFailedFinal

	// EventSocketError is an exchange failure while connected.
	EventSocketError

	// EventCloseCompleted is the socket close finishing a disconnect.
	EventCloseCompleted
)

// String returns the human-readable name of the event.
func (e SessionEvent) String() string {
	switch e {
	case EventConnectRequested:
		return "ConnectRequested"
	case EventDisconnectRequested:
		return "DisconnectRequested"
	case EventDialSucceeded:
		return "DialSucceeded"
	case EventDialFailedRetry:
		return "DialFailedRetry"
	case EventDialFailedFinal:
		return "DialFailedFinal"
	case EventSocketError:
		return "SocketError"
	case EventCloseCompleted:
		return "CloseCompleted"
	default:
		return "Unknown"
	}
}

// SessionAction is a side effect the supervisor must execute after a
// transition.
type SessionAction uint8

const (
	// ActionResetAttempts zeroes the attempt counter and clears the
	// next-attempt timestamp so the next dial is immediately eligible.
	ActionResetAttempts SessionAction = iota + 1

	// ActionScheduleRetry sets the next-attempt timestamp to now plus the
	// configured gap.
	ActionScheduleRetry

	// ActionDiscardSocket closes and forgets the peer's socket handle.
	ActionDiscardSocket
)

// String returns the human-readable name of the action.
func (a SessionAction) String() string {
	switch a {
	case ActionResetAttempts:
		return "ResetAttempts"
	case ActionScheduleRetry:
		return "ScheduleRetry"
	case ActionDiscardSocket:
		return "DiscardSocket"
	default:
		return "Unknown"
	}
}

// statusEvent is the FSM transition table key.
type statusEvent struct {
	status SessionStatus
	event  SessionEvent
}

// sessionTransition describes the target status and side effects for one
// table entry.
type sessionTransition struct {
	newStatus SessionStatus
	actions   []SessionAction
}

// SessionResult holds the outcome of applying an event.
type SessionResult struct {
	// OldStatus is the status before the event was applied.
	OldStatus SessionStatus

	// NewStatus is the status after the event was applied. Equal to
	// OldStatus when the event is ignored in the current status.
	NewStatus SessionStatus

	// Actions lists the side effects the supervisor must execute.
	Actions []SessionAction

	// Changed is true when NewStatus differs from OldStatus.
	Changed bool
}

// sessionTable is the complete session FSM transition table. Unlisted
// (status, event) pairs are ignored: for example a DisconnectRequested on an
// already-disconnected peer is a no-op rather than an error.
//
//nolint:gochecknoglobals // FSM transition table is intentionally package-level.
var sessionTable = map[statusEvent]sessionTransition{
	// Disconnected: only ConnectPeer leaves this state.
	{StatusDisconnected, EventConnectRequested}: {
		newStatus: StatusConnecting,
		actions:   []SessionAction{ActionResetAttempts},
	},

	// Aborted: terminal until the façade re-arms the peer.
	{StatusAborted, EventConnectRequested}: {
		newStatus: StatusConnecting,
		actions:   []SessionAction{ActionResetAttempts},
	},

	// Connecting.
	{StatusConnecting, EventDialSucceeded}: {
		newStatus: StatusConnected,
		actions:   []SessionAction{ActionResetAttempts},
	},
	{StatusConnecting, EventDialFailedRetry}: {
		newStatus: StatusConnecting,
		actions:   []SessionAction{ActionScheduleRetry},
	},
	{StatusConnecting, EventDialFailedFinal}: {
		newStatus: StatusAborted,
		actions:   []SessionAction{ActionDiscardSocket},
	},
	{StatusConnecting, EventConnectRequested}: {
		newStatus: StatusConnecting,
		actions:   []SessionAction{ActionResetAttempts},
	},
	{StatusConnecting, EventDisconnectRequested}: {
		newStatus: StatusDisconnecting,
		actions:   []SessionAction{ActionResetAttempts},
	},

	// Connected.
	{StatusConnected, EventDisconnectRequested}: {
		newStatus: StatusDisconnecting,
		actions:   []SessionAction{ActionResetAttempts},
	},
	{StatusConnected, EventSocketError}: {
		newStatus: StatusConnecting,
		actions:   []SessionAction{ActionResetAttempts, ActionDiscardSocket},
	},

	// Disconnecting.
	{StatusDisconnecting, EventCloseCompleted}: {
		newStatus: StatusDisconnected,
		actions:   []SessionAction{ActionDiscardSocket},
	},
}

// ApplySessionEvent applies an event to the given status and returns the
// result. Pure function; the supervisor executes the returned actions. An
// unlisted (status, event) pair is silently ignored.
func ApplySessionEvent(current SessionStatus, event SessionEvent) SessionResult {
	tr, ok := sessionTable[statusEvent{status: current, event: event}]
	if !ok {
		return SessionResult{
			OldStatus: current,
			NewStatus: current,
			Actions:   nil,
			Changed:   false,
		}
	}
	return SessionResult{
		OldStatus: current,
		NewStatus: tr.newStatus,
		Actions:   tr.actions,
		Changed:   current != tr.newStatus,
	}
}
