package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownGameType is returned when session creation names an unregistered type.
	ErrUnknownGameType = errors.New("unknown game type")
	// ErrNoActiveSession marks input dropped because the participant has no session.
	// It is logged, never surfaced to the participant.
	ErrNoActiveSession = errors.New("no active session")
	// ErrChannelUnavailable marks a send skipped because the participant has no live channel.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrInvalidRequest is returned for malformed participants, channels, or requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownEvent is returned by Dispatch for event names it does not route.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrRouterStopped is returned once Run has exited.
	ErrRouterStopped = errors.New("router stopped")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("router already running")
	// ErrSessionFault is wrapped by every SessionFault.
	ErrSessionFault = errors.New("session fault")
)

// SessionFault is a panic recovered from a session hook.
type SessionFault struct {
	SessionID int64
	Hook      string
	Cause     error
}

func (f *SessionFault) Error() string {
	return fmt.Sprintf("session %d: %s: %v", f.SessionID, f.Hook, f.Cause)
}

// Unwrap exposes both ErrSessionFault and the cause to errors.Is.
func (f *SessionFault) Unwrap() []error {
	return []error{ErrSessionFault, f.Cause}
}
