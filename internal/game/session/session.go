// Package session defines the contract every game must satisfy to be driven by
// the session router: lifecycle hooks, turn input handling, and the optional
// connection and tick capabilities.
package session

import (
	"time"

	"go.uber.org/zap"
)

// Info identifies a session and its fixed membership.
type Info struct {
	// ID is the router-assigned, never reused session id.
	ID int64
	// Type is the game type the session was created from.
	Type string
	// OwnerID is the participant who requested creation.
	OwnerID string
	// MemberIDs is the ordered member list.
	MemberIDs []string
}

// IsMember reports whether id is one of the session members.
func (i Info) IsMember(id string) bool {
	for _, m := range i.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Host is the router-side handle a session uses to affect the outside world.
// It is bound to a single session id. Host methods must only be called from
// within a hook invocation (Initialize, HandleInput, MemberConnected,
// MemberDisconnected, Tick); the router runs all of them on one goroutine.
type Host interface {
	// Broadcast sends a state-update to every connected member.
	Broadcast(payload any)
	// RequestInput prompts a single participant, if connected.
	RequestInput(participantID string, payload any)
	// Complete ends the session and notifies connected members.
	Complete(payload any)
	// ScheduleTick arms a single Tick after the given delay, replacing any pending one.
	ScheduleTick(after time.Duration)
	// Participant returns the known participant for id. Unknown ids yield a
	// Participant carrying only the id.
	Participant(id string) Participant
	// IsConnected reports whether id currently has a live channel.
	IsConnected(id string) bool
	// Logger returns a logger annotated with the session id and type.
	Logger() *zap.Logger
}

// Session is the required part of the contract.
type Session interface {
	// Initialize is called exactly once, before any input is routed.
	// It must not block. A non-nil error aborts session creation.
	Initialize(host Host, info Info) error
	// State returns a serializable snapshot for (re)joining members. It must
	// not have side effects.
	State() any
	// HandleInput processes input from a member. A non-nil error rejects the
	// input and is reported to the sender; it must leave the state unchanged.
	HandleInput(p Participant, payload any) error
}

// ConnectionObserver is implemented by sessions that react to member
// connectivity, typically to re-prompt the active player.
type ConnectionObserver interface {
	MemberConnected(p Participant)
	MemberDisconnected(p Participant)
}

// Ticker is implemented by sessions with time-based progression. Tick is
// invoked when a tick scheduled through Host.ScheduleTick fires. Returning
// again == true schedules exactly one more Tick after next.
type Ticker interface {
	Tick() (next time.Duration, again bool)
}

// Factory builds a fresh, uninitialized Session.
type Factory func() Session
