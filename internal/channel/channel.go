// Package channel defines the duplex connection boundary between remote
// participants and the session router, along with the wire event names
// shared by every transport.
package channel

import (
	"encoding/json"
	"fmt"
)

// Inbound event names, sent by participants.
const (
	EventIdentify      = "identify"
	EventCreateSession = "create-session"
	EventPlayerInput   = "player-input"
	EventDisconnect    = "disconnect"
)

// Outbound event names, produced by the router and transports.
const (
	EventNeedParticipant = "need-participant"
	EventNotInSession    = "not-in-session"
	EventJoinedSession   = "joined-session"
	EventStateUpdate     = "state-update"
	EventInputRequested  = "input-requested"
	EventSessionOver     = "session-over"
	EventSessionError    = "session-error"
)

// Event is a single named message with an opaque payload.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Channel is the live connection of one participant.
//
// Send must never block: implementations either enqueue the event or fail fast.
type Channel interface {
	// ID uniquely identifies this connection instance.
	ID() string
	// Send enqueues ev for delivery.
	Send(ev Event) error
}

// JoinedSession is the payload of EventJoinedSession.
type JoinedSession struct {
	SessionID int64  `json:"sessionId"`
	Type      string `json:"type"`
	State     any    `json:"state"`
}

// SessionError is the payload of EventSessionError.
type SessionError struct {
	Message string `json:"message"`
}

// CreateSession is the payload of EventCreateSession.
type CreateSession struct {
	Type      string   `json:"type"`
	MemberIDs []string `json:"memberIds"`
}

// Identify is the payload of EventIdentify.
type Identify struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Normalize converts payload into plain JSON values (map[string]any, []any,
// string, float64, bool, nil) so it can cross untyped encoders.
//
// Postcondition: Returns a value that round-trips through encoding/json unchanged.
func Normalize(payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return out, nil
}

// Decode converts a normalized payload into the typed value v points to.
func Decode(payload any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
