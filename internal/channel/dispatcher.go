package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// ErrHandshake is returned when a connection does not open with a valid identify event.
var ErrHandshake = errors.New("handshake failed")

// Dispatcher is the router surface a transport drives for one connection:
// register after the handshake, dispatch every later event, disconnect on close.
type Dispatcher interface {
	RegisterParticipant(ctx context.Context, p session.Participant, ch Channel) error
	Dispatch(ctx context.Context, participantID string, ev Event) error
	DisconnectChannel(ctx context.Context, participantID, channelID string) error
}

// ParseIdentify extracts the participant from the first event of a connection.
//
// Postcondition: Returns a participant with a non-empty id, or an error wrapping ErrHandshake.
func ParseIdentify(ev Event) (session.Participant, error) {
	if ev.Name != EventIdentify {
		return session.Participant{}, fmt.Errorf("%w: expected %q, got %q", ErrHandshake, EventIdentify, ev.Name)
	}
	var id Identify
	if err := Decode(ev.Payload, &id); err != nil {
		return session.Participant{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	p := session.Participant{ID: strings.TrimSpace(id.ID), DisplayName: strings.TrimSpace(id.DisplayName)}
	if p.ID == "" {
		return session.Participant{}, fmt.Errorf("%w: participant id must not be empty", ErrHandshake)
	}
	return p, nil
}
