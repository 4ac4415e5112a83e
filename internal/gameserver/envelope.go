package gameserver

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/gamerunner/internal/channel"
)

const (
	fieldEvent   = "event"
	fieldPayload = "payload"
)

// ToStruct encodes ev as a {event, payload} Struct envelope.
//
// Postcondition: Returns a Struct whose payload holds the JSON-normalized ev.Payload.
func ToStruct(ev channel.Event) (*structpb.Struct, error) {
	payload, err := channel.Normalize(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", ev.Name, err)
	}
	msg, err := structpb.NewStruct(map[string]any{
		fieldEvent:   ev.Name,
		fieldPayload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("event %q: building envelope: %w", ev.Name, err)
	}
	return msg, nil
}

// FromStruct decodes a {event, payload} Struct envelope.
//
// Postcondition: Returns an event with a non-empty name, or an error.
func FromStruct(msg *structpb.Struct) (channel.Event, error) {
	if msg == nil {
		return channel.Event{}, fmt.Errorf("empty envelope")
	}
	m := msg.AsMap()
	name, _ := m[fieldEvent].(string)
	if name == "" {
		return channel.Event{}, fmt.Errorf("envelope has no event name")
	}
	return channel.Event{Name: name, Payload: m[fieldPayload]}, nil
}
