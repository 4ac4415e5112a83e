package channel

import (
	"errors"
	"sync"
)

// ErrOutboxClosed is returned when pushing to a closed Outbox.
var ErrOutboxClosed = errors.New("outbox closed")

// ErrOutboxFull is returned when an Outbox has no room for another event.
var ErrOutboxFull = errors.New("outbox full")

// DefaultOutboxSize is used when NewOutbox is given a non-positive size.
const DefaultOutboxSize = 64

// Outbox is a Channel backed by a bounded Go channel. The router pushes events
// without blocking; a transport goroutine drains Events onto the wire.
type Outbox struct {
	id     string
	events chan Event
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the connection id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an open Outbox with capacity size (DefaultOutboxSize when size <= 0).
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		id:     id,
		events: make(chan Event, size),
	}
}

// ID returns the connection id.
func (o *Outbox) ID() string {
	return o.id
}

// Send enqueues ev.
//
// Postcondition: ev is buffered, or ErrOutboxClosed / ErrOutboxFull is returned.
func (o *Outbox) Send(ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.events <- ev:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Events returns the receive side drained by the transport writer.
func (o *Outbox) Events() <-chan Event {
	return o.events
}

// Close closes the event stream. Safe to call multiple times.
//
// Postcondition: Events is closed once buffered events are consumed; Send fails.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
