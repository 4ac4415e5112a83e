package gameserver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// Client is a connection to a Runner service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. Transport security defaults to insecure and
// calls are traced through the global tracer provider; opts are applied after
// the defaults and may override them.
//
// Postcondition: Returns a Client whose connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing game server at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Connect opens a stream and completes the identify handshake for p.
//
// Precondition: p.ID must be non-empty.
// Postcondition: Returns a Stream whose next events come from the router, or an error.
func (c *Client) Connect(ctx context.Context, p session.Participant) (*Stream, error) {
	s, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}

	first, err := s.Recv()
	if err != nil {
		return nil, fmt.Errorf("awaiting handshake prompt: %w", err)
	}
	if first.Name != channel.EventNeedParticipant {
		return nil, fmt.Errorf("%w: expected %q, got %q", channel.ErrHandshake, channel.EventNeedParticipant, first.Name)
	}
	if err := s.Send(channel.Event{
		Name:    channel.EventIdentify,
		Payload: channel.Identify{ID: p.ID, DisplayName: p.DisplayName},
	}); err != nil {
		return nil, fmt.Errorf("sending identify: %w", err)
	}
	return s, nil
}

// Open starts a raw Connect stream without performing the handshake.
func (c *Client) Open(ctx context.Context) (*Stream, error) {
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], ConnectMethod)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	return &Stream{cs: cs}, nil
}

// Stream is one participant connection. Send and Recv may be used from
// different goroutines, but neither from more than one at a time.
type Stream struct {
	cs grpc.ClientStream
}

// Send writes one event.
func (s *Stream) Send(ev channel.Event) error {
	return sendEvent(s.cs, ev)
}

// Recv blocks for the next event. It returns io.EOF when the server ends the stream.
func (s *Stream) Recv() (channel.Event, error) {
	return recvEvent(s.cs)
}

// CloseSend tells the server no more events follow; the server then disconnects the channel.
func (s *Stream) CloseSend() error {
	return s.cs.CloseSend()
}
