package telnet

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/gamerunner/internal/config"
	"github.com/cory-johannsen/gamerunner/internal/testutil"
)

// echoHandler echoes lines until "quit".
type echoHandler struct {
	sessions atomic.Int32
}

func (h *echoHandler) HandleSession(_ context.Context, conn *Conn) error {
	h.sessions.Add(1)
	_ = conn.WritePrompt("> ")
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if line == "quit" {
			return conn.WriteLine(Colorize(Cyan, "bye"))
		}
		_ = conn.WriteLine("echo: " + line)
	}
}

func startAcceptor(t *testing.T, handler SessionHandler) (*Acceptor, <-chan error) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	acc := NewAcceptor(config.TelnetConfig{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}, handler, zaptest.NewLogger(t))
	errCh := make(chan error, 1)
	go func() { errCh <- acc.Serve(lis) }()
	require.Eventually(t, func() bool { return acc.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	return acc, errCh
}

func TestAcceptor_ServesAndStops(t *testing.T) {
	handler := &echoHandler{}
	acc, errCh := startAcceptor(t, handler)

	client := testutil.NewTelnetClient(t, acc.Addr())
	client.Expect("> ", 2*time.Second)
	client.Send("hello")
	client.Expect("echo: hello", 2*time.Second)
	client.Send("quit")
	client.Expect("bye", 2*time.Second)

	acc.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}
	assert.Equal(t, int32(1), handler.sessions.Load())
	assert.Zero(t, acc.Active())
}

func TestAcceptor_StopInterruptsIdleClients(t *testing.T) {
	handler := &echoHandler{}
	acc, errCh := startAcceptor(t, handler)

	const clients = 3
	for i := 0; i < clients; i++ {
		testutil.NewTelnetClient(t, acc.Addr()).Expect("> ", 2*time.Second)
	}
	require.Eventually(t, func() bool { return acc.Active() == clients }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		acc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on idle clients")
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, int32(clients), handler.sessions.Load())
	assert.Zero(t, acc.Active())

	acc.Stop()
}

func TestAcceptor_ServeAfterStop(t *testing.T) {
	acc := NewAcceptor(config.TelnetConfig{}, &echoHandler{}, zaptest.NewLogger(t))
	acc.Stop()
	assert.Empty(t, acc.Addr())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, acc.Serve(lis))
}
