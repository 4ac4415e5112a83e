package telnet

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// pipeConn returns a Conn reading what the returned client end writes.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewConn(server, 2*time.Second, 2*time.Second), client
}

func feed(t *testing.T, client net.Conn, data []byte) {
	t.Helper()
	go func() { _, _ = client.Write(data) }()
}

func TestReadLine_Terminators(t *testing.T) {
	for name, input := range map[string]string{
		"lf":    "roll\n",
		"crlf":  "roll\r\n",
		"cr":    "roll\r",
		"crnul": "roll\r\x00",
	} {
		t.Run(name, func(t *testing.T) {
			c, client := pipeConn(t)
			feed(t, client, []byte(input+"next\n"))
			line, err := c.ReadLine()
			require.NoError(t, err)
			assert.Equal(t, "roll", line)

			line, err = c.ReadLine()
			require.NoError(t, err)
			assert.Equal(t, "next", line)
		})
	}
}

func TestReadLine_StripsNegotiation(t *testing.T) {
	c, client := pipeConn(t)
	input := []byte{IAC, WILL, OptEcho, 'c', IAC, SB, 24, 0, 'x', IAC, IAC, 'y', IAC, SE, 'r', IAC, NOP, 'e', '\n'}
	feed(t, client, input)
	line, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "cre", line)
}

func TestReadLine_LineEditing(t *testing.T) {
	c, client := pipeConn(t)
	feed(t, client, []byte("rolk\x08l\x7f\x7f\x7fquit\x01\n"))
	line, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "rquit", line)
}

func TestReadLine_TruncatesLongLines(t *testing.T) {
	c, client := pipeConn(t)
	feed(t, client, []byte(strings.Repeat("x", MaxLineBytes+50)+"\n"))
	line, err := c.ReadLine()
	require.NoError(t, err)
	assert.Len(t, line, MaxLineBytes)
}

func TestReadLine_EOF(t *testing.T) {
	c, client := pipeConn(t)
	go func() {
		_, _ = client.Write([]byte("partial"))
		_ = client.Close()
	}()
	line, err := c.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "partial", line)
}

func TestInterrupt_UnblocksReadLine(t *testing.T) {
	c, _ := pipeConn(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadLine()
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Interrupt()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine did not return after Interrupt")
	}
}

func TestWriteLine_UsesCRLF(t *testing.T) {
	c, client := pipeConn(t)
	go func() { _ = c.WriteLine("a\nb") }()

	buf := make([]byte, 16)
	n, err := io.ReadAtLeast(client, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "a\r\nb\r\n", string(buf[:n]))
}

func TestNegotiate(t *testing.T) {
	c, client := pipeConn(t)
	go func() { _ = c.Negotiate() }()

	buf := make([]byte, 3)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{IAC, WILL, OptSuppressGoAhead}, buf)
}

// Property: printable input lines come back unchanged.
func TestPropertyReadLinePrintable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[ -~]{0,80}`).Draw(rt, "text")
		c, client := pipeConn(t)
		feed(t, client, []byte(text+"\r\n"))
		line, err := c.ReadLine()
		if err != nil {
			rt.Fatalf("ReadLine: %v", err)
		}
		if line != text {
			rt.Fatalf("ReadLine = %q, want %q", line, text)
		}
	})
}

// Property: IAC option negotiations never leak into the line.
func TestPropertyNegotiationInvisible(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-z]{1,20}`).Draw(rt, "text")
		at := rapid.IntRange(0, len(text)).Draw(rt, "at")
		verb := rapid.SampledFrom([]byte{WILL, WONT, DO, DONT}).Draw(rt, "verb")
		opt := rapid.Byte().Draw(rt, "option")

		input := append([]byte(text[:at]), IAC, verb, opt)
		input = append(input, text[at:]...)
		input = append(input, '\n')

		c, client := pipeConn(t)
		feed(t, client, input)
		line, err := c.ReadLine()
		if err != nil {
			rt.Fatalf("ReadLine: %v", err)
		}
		if line != text {
			rt.Fatalf("ReadLine = %q, want %q", line, text)
		}
	})
}
