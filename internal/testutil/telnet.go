package testutil

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"
)

var ansiSequence = regexp.MustCompile("\x1b\\[[0-9;?]*[@-~]")

// TelnetClient is a line-oriented test client that sees server output as
// plain text: option negotiation and ANSI styling are removed.
type TelnetClient struct {
	conn    net.Conn
	t       *testing.T
	pending string
}

// NewTelnetClient dials addr.
//
// Precondition: addr must be a listening "host:port".
// Postcondition: Returns a connected client closed at test cleanup, or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &TelnetClient{conn: conn, t: t}
}

// Expect reads until the plain-text output contains substr and returns the
// text up to and including it. Output after the match is kept for the next call.
func (c *TelnetClient) Expect(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	raw := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		text := c.pending + PlainText(raw)
		if i := strings.Index(text, substr); i >= 0 {
			end := i + len(substr)
			c.pending = text[end:]
			return text[:end]
		}
		n, err := c.conn.Read(tmp)
		raw = append(raw, tmp[:n]...)
		if err != nil && n == 0 {
			c.t.Fatalf("waiting for %q: got %q, error: %v", substr, c.pending+PlainText(raw), err)
		}
	}
}

// Send writes text followed by CRLF.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the connection.
func (c *TelnetClient) Close() {
	_ = c.conn.Close()
}

// PlainText drops Telnet option negotiations and ANSI sequences from raw
// output and normalizes CRLF to LF.
func PlainText(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0xff && i+2 < len(raw) && raw[i+1] >= 0xfb && raw[i+1] <= 0xfe {
			i += 2
			continue
		}
		out = append(out, raw[i])
	}
	text := ansiSequence.ReplaceAllString(string(out), "")
	return strings.ReplaceAll(text, "\r\n", "\n")
}
