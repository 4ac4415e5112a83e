package telnet

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// Telnet command and option bytes (RFC 854, RFC 857, RFC 858).
const (
	IAC  byte = 255
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250
	GA   byte = 249
	NOP  byte = 241
	SE   byte = 240

	OptEcho            byte = 1
	OptSuppressGoAhead byte = 3
	OptLinemode        byte = 34
)

// Line editing bytes honoured by ReadLine.
const (
	backspace byte = 0x08
	del       byte = 0x7f
)

// MaxLineBytes bounds one input line; longer lines are truncated.
const MaxLineBytes = 1024

// ErrInterrupted is returned by ReadLine after Interrupt.
var ErrInterrupted = errors.New("telnet: read interrupted")

// Conn is a Telnet connection with line-oriented input. Reads must come from
// one goroutine; writes are serialized and may come from any goroutine.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration

	interruptMu sync.Mutex
	interrupted bool
}

// NewConn wraps raw.
//
// Precondition: raw must be open.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Negotiate announces suppress-go-ahead so clients send full lines without GA framing.
func (c *Conn) Negotiate() error {
	return c.Write([]byte{IAC, WILL, OptSuppressGoAhead})
}

// ReadLine returns the next line without its terminator. IAC sequences and
// control bytes other than tab are dropped; backspace and DEL erase the
// previous byte.
//
// Postcondition: Returns the line, or an error (io.EOF, a timeout, or ErrInterrupted).
func (c *Conn) ReadLine() (string, error) {
	c.interruptMu.Lock()
	if c.interrupted {
		c.interruptMu.Unlock()
		return "", ErrInterrupted
	}
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	c.interruptMu.Unlock()

	line := make([]byte, 0, 64)
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return string(line), c.readErr(err)
		}
		switch {
		case b == IAC:
			if err := c.skipCommand(); err != nil {
				return string(line), c.readErr(err)
			}
		case b == '\n':
			return string(line), nil
		case b == '\r':
			if next, err := c.reader.Peek(1); err == nil && (next[0] == '\n' || next[0] == 0) {
				_, _ = c.reader.ReadByte()
			}
			return string(line), nil
		case b == backspace || b == del:
			if len(line) > 0 {
				line = line[:len(line)-1]
			}
		case b < 32 && b != '\t':
		default:
			if len(line) < MaxLineBytes {
				line = append(line, b)
			}
		}
	}
}

// skipCommand consumes the rest of a command whose IAC byte was already read.
func (c *Conn) skipCommand() error {
	cmd, err := c.reader.ReadByte()
	if err != nil {
		return err
	}
	switch cmd {
	case WILL, WONT, DO, DONT:
		_, err = c.reader.ReadByte()
		return err
	case SB:
		var prev byte
		for {
			b, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if prev == IAC && b == SE {
				return nil
			}
			if prev == IAC && b == IAC {
				b = 0
			}
			prev = b
		}
	}
	return nil
}

func (c *Conn) readErr(err error) error {
	c.interruptMu.Lock()
	defer c.interruptMu.Unlock()
	if c.interrupted {
		return ErrInterrupted
	}
	return err
}

// Interrupt unblocks a pending ReadLine, which then returns ErrInterrupted.
// Later reads fail the same way.
func (c *Conn) Interrupt() {
	c.interruptMu.Lock()
	c.interrupted = true
	c.interruptMu.Unlock()
	_ = c.raw.SetReadDeadline(time.Now())
}

// WriteLine writes text followed by CRLF. Bare LF inside text is converted to CRLF.
func (c *Conn) WriteLine(text string) error {
	return c.Write([]byte(toCRLF(text) + "\r\n"))
}

// WritePrompt writes text without a line terminator.
func (c *Conn) WritePrompt(text string) error {
	return c.Write([]byte(text))
}

// Write sends data as-is.
func (c *Conn) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.raw.Write(data)
	return err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

func toCRLF(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}
