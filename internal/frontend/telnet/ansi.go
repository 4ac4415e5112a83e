// Package telnet serves line-oriented Telnet clients and styles their output
// with ANSI escape sequences.
package telnet

import (
	"fmt"
	"strings"
)

// ANSI styles used by the text client.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Cyan    = "\033[36m"
	Magenta = "\033[35m"

	BrightYellow = "\033[93m"
	BrightCyan   = "\033[96m"
	BrightWhite  = "\033[97m"
)

// Colorize wraps text in style and a trailing Reset.
func Colorize(style, text string) string {
	return style + text + Reset
}

// Colorf formats args and wraps the result in style.
func Colorf(style, format string, args ...any) string {
	return Colorize(style, fmt.Sprintf(format, args...))
}

// Indent prefixes every non-empty line of text with pad.
func Indent(text, pad string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\r\n")
}

// StripANSI removes CSI escape sequences (ESC '[' params final-byte), leaving
// the printable text.
//
// Postcondition: The result contains no ESC '[' introducer that starts a complete sequence.
func StripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\033' || i+1 >= len(s) || s[i+1] != '[' {
			b.WriteByte(s[i])
			continue
		}
		j := i + 2
		for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
			j++
		}
		if j == len(s) {
			b.WriteString(s[i:])
			break
		}
		i = j
	}
	return b.String()
}
