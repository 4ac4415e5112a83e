package handlers

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/frontend/telnet"
)

const payloadIndent = "  "

// RenderEvent formats a router event as colored Telnet text.
//
// Postcondition: Returns one or more CRLF-separated lines with no trailing terminator.
func RenderEvent(ev channel.Event) string {
	switch ev.Name {
	case channel.EventJoinedSession:
		var js channel.JoinedSession
		if err := channel.Decode(ev.Payload, &js); err != nil {
			return withPayload(telnet.Colorize(telnet.BrightYellow, "Joined a session."), ev.Payload)
		}
		header := telnet.Colorf(telnet.BrightYellow, "Joined session #%d (%s).", js.SessionID, js.Type)
		return withPayload(header, js.State)

	case channel.EventNotInSession:
		return telnet.Colorize(telnet.Dim, "You are not in a session. Type 'create <type> [member...]' to start one.")

	case channel.EventStateUpdate:
		return withPayload(telnet.Colorize(telnet.Cyan, "Update:"), ev.Payload)

	case channel.EventInputRequested:
		return withPayload(telnet.Colorize(telnet.Bold+telnet.BrightWhite, "Your move:"), ev.Payload)

	case channel.EventSessionOver:
		return withPayload(telnet.Colorize(telnet.Bold+telnet.Green, "Session over."), ev.Payload)

	case channel.EventSessionError:
		var se channel.SessionError
		if err := channel.Decode(ev.Payload, &se); err != nil || se.Message == "" {
			return telnet.Colorize(telnet.Red, "Error.")
		}
		return telnet.Colorf(telnet.Red, "Error: %s", se.Message)

	default:
		return withPayload(telnet.Colorf(telnet.Magenta, "%s:", ev.Name), ev.Payload)
	}
}

// withPayload appends payload as indented YAML below header.
func withPayload(header string, payload any) string {
	body := renderPayload(payload)
	if body == "" {
		return header
	}
	return header + "\r\n" + telnet.Indent(body, payloadIndent)
}

func renderPayload(payload any) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload.(string); ok {
		return s
	}
	out, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	text := strings.TrimRight(string(out), "\n")
	if text == "{}" || text == "[]" {
		return ""
	}
	return text
}
