package handlers

import (
	"errors"
	"strings"

	"github.com/samber/lo"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/frontend/telnet"
)

// Local command names. Every other first word is sent to the game as an action.
const (
	CommandCreate = "create"
	CommandQuit   = "quit"
	CommandHelp   = "help"
)

// errCreateUsage is returned for a create command without a game type.
var errCreateUsage = errors.New("usage: create <type> [member...]")

// PlayerInput is the payload sent for lines that are not local commands.
type PlayerInput struct {
	Action string   `json:"action"`
	Args   []string `json:"args"`
}

type command struct {
	name string
	args []string
}

// parseCommand splits line into a lowercased command word and its arguments.
//
// Postcondition: Returns false when line holds no words.
func parseCommand(line string) (command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// createEvent builds a create-session request owned by self. self is always
// the first member; duplicates are dropped.
//
// Precondition: self must be non-empty.
// Postcondition: Returns errCreateUsage when args names no game type.
func createEvent(self string, args []string) (channel.Event, error) {
	if len(args) == 0 {
		return channel.Event{}, errCreateUsage
	}
	members := lo.Uniq(append([]string{self}, args[1:]...))
	return channel.Event{
		Name:    channel.EventCreateSession,
		Payload: channel.CreateSession{Type: args[0], MemberIDs: members},
	}, nil
}

// inputEvent wraps cmd as player input.
func inputEvent(cmd command) channel.Event {
	args := cmd.args
	if args == nil {
		args = []string{}
	}
	return channel.Event{
		Name:    channel.EventPlayerInput,
		Payload: PlayerInput{Action: cmd.name, Args: args},
	}
}

func helpText() string {
	var b strings.Builder
	b.WriteString(telnet.Colorize(telnet.BrightYellow, "Commands:"))
	b.WriteString("\r\n")
	for _, row := range [][2]string{
		{"create <type> [member...]", "start a session with the listed participants"},
		{"quit", "leave the server"},
		{"help", "show this list"},
		{"<action> [args...]", "send an action to your current game, e.g. 'roll'"},
	} {
		b.WriteString("  ")
		b.WriteString(telnet.Colorize(telnet.Green, row[0]))
		b.WriteString(strings.Repeat(" ", max(1, 28-len(row[0]))))
		b.WriteString(row[1])
		b.WriteString("\r\n")
	}
	return strings.TrimSuffix(b.String(), "\r\n")
}
