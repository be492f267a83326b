// Package server routes protocol lines to session behavior through the
// command dispatcher. The first whitespace-delimited token selects the
// command; everything after it is the rest-of-line argument.
package server

import "strings"

type stateMask uint8

const (
	inLobby stateMask = 1 << iota
	inRoom
)

type command struct {
	name        string
	argHint     string
	desc        string
	states      stateMask
	requiresArg bool
	run         func(s *Session, arg string) bool
}

// Dispatcher parses client lines and routes them to the matching session
// handler, enforcing per-state validity and the uniform validation policy:
// a missing required argument or an unknown name yields an inline error and
// no state change.
type Dispatcher struct {
	commands map[string]*command
	order    []*command
}

// NewDispatcher builds the command table. The /help output is composed from
// the same table so the two can never drift apart.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{commands: make(map[string]*command)}

	d.add(&command{
		name: "/join", argHint: "<room name>", states: inLobby, requiresArg: true,
		desc: "join the room called 'room name'",
		run:  (*Session).cmdJoin,
	})
	d.add(&command{
		name: "/leave", states: inRoom,
		desc: "leave the current room",
		run:  (*Session).cmdLeave,
	})
	d.add(&command{
		name: "/rooms", states: inLobby,
		desc: "list the rooms and how many people are in each",
		run:  (*Session).cmdRooms,
	})
	d.add(&command{
		name: "/createRoom", argHint: "<room name>", states: inLobby, requiresArg: true,
		desc: "create a room called 'room name'",
		run:  (*Session).cmdCreateRoom,
	})
	d.add(&command{
		name: "/deleteRoom", argHint: "<room name>", states: inLobby, requiresArg: true,
		desc: "delete the room called 'room name' (must be empty)",
		run:  (*Session).cmdDeleteRoom,
	})
	d.add(&command{
		name: "/changeUsername", argHint: "<username>", states: inLobby, requiresArg: true,
		desc: "change your username to 'username'",
		run:  (*Session).cmdChangeUsername,
	})
	d.add(&command{
		name: "/users", states: inLobby | inRoom,
		desc: "list the users that are online",
		run:  (*Session).cmdUsers,
	})
	d.add(&command{
		name: "/PM", argHint: "<username>", states: inLobby | inRoom, requiresArg: true,
		desc: "privately message the user 'username'",
		run:  (*Session).cmdPM,
	})
	d.add(&command{
		name: "/replyPM", argHint: "<message>", states: inLobby | inRoom, requiresArg: true,
		desc: "send 'message' to the last person you exchanged a PM with",
		run:  (*Session).cmdReplyPM,
	})
	d.add(&command{
		name: "/help", states: inLobby | inRoom,
		desc: "list these command options",
		run:  (*Session).cmdHelp,
	})
	d.add(&command{
		name: "/quit", states: inLobby | inRoom,
		desc: "exit the chat server",
		run:  (*Session).cmdQuit,
	})

	return d
}

func (d *Dispatcher) add(c *command) {
	d.commands[c.name] = c
	d.order = append(d.order, c)
}

// Dispatch routes one line for the session and reports whether the session
// should keep reading. Lines that match no command are chat messages inside
// a room and an error in the lobby.
func (d *Dispatcher) Dispatch(s *Session, line string) bool {
	name, arg := splitCommand(line)

	cmd, ok := d.commands[name]
	if !ok {
		if s.state == StateInRoom {
			return s.chatMessage(line)
		}
		s.sendInfo("Whoops! That wasn't a valid command.. try typing '/help' for a list of commands!")
		return true
	}

	if !cmd.validIn(s.state) {
		if s.state == StateInRoom {
			s.sendInfo("You can't use " + cmd.name + " inside a room. Use /leave to return to the lobby first.")
		} else {
			s.sendInfo("You can only use " + cmd.name + " inside a room. Use /join to enter one.")
		}
		return true
	}

	if cmd.requiresArg && arg == "" {
		s.sendInfo("Please specify " + cmd.argHint + " after '" + cmd.name + "'.")
		return true
	}

	return cmd.run(s, arg)
}

// HelpText renders the command list applicable to the given session state.
func (d *Dispatcher) HelpText(state SessionState) string {
	mask := inLobby
	if state == StateInRoom {
		mask = inRoom
	}

	var b strings.Builder
	b.WriteString(Arrow + "Here is the list of commands you can use:\n")
	for _, cmd := range d.order {
		if cmd.states&mask == 0 {
			continue
		}
		b.WriteString(Arrow + "* " + cmd.name)
		if cmd.argHint != "" {
			b.WriteString(" " + cmd.argHint)
		}
		b.WriteString(": " + cmd.desc + "\n")
	}
	b.WriteString(Arrow + "End of list.\n")
	return b.String()
}

func (c *command) validIn(state SessionState) bool {
	switch state {
	case StateLobby:
		return c.states&inLobby != 0
	case StateInRoom:
		return c.states&inRoom != 0
	default:
		return false
	}
}

// splitCommand separates the command token from its rest-of-line argument.
// Arguments may contain spaces; surrounding whitespace is trimmed.
func splitCommand(line string) (string, string) {
	name, arg, found := strings.Cut(line, " ")
	if !found {
		return line, ""
	}
	return name, strings.TrimSpace(arg)
}
