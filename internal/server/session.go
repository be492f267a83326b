// Package server runs the per-connection protocol state machine. A Session
// owns exactly one connection: it negotiates a unique username, loops over
// inbound lines dispatching commands, and tears everything down when the
// stream ends or the user quits.
//
// A session touches the registries one at a time and never holds registry
// state of its own beyond the current name and room strings, so composite
// flows (rename, disconnect) are sequenced calls rather than nested locks.
package server

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionState is the position of a session in its lifecycle.
type SessionState int

const (
	// StateConnecting means no username has been accepted yet.
	StateConnecting SessionState = iota
	// StateLobby means the user is named but in no room.
	StateLobby
	// StateInRoom means the user is named and in exactly one room.
	StateInRoom
	// StateDisconnected is terminal; cleanup has run.
	StateDisconnected
)

// Session drives one client connection from name negotiation through
// disconnect.
type Session struct {
	id      string
	conn    Conn
	client  *Client
	users   *UserRegistry
	rooms   *RoomRegistry
	replies *ReplyRouter
	bcast   *Broadcaster
	disp    *Dispatcher
	limiter *rateLimiter
	log     zerolog.Logger

	state SessionState
	name  string
	room  string

	// pendingPM holds the recipient of an in-flight /PM while the next
	// line is read as the message body.
	pendingPM string

	cleanupOnce sync.Once
}

// NewSession creates a session for conn, wired to the shared registries.
func NewSession(conn Conn, client *Client, cfg *Config, users *UserRegistry, rooms *RoomRegistry, replies *ReplyRouter, bcast *Broadcaster, disp *Dispatcher) *Session {
	sid := uuid.NewString()
	return &Session{
		id:      sid,
		conn:    conn,
		client:  client,
		users:   users,
		rooms:   rooms,
		replies: replies,
		bcast:   bcast,
		disp:    disp,
		limiter: newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		log:     log.With().Str("sid", sid).Str("addr", conn.RemoteAddr()).Logger(),
		state:   StateConnecting,
	}
}

// Run executes the session to completion. It returns when the connection is
// gone and cleanup has finished.
func (s *Session) Run() {
	defer s.cleanup()

	s.log.Info().Msg("session started")

	if !s.negotiateUsername() {
		return
	}

	s.commandLoop()
}

// negotiateUsername prompts until the client supplies a name no other active
// user holds. It reports false if the stream ends first, in which case
// nothing was registered and cleanup has nothing to undo.
func (s *Session) negotiateUsername() bool {
	s.sendInfo("Welcome to the Nexus chat server!")
	s.sendInfo("What would you like your username to be?")

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadEnd(err)
			return false
		}

		name := strings.TrimSpace(line)
		if name == "" {
			s.sendInfo("A username can't be empty. Login name?")
			continue
		}

		if err := s.users.Register(name, s.client); err != nil {
			s.sendInfo("That username has been taken!")
			s.sendInfo("Login name?")
			continue
		}

		s.name = name
		s.state = StateLobby
		s.log = s.log.With().Str("user", name).Logger()
		s.log.Info().Msg("username registered")

		s.sendInfo("Welcome " + name + "!")
		s.sendRaw(s.disp.HelpText(s.state))
		return true
	}
}

// commandLoop reads lines until the stream ends or a command terminates the
// session. Per-command errors are reported inline and never unwind past
// this loop.
func (s *Session) commandLoop() {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadEnd(err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !s.limiter.allow() {
			s.sendInfo("You're sending messages too quickly. That one was dropped.")
			continue
		}

		if s.pendingPM != "" {
			s.deliverPendingPM(line)
			continue
		}

		if !s.disp.Dispatch(s, line) {
			return
		}
	}
}

func (s *Session) logReadEnd(err error) {
	if isExpectedCloseError(err) {
		s.log.Info().Msg("client disconnected")
		return
	}
	s.log.Warn().Err(err).Msg("read failed, dropping connection")
}

// cmdJoin moves the session from the lobby into a room, announces the entry
// to the room with the sender's own copy annotated, and sends the joiner a
// member list snapshot.
func (s *Session) cmdJoin(room string) bool {
	if err := s.rooms.Join(room, s.name); err != nil {
		s.sendInfo("That is not an available chatroom name.")
		s.sendInfo("Please try '/rooms' for a list of available rooms.")
		return true
	}

	s.state = StateInRoom
	s.room = room
	s.log.Info().Str("room", room).Msg("joined room")

	s.sendInfo("Welcome to " + room + "!")
	s.bcast.BroadcastToRoom(room, Arrow+"Entering room: "+s.name, s.name, AnnotateSenderSelf)
	s.sendMemberList(room)
	s.sendRaw(s.disp.HelpText(s.state))
	return true
}

// cmdLeave returns the session to the lobby: the departure is announced to
// the remaining members first, then membership is removed.
func (s *Session) cmdLeave(string) bool {
	room := s.room
	s.bcast.BroadcastToRoom(room, Arrow+"* user has left chat: "+s.name, s.name, ExcludeSender)
	s.rooms.Leave(room, s.name)

	s.state = StateLobby
	s.room = ""
	s.log.Info().Str("room", room).Msg("left room")

	s.sendInfo("You left " + room + ". Back in the lobby.")
	return true
}

func (s *Session) cmdRooms(string) bool {
	infos := s.rooms.List()
	if len(infos) == 0 {
		s.sendInfo("There are no chatrooms open right now!")
		s.sendInfo("You can create one by using the '/createRoom <room name>' command.")
		return true
	}

	var b strings.Builder
	b.WriteString(Arrow + "Active rooms are:\n")
	for _, info := range infos {
		b.WriteString(Arrow + "* " + info.Name + " (" + strconv.Itoa(info.Members) + ")\n")
	}
	b.WriteString(Arrow + "End of list.\n")
	s.sendRaw(b.String())
	return true
}

// cmdCreateRoom reports success even when the room already exists; in that
// case the existing member set is preserved rather than reset.
func (s *Session) cmdCreateRoom(room string) bool {
	if err := s.rooms.Create(room); err != nil && !errors.Is(err, ErrRoomExists) {
		s.sendInfo("Could not create " + room + ".")
		return true
	}
	s.log.Info().Str("room", room).Msg("room created")
	s.sendInfo(room + " created.")
	return true
}

func (s *Session) cmdDeleteRoom(room string) bool {
	switch err := s.rooms.Delete(room); {
	case errors.Is(err, ErrRoomNotFound):
		s.sendInfo("There is no room called " + room + ".")
	case errors.Is(err, ErrRoomNotEmpty):
		s.sendInfo("You can't delete a room with people still in it!")
	default:
		s.log.Info().Str("room", room).Msg("room deleted")
		s.sendInfo(room + " deleted.")
	}
	return true
}

// cmdChangeUsername swaps the registry entry atomically and then propagates
// the new name to the reply links and room member sets. The swap is the
// only step that can fail, so a rejected rename has no side effects.
func (s *Session) cmdChangeUsername(newName string) bool {
	if err := s.users.Rename(s.name, newName); err != nil {
		s.sendInfo("That name has already been taken! Please choose another.")
		return true
	}

	oldName := s.name
	s.replies.Rename(oldName, newName)
	s.rooms.RenameMember(oldName, newName)
	s.name = newName
	s.log = s.log.With().Str("user", newName).Logger()
	s.log.Info().Str("previous", oldName).Msg("username changed")

	s.sendInfo("Name has been changed to: " + newName)
	return true
}

func (s *Session) cmdUsers(string) bool {
	var b strings.Builder
	b.WriteString(Arrow + "The following users are online:\n")
	for _, name := range s.users.Names() {
		b.WriteString(Arrow + "* " + name)
		if name == s.name {
			b.WriteString(" " + SelfMarker)
		}
		b.WriteString("\n")
	}
	b.WriteString(Arrow + "End of list.\n")
	s.sendRaw(b.String())
	return true
}

// cmdPM validates the recipient and then reads the next line as the message
// body, mirroring the prompt-then-deliver flow of the protocol.
func (s *Session) cmdPM(target string) bool {
	if _, ok := s.users.Lookup(target); !ok {
		s.sendInfo("User not found: " + target)
		return true
	}

	s.pendingPM = target
	s.sendInfo("Please enter the message you want to send:")
	return true
}

// deliverPendingPM completes a /PM: the exchange is recorded in both
// directions before delivery so either party can use /replyPM afterwards.
func (s *Session) deliverPendingPM(body string) {
	target := s.pendingPM
	s.pendingPM = ""
	s.sendPM(target, body)
}

func (s *Session) cmdReplyPM(body string) bool {
	partner, ok := s.replies.LastPartner(s.name)
	if !ok {
		s.sendInfo("You haven't been private messaging anyone!")
		s.sendInfo("This command PMs the last person you PMed or the last person that PMed you.")
		return true
	}
	s.sendPM(partner, body)
	return true
}

func (s *Session) sendPM(target, body string) {
	s.replies.RecordExchange(s.name, target)

	err := s.bcast.SendDirect(s.name, target, body)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.sendInfo("User not found: " + target)
	case errors.Is(err, ErrPeerUnreachable):
		s.log.Warn().Str("to", target).Err(err).Msg("direct message failed")
		s.sendInfo("Could not deliver the message to " + target + ".")
	}
}

func (s *Session) cmdHelp(string) bool {
	s.sendRaw(s.disp.HelpText(s.state))
	return true
}

func (s *Session) cmdQuit(string) bool {
	s.sendInfo("Bye!")
	return false
}

// chatMessage broadcasts a non-command line to the other members of the
// current room.
func (s *Session) chatMessage(line string) bool {
	s.bcast.BroadcastToRoom(s.room, s.name+": "+line, s.name, ExcludeSender)
	return true
}

func (s *Session) sendMemberList(room string) {
	members, err := s.rooms.Members(room)
	if err != nil {
		return
	}

	var b strings.Builder
	b.WriteString(Arrow + "Current users in " + room + ":\n")
	for _, name := range members {
		b.WriteString(Arrow + "* " + name)
		if name == s.name {
			b.WriteString(" " + SelfMarker)
		}
		b.WriteString("\n")
	}
	b.WriteString(Arrow + "End of list.\n")
	s.sendRaw(b.String())
}

// cleanup runs the disconnect cascade exactly once: announce and drop room
// membership, clear reply links (notifying users whose shortcut pointed
// here), unregister the name, close the transport. Each step is idempotent
// on its own registry so the cascade tolerates peers racing the same state.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		if s.name == "" {
			s.state = StateDisconnected
			s.client.Close()
			s.log.Info().Msg("session ended before registration")
			return
		}

		if s.room != "" {
			s.bcast.BroadcastToRoom(s.room, Arrow+"* user has left chat: "+s.name, s.name, ExcludeSender)
			s.rooms.Leave(s.room, s.name)
			s.room = ""
		}

		for _, holder := range s.replies.Remove(s.name) {
			s.bcast.Notify(holder,
				Arrow+"*** "+s.name+" has logged off. You now need to send or receive a PM to use /replyPM.")
		}

		s.users.Unregister(s.name)
		s.state = StateDisconnected
		s.client.Close()
		s.log.Info().Msg("session ended")
	})
}

// sendInfo queues one informational line, prefixed with the protocol marker.
func (s *Session) sendInfo(text string) {
	s.sendRaw(Arrow + text + "\n")
}

// sendRaw queues a preformatted block. A failed enqueue means this
// session's own connection is dead; closing it lets the read loop exit.
func (s *Session) sendRaw(block string) {
	if !s.client.Enqueue(block) {
		s.client.Close()
	}
}
