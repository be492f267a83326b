// Package server delivers messages to room members and between direct-message
// peers. Recipient lists are snapshotted under the registry locks and all
// delivery happens outside them, through the per-client bounded queues.
package server

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Protocol markers. Arrow prefixes every informational server line;
// SelfMarker annotates the issuing user's own copy of an announcement.
const (
	Arrow      = ">> "
	SelfMarker = "(** this is you!)"
)

// DeliveryMode selects how a room broadcast treats the sender.
type DeliveryMode int

const (
	// ExcludeSender delivers to every member except the sender.
	ExcludeSender DeliveryMode = iota

	// AnnotateSenderSelf delivers to every member including the sender,
	// whose copy carries the SelfMarker.
	AnnotateSenderSelf
)

// Broadcaster fans messages out to room members and routes direct messages.
// It reads the room and user registries one at a time and never performs
// network I/O while either lock is held.
type Broadcaster struct {
	users *UserRegistry
	rooms *RoomRegistry
}

// NewBroadcaster creates a Broadcaster over the given registries.
func NewBroadcaster(users *UserRegistry, rooms *RoomRegistry) *Broadcaster {
	return &Broadcaster{users: users, rooms: rooms}
}

// BroadcastToRoom delivers message (without trailing newline) to the current
// members of room according to mode. Delivery failures are logged, skipped,
// and reported back as the list of unreachable member names; a failure for
// one member never aborts delivery to the rest. Unreachable members have
// their connections closed so their own sessions run the cleanup cascade.
func (b *Broadcaster) BroadcastToRoom(room, message, sender string, mode DeliveryMode) []string {
	members, err := b.rooms.Members(room)
	if err != nil {
		return nil
	}

	var failed []string
	for _, name := range members {
		if name == sender && mode == ExcludeSender {
			continue
		}

		line := message
		if name == sender && mode == AnnotateSenderSelf {
			line = message + " " + SelfMarker
		}

		if !b.deliver(name, line+"\n") {
			failed = append(failed, name)
			log.Warn().Str("room", room).Str("user", name).Msg("broadcast delivery failed, dropping member connection")
		}
	}
	return failed
}

// SendDirect delivers a formatted direct message from one user to another
// and a delivery confirmation back to the sender. It returns
// ErrUserNotFound if the recipient is not registered and a wrapped
// ErrPeerUnreachable if either party's outbound path is dead.
func (b *Broadcaster) SendDirect(fromUser, toUser, body string) error {
	if _, ok := b.users.Lookup(toUser); !ok {
		return fmt.Errorf("pm to %s: %w", toUser, ErrUserNotFound)
	}

	if !b.deliver(toUser, fmt.Sprintf("*** PM from %s: %s\n", fromUser, body)) {
		log.Warn().Str("from", fromUser).Str("to", toUser).Msg("direct message delivery failed")
		return fmt.Errorf("pm to %s: %w", toUser, ErrPeerUnreachable)
	}

	if !b.deliver(fromUser, fmt.Sprintf("%sPM sent to %s.\n", Arrow, toUser)) {
		return fmt.Errorf("pm confirmation to %s: %w", fromUser, ErrPeerUnreachable)
	}
	return nil
}

// Notify sends a single out-of-band line to one user, best effort. It
// reports false if the user is unknown or unreachable.
func (b *Broadcaster) Notify(name, message string) bool {
	return b.deliver(name, message+"\n")
}

// deliver enqueues one line for name. A failed enqueue is a strong signal
// the peer is gone; the client is closed so its session notices and cleans
// up, which prevents ghost members from accumulating in rooms.
func (b *Broadcaster) deliver(name, line string) bool {
	client, ok := b.users.Lookup(name)
	if !ok {
		return false
	}
	if client.Enqueue(line) {
		return true
	}
	client.Close()
	return false
}
