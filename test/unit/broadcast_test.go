package unit

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

const shortWait = 250 * time.Millisecond
const readWait = 2 * time.Second

func newBroadcastFixture(t *testing.T) (*server.UserRegistry, *server.RoomRegistry, *server.Broadcaster) {
	t.Helper()
	users := server.NewUserRegistry()
	rooms := server.NewRoomRegistry()
	return users, rooms, server.NewBroadcaster(users, rooms)
}

// TestBroadcastExcludeSender verifies a chat broadcast reaches every other
// member exactly once and never the sender.
func TestBroadcastExcludeSender(t *testing.T) {
	users, rooms, bcast := newBroadcastFixture(t)

	ann := newTestClient(t)
	bob := newTestClient(t)
	zoe := newTestClient(t)
	for name, tc := range map[string]*testClient{"ann": ann, "bob": bob, "zoe": zoe} {
		if err := users.Register(name, tc.client); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
		if err := rooms.Join(server.DefaultRoom, name); err != nil {
			t.Fatalf("Join(%s) failed: %v", name, err)
		}
	}

	failed := bcast.BroadcastToRoom(server.DefaultRoom, "ann: hi", "ann", server.ExcludeSender)
	if len(failed) != 0 {
		t.Fatalf("unexpected delivery failures: %v", failed)
	}

	for name, tc := range map[string]*testClient{"bob": bob, "zoe": zoe} {
		if got := tc.readLine(t, readWait); got != "ann: hi" {
			t.Fatalf("%s received %q, want %q", name, got, "ann: hi")
		}
		tc.assertNoLine(t, shortWait)
	}
	ann.assertNoLine(t, shortWait)
}

// TestBroadcastAnnotateSenderSelf verifies every member receives the event
// and only the sender's copy carries the self marker.
func TestBroadcastAnnotateSenderSelf(t *testing.T) {
	users, rooms, bcast := newBroadcastFixture(t)

	ann := newTestClient(t)
	bob := newTestClient(t)
	for name, tc := range map[string]*testClient{"ann": ann, "bob": bob} {
		if err := users.Register(name, tc.client); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
		if err := rooms.Join(server.DefaultRoom, name); err != nil {
			t.Fatalf("Join(%s) failed: %v", name, err)
		}
	}

	bcast.BroadcastToRoom(server.DefaultRoom, server.Arrow+"Entering room: ann", "ann", server.AnnotateSenderSelf)

	annLine := ann.readLine(t, readWait)
	if !strings.Contains(annLine, "Entering room: ann") || !strings.Contains(annLine, server.SelfMarker) {
		t.Fatalf("sender copy = %q, want the announcement with the self marker", annLine)
	}

	bobLine := bob.readLine(t, readWait)
	if !strings.Contains(bobLine, "Entering room: ann") || strings.Contains(bobLine, server.SelfMarker) {
		t.Fatalf("peer copy = %q, want the announcement without the self marker", bobLine)
	}
}

// TestBroadcastToleratesDeadMember verifies a dead member is skipped and
// reported while delivery to the remaining members proceeds.
func TestBroadcastToleratesDeadMember(t *testing.T) {
	users, rooms, bcast := newBroadcastFixture(t)

	ann := newTestClient(t)
	bob := newTestClient(t)
	zoe := newTestClient(t)
	for name, tc := range map[string]*testClient{"ann": ann, "bob": bob, "zoe": zoe} {
		if err := users.Register(name, tc.client); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
		if err := rooms.Join(server.DefaultRoom, name); err != nil {
			t.Fatalf("Join(%s) failed: %v", name, err)
		}
	}

	bob.client.Close()

	failed := bcast.BroadcastToRoom(server.DefaultRoom, "ann: hi", "ann", server.ExcludeSender)
	if len(failed) != 1 || failed[0] != "bob" {
		t.Fatalf("failed = %v, want [bob]", failed)
	}

	if got := zoe.readLine(t, readWait); got != "ann: hi" {
		t.Fatalf("zoe received %q despite bob being dead", got)
	}
}

// TestSendDirect verifies the PM reaches the recipient and the sender gets
// a delivery confirmation.
func TestSendDirect(t *testing.T) {
	users, _, bcast := newBroadcastFixture(t)

	ann := newTestClient(t)
	bob := newTestClient(t)
	if err := users.Register("ann", ann.client); err != nil {
		t.Fatalf("Register(ann) failed: %v", err)
	}
	if err := users.Register("bob", bob.client); err != nil {
		t.Fatalf("Register(bob) failed: %v", err)
	}

	if err := bcast.SendDirect("ann", "bob", "hello"); err != nil {
		t.Fatalf("SendDirect failed: %v", err)
	}

	if got := bob.readLine(t, readWait); !strings.Contains(got, "PM from ann: hello") {
		t.Fatalf("bob received %q, want a PM from ann", got)
	}
	if got := ann.readLine(t, readWait); !strings.Contains(got, "PM sent to bob") {
		t.Fatalf("ann received %q, want a delivery confirmation", got)
	}
}

// TestSendDirectUnknownRecipient verifies an unknown recipient is reported
// as a user-not-found error without any delivery.
func TestSendDirectUnknownRecipient(t *testing.T) {
	users, _, bcast := newBroadcastFixture(t)

	ann := newTestClient(t)
	if err := users.Register("ann", ann.client); err != nil {
		t.Fatalf("Register(ann) failed: %v", err)
	}

	if err := bcast.SendDirect("ann", "ghost", "hello"); !errors.Is(err, server.ErrUserNotFound) {
		t.Fatalf("SendDirect to ghost = %v, want ErrUserNotFound", err)
	}
	ann.assertNoLine(t, shortWait)
}

// TestSendDirectDeadRecipient verifies delivery to a closed peer surfaces
// as a peer-unreachable error for the initiating session.
func TestSendDirectDeadRecipient(t *testing.T) {
	users, _, bcast := newBroadcastFixture(t)

	ann := newTestClient(t)
	bob := newTestClient(t)
	if err := users.Register("ann", ann.client); err != nil {
		t.Fatalf("Register(ann) failed: %v", err)
	}
	if err := users.Register("bob", bob.client); err != nil {
		t.Fatalf("Register(bob) failed: %v", err)
	}

	bob.client.Close()

	if err := bcast.SendDirect("ann", "bob", "hello"); !errors.Is(err, server.ErrPeerUnreachable) {
		t.Fatalf("SendDirect to dead peer = %v, want ErrPeerUnreachable", err)
	}
}
