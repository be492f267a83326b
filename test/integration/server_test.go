// Package integration contains integration tests that drive the chat server
// over real TCP connections.
//
// These tests exercise the full protocol surface: username negotiation,
// lobby commands, registry conflicts, and inline validation errors.
package integration

import (
	"testing"
	"time"

	"github.com/Tyrowin/nexus-chat-server/test/testhelpers"
)

// TestUsernameNegotiation verifies the connect flow: a prompt, rejection of
// a taken name without losing the connection, and acceptance of a free one.
func TestUsernameNegotiation(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")

	bob := testhelpers.Dial(t, addr)
	bob.WaitFor("What would you like your username to be?")
	bob.SendLine("ann")
	bob.WaitFor("That username has been taken!")
	bob.SendLine("bob")
	bob.WaitFor("Welcome bob!")
}

// TestEmptyUsernameRejected verifies a blank line does not register a user.
func TestEmptyUsernameRejected(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.WaitFor("What would you like your username to be?")
	ann.SendLine("   ")
	ann.WaitFor("A username can't be empty.")
	ann.SendLine("ann")
	ann.WaitFor("Welcome ann!")
}

// TestUsersListingMarksSelf verifies /users lists everyone online with the
// issuing user marked.
func TestUsersListingMarksSelf(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")
	bob := testhelpers.Dial(t, addr)
	bob.Login("bob")

	ann.SendLine("/users")
	ann.WaitFor("* ann (** this is you!)")
	ann.WaitFor("* bob")
	ann.WaitFor("End of list.")
}

// TestRoomsListing verifies /rooms shows the seeded room with its member
// count.
func TestRoomsListing(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")

	ann.SendLine("/rooms")
	ann.WaitFor("* main (0)")
	ann.WaitFor("End of list.")
}

// TestCreateAndDeleteRoom verifies the room lifecycle commands, including
// the not-found error.
func TestCreateAndDeleteRoom(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")

	ann.SendLine("/createRoom books")
	ann.WaitFor("books created.")

	ann.SendLine("/rooms")
	ann.WaitFor("* books (0)")

	ann.SendLine("/deleteRoom ghost")
	ann.WaitFor("There is no room called ghost.")

	ann.SendLine("/deleteRoom books")
	ann.WaitFor("books deleted.")
}

// TestChangeUsername verifies rename rejection on a taken name and the
// propagation of a successful rename to the /users listing of a peer.
func TestChangeUsername(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")
	bob := testhelpers.Dial(t, addr)
	bob.Login("bob")

	bob.SendLine("/changeUsername ann")
	bob.WaitFor("That name has already been taken!")

	bob.SendLine("/changeUsername robert")
	bob.WaitFor("Name has been changed to: robert")

	ann.SendLine("/users")
	ann.WaitFor("* robert")
	ann.WaitFor("End of list.")
}

// TestLobbyValidationErrors verifies the uniform validation policy: missing
// arguments, unknown rooms, and unknown commands each produce an inline
// error and leave the session usable.
func TestLobbyValidationErrors(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")

	ann.SendLine("/join")
	ann.WaitFor("Please specify <room name> after '/join'.")

	ann.SendLine("/join ghost")
	ann.WaitFor("That is not an available chatroom name.")

	ann.SendLine("hello out there")
	ann.WaitFor("Whoops! That wasn't a valid command..")

	// Session still works after the errors.
	ann.SendLine("/rooms")
	ann.WaitFor("End of list.")
}

// TestRoomOnlyCommandInLobby verifies /leave is rejected outside a room.
func TestRoomOnlyCommandInLobby(t *testing.T) {
	_, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")

	ann.SendLine("/leave")
	ann.WaitFor("You can only use /leave inside a room.")
}

// TestQuitClosesConnection verifies /quit says goodbye, unregisters the
// user, and closes the transport.
func TestQuitClosesConnection(t *testing.T) {
	srv, addr := testhelpers.StartTestServer(t)

	ann := testhelpers.Dial(t, addr)
	ann.Login("ann")

	ann.SendLine("/quit")
	ann.WaitFor("Bye!")
	ann.ExpectClosed()

	// The name is free again once cleanup has run.
	users, _, _ := srv.Registries()
	deadline := time.Now().Add(testhelpers.DefaultWait)
	for {
		if _, ok := users.Lookup("ann"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ann still registered after /quit cleanup")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
