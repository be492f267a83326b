// Package server defines the sentinel errors shared by the registries and
// the command layer.
package server

import "errors"

// Registry conflict errors. These are reported inline to the issuing
// connection and never mutate state.
var (
	// ErrNameTaken is returned when registering or renaming to a username
	// that is already held by an active connection.
	ErrNameTaken = errors.New("username already taken")

	// ErrUserNotFound is returned when a direct message or lookup names a
	// user that is not currently registered.
	ErrUserNotFound = errors.New("user not found")

	// ErrRoomNotFound is returned when an operation names a room that does
	// not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned by RoomRegistry.Create when the room is
	// already present. Callers that only want ensure-exists semantics treat
	// it as success.
	ErrRoomExists = errors.New("room already exists")

	// ErrRoomNotEmpty is returned when deleting a room that still has
	// members. Deletion is never forced.
	ErrRoomNotEmpty = errors.New("room still has members")

	// ErrPeerUnreachable is returned when a message could not be queued for
	// a peer whose outbound path is dead or saturated. The peer's
	// connection is closed as a side effect so its own session runs the
	// disconnect cleanup.
	ErrPeerUnreachable = errors.New("peer unreachable")
)
