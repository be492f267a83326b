// Package server tracks chat rooms and their membership in the RoomRegistry.
package server

import (
	"sort"
	"sync"
)

// DefaultRoom is seeded at startup so the first user has somewhere to go.
const DefaultRoom = "main"

// RoomInfo is one row of a room listing.
type RoomInfo struct {
	Name    string
	Members int
}

// RoomRegistry maps room names to member sets. Membership is tracked by
// username; a user appears in a room only while registered and joined. All
// operations serialize on an internal lock, so check-and-mutate pairs such
// as delete-if-empty have no lost-update window.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewRoomRegistry creates a RoomRegistry seeded with the default room.
func NewRoomRegistry() *RoomRegistry {
	r := &RoomRegistry{rooms: make(map[string]map[string]struct{})}
	r.rooms[DefaultRoom] = make(map[string]struct{})
	return r
}

// Create adds an empty room. Creating a room that already exists preserves
// its current members and returns ErrRoomExists; callers that only need
// ensure-exists semantics treat that as success.
func (r *RoomRegistry) Create(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; exists {
		return ErrRoomExists
	}
	r.rooms[name] = make(map[string]struct{})
	return nil
}

// Delete removes an empty room. The emptiness check and the removal happen
// under the same critical section, so a join racing a delete either lands in
// the room (blocking the delete) or observes ErrRoomNotFound.
func (r *RoomRegistry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if len(members) != 0 {
		return ErrRoomNotEmpty
	}
	delete(r.rooms, name)
	return nil
}

// Join adds user to the room's member set. It returns ErrRoomNotFound if the
// room does not exist.
func (r *RoomRegistry) Join(room, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return ErrRoomNotFound
	}
	members[user] = struct{}{}
	return nil
}

// Leave removes user from the room. It is idempotent; leaving a room the
// user is not in, or that does not exist, is a no-op.
func (r *RoomRegistry) Leave(room, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[room]; ok {
		delete(members, user)
	}
}

// RenameMember replaces oldName with newName in every room that lists it.
func (r *RoomRegistry) RenameMember(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, members := range r.rooms {
		if _, ok := members[oldName]; ok {
			delete(members, oldName)
			members[newName] = struct{}{}
		}
	}
}

// Members returns a sorted snapshot of the room's member names, or
// ErrRoomNotFound if the room does not exist.
func (r *RoomRegistry) Members(room string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil, ErrRoomNotFound
	}

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// List returns a snapshot of all rooms with their member counts, sorted by
// room name. An empty slice means no rooms are open.
func (r *RoomRegistry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(r.rooms))
	for name, members := range r.rooms {
		infos = append(infos, RoomInfo{Name: name, Members: len(members)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
