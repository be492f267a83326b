// Package server tracks active users in the UserRegistry, which owns the
// username → connection mapping and enforces name uniqueness.
package server

import (
	"sort"
	"sync"
)

// UserRegistry maps active usernames to their outbound client handles. All
// operations serialize on an internal lock; callers never see partially
// applied state and never need to hold a lock of their own.
type UserRegistry struct {
	mu    sync.RWMutex
	users map[string]*Client
}

// NewUserRegistry creates an empty UserRegistry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string]*Client)}
}

// Register binds name to client. It returns ErrNameTaken, without side
// effects, if the name is already held.
func (r *UserRegistry) Register(name string, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[name]; exists {
		return ErrNameTaken
	}
	r.users[name] = client
	return nil
}

// Rename moves the entry for oldName to newName as one atomic swap. A
// concurrent reader observes either the old name or the new one, never both
// and never neither. It returns ErrNameTaken if newName is in use and
// ErrUserNotFound if oldName is not registered.
func (r *UserRegistry) Rename(oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[newName]; exists {
		return ErrNameTaken
	}
	client, ok := r.users[oldName]
	if !ok {
		return ErrUserNotFound
	}

	delete(r.users, oldName)
	r.users[newName] = client
	return nil
}

// Unregister removes name from the registry. It is idempotent; removing an
// absent name is a no-op.
func (r *UserRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, name)
}

// Lookup returns the client handle bound to name.
func (r *UserRegistry) Lookup(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.users[name]
	return client, ok
}

// Names returns a sorted snapshot of all registered usernames.
func (r *UserRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered users.
func (r *UserRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
